package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/jobs/stats"
	"github.com/masa-finance/timeline-worker/internal/jobserver"
)

// add queues a background job.
//
// The request body is a JobRequest. The response body contains a JobResponse
// with the id of the new job; the job runs asynchronously and its progress is
// read from the status endpoint.
//
// A request with an empty target or an invalid filter is rejected with 400. A
// job the queue cannot take is recorded as failed and answered with 503.
func add(jobServer *jobserver.JobServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobRequest := types.JobRequest{}
		if err := c.Bind(&jobRequest); err != nil {
			return c.JSON(http.StatusBadRequest, types.JobError{Error: err.Error()})
		}

		id, err := jobServer.Submit(c.Request().Context(), jobRequest)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, types.JobResponse{UID: id})
		case errors.Is(err, jobserver.ErrEmptyTarget),
			errors.Is(err, types.ErrNegativeThreshold),
			errors.Is(err, types.ErrInvertedDateRange):
			return c.JSON(http.StatusBadRequest, types.JobError{Error: err.Error()})
		case errors.Is(err, jobserver.ErrQueueFull), errors.Is(err, jobserver.ErrQueueClosed):
			return c.JSON(http.StatusServiceUnavailable, types.JobError{Error: err.Error(), UID: id})
		default:
			logrus.WithError(err).Error("Failed to add job")
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: "failed to add job"})
		}
	}
}

// status returns the current snapshot of a job, or 404 if it is unknown.
func status(jobServer *jobserver.JobServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		job, err := jobServer.GetJob(c.Request().Context(), c.Param("job_id"))
		if errors.Is(err, jobserver.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, types.JobError{Error: "Job not found"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, job)
	}
}

// result returns the stored artifact of a completed job. A job that has not
// completed yields 409.
func result(jobServer *jobserver.JobServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		artifact, err := jobServer.GetArtifact(c.Request().Context(), c.Param("job_id"))
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, artifact)
		case errors.Is(err, jobserver.ErrJobNotFound), errors.Is(err, jobserver.ErrArtifactNotFound):
			return c.JSON(http.StatusNotFound, types.JobError{Error: err.Error()})
		case errors.Is(err, jobserver.ErrJobNotCompleted):
			return c.JSON(http.StatusConflict, types.JobError{Error: err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error()})
		}
	}
}

// queueStats returns the background queue statistics.
//
// GET /job/queue/stats
func queueStats(jobServer *jobserver.JobServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, jobServer.GetQueueStats())
	}
}

// workerStats returns the counters gathered by the stats collector, keyed by origin.
func workerStats(collector *stats.StatsCollector) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := collector.Json()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, types.JobError{Error: err.Error()})
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}
