package jobserver

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-worker/internal/jobs"
	"github.com/masa-finance/timeline-worker/internal/jobs/stats"
)

func (js *JobServer) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case j, ok := <-js.queue.Jobs():
			if !ok {
				return
			}
			js.queue.markDequeued()
			js.doWork(ctx, j)
		}
	}
}

// doWork runs one job to a terminal state. Failures are recorded in the
// store by the persisted sink, never retried.
func (js *JobServer) doWork(ctx context.Context, j queuedJob) {
	log := logrus.WithFields(logrus.Fields{"job_id": j.ID, "target": j.Target})

	if ctx.Err() != nil {
		js.failUnstarted(ctx, j.ID, shutdownMessage)
		return
	}
	if err := js.store.MarkRunning(ctx, j.ID); err != nil {
		log.WithError(err).Error("Failed to start job")
		js.failUnstarted(ctx, j.ID, fmt.Sprintf("could not start job: %v", err))
		return
	}

	sink := jobs.NewPersistedSink(ctx, js.store, j.ID, js.flushEvery)
	req := jobs.RunRequest{
		Target:     j.Target,
		Filter:     j.Filter,
		Credential: j.Credential,
		Origin:     stats.OriginBackground,
	}
	res, err := js.orchestrator.Run(ctx, req, sink, jobs.NeverPaused)
	if err != nil {
		log.WithError(err).Warn("Job failed")
		return
	}
	log.Infof("Job completed with %d records (%s)", res.Stats.TotalAccepted, res.StopReason)
}

const shutdownMessage = "worker shut down before the job started"

// failUnstarted moves a job that never reached running to failed. The write
// outlives ctx so shutdown cannot strand the job in pending.
func (js *JobServer) failUnstarted(ctx context.Context, id, msg string) {
	if err := js.store.MarkFailed(context.WithoutCancel(ctx), id, msg); err != nil {
		logrus.WithError(err).WithField("job_id", id).Error("Failed to mark unstarted job")
	}
}
