package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/masa-finance/timeline-worker/internal/config"
	"github.com/masa-finance/timeline-worker/internal/jobs/stats"
	"github.com/masa-finance/timeline-worker/internal/jobserver"
	"github.com/masa-finance/timeline-worker/internal/upstream"
)

// Start wires the stores, the upstream paginator and the job server together
// and serves the HTTP API until ctx is done.
func Start(ctx context.Context, jc config.JobConfiguration) error {
	collector := stats.StartCollector(uint(jc.GetInt("stats_buf_size", 128)))

	stores, err := jobserver.NewStoresFromConfig(ctx, jc.GetStoreConfig())
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	defer stores.Close()

	paginator := NewPaginator(jc, collector, stats.OriginUpstream)
	jobServer := jobserver.NewJobServer(jc, stores, paginator, collector)
	// Runs before stores.Close so shutdown writes reach an open store.
	stopJobs := startJobServer(ctx, jobServer)
	defer stopJobs()

	e := newServer(ctx, jc, jobServer, collector)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			e.Logger.Error("Failed to close Echo server: ", err)
		}
	}()

	listenAddress := jc.ListenAddress()
	e.Logger.Info(fmt.Sprintf("Starting server on %s", listenAddress))
	if err := e.Start(listenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Error(err)
		return err
	}
	return nil
}

// startJobServer runs js in the background. The returned stop cancels it and
// blocks until every job it held has been settled in the store.
func startJobServer(ctx context.Context, js *jobserver.JobServer) (stop func()) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		js.Run(runCtx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// NewPaginator builds the upstream client from configuration. Retries are
// counted in the collector under origin.
func NewPaginator(jc config.JobConfiguration, collector *stats.StatsCollector, origin string) *upstream.Paginator {
	up := jc.GetUpstreamConfig()
	return upstream.NewPaginator(
		upstream.BaseURL(up.BaseURL),
		upstream.Timeout(up.Timeout),
		upstream.Retries(up.Retries),
		upstream.RetryBackoff(up.RetryBackoff),
		upstream.RateLimit(up.RequestsPerSecond),
		upstream.OnRetry(func(err error, wait time.Duration) {
			collector.Add(origin, stats.FetchRetries, 1)
		}),
	)
}

func newServer(ctx context.Context, jc config.JobConfiguration, jobServer *jobserver.JobServer, collector *stats.StatsCollector) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(echoLogLevel(jc.GetString("log_level", "info")))

	healthMetrics := NewHealthMetrics()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(APIKeyAuthMiddleware(jc))
	e.Use(HealthMetricsMiddleware(healthMetrics))

	// Health check endpoints (no auth required)
	e.GET(HealthCheckPath, healthz())
	e.GET(ReadinessCheckPath, readyz(jobServer, healthMetrics))

	e.GET("/stats", workerStats(collector))
	e.GET(StreamPath, stream(ctx, jobServer.Orchestrator(), jc.GetUpstreamConfig().APIKey))

	/*
		- POST /job/add: Add a job to the queue
		- GET /job/status/:job_id: Get the status of a job
		- GET /job/result/:job_id: Get the stored result of a completed job
		- GET /job/queue/stats: Queue depth and counters
	*/
	job := e.Group("/job")
	job.POST("/add", add(jobServer))
	job.GET("/status/:job_id", status(jobServer))
	job.GET("/result/:job_id", result(jobServer))
	job.GET("/queue/stats", queueStats(jobServer))

	if jc.GetBool("profiling_enabled", false) {
		enableProfiling(e)

		debug := e.Group("/debug/pprof")
		debug.POST("/enable", func(c echo.Context) error {
			setProfilingRates(true)
			return c.String(http.StatusOK, "pprof enabled")
		})
		debug.POST("/disable", func(c echo.Context) error {
			setProfilingRates(false)
			return c.String(http.StatusOK, "pprof disabled")
		})
	}

	return e
}

func echoLogLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

// enableProfiling registers the pprof endpoints and turns on block and mutex sampling.
func enableProfiling(e *echo.Echo) {
	e.Logger.Info("Enabling profiling - this may impact performance")
	setProfilingRates(true)
	pprof.Register(e)
}

// setProfilingRates toggles block and mutex sampling. The endpoints stay
// registered either way.
func setProfilingRates(on bool) {
	if on {
		// Sample time in nanoseconds, see https://github.com/DataDog/go-profiler-notes/blob/main/block.md#usage
		runtime.SetBlockProfileRate(500)
		runtime.SetMutexProfileFraction(1)
		runtime.SetCPUProfileRate(30)
		return
	}
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
	runtime.SetCPUProfileRate(0)
}
