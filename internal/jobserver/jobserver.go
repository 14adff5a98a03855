package jobserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/config"
	"github.com/masa-finance/timeline-worker/internal/jobs"
	"github.com/masa-finance/timeline-worker/internal/jobs/stats"
	"github.com/masa-finance/timeline-worker/internal/timeline"
)

// JobServer accepts background acquisition jobs and runs them on a bounded
// pool of workers. Jobs share nothing but the job store.
type JobServer struct {
	store        JobStore
	artifacts    ArtifactStore
	orchestrator *jobs.Orchestrator
	queue        *JobQueue
	collector    *stats.StatsCollector

	workers    int
	flushEvery int
	credential string
}

func NewJobServer(jc config.JobConfiguration, stores *Stores, fetcher jobs.PageFetcher, collector *stats.StatsCollector) *JobServer {
	logrus.Info("Initializing JobServer...")

	workers := jc.GetInt("max_jobs", 10)
	if workers <= 0 {
		logrus.Infof("Invalid worker count (%d), defaulting to 1 worker.", workers)
		workers = 1
	} else {
		logrus.Infof("Setting worker count to %d.", workers)
	}

	queueSize := jc.GetInt("job_queue_size", 100)
	run := jc.GetRunConfig()
	orchestrator := jobs.NewOrchestrator(fetcher,
		jobs.WithArtifactSaver(stores.Artifacts),
		jobs.WithMaxPages(run.MaxPages),
		jobs.WithMaxSameCursor(run.MaxSameCursor),
		jobs.WithPollInterval(run.PollInterval),
		jobs.WithStatsCollector(collector),
	)

	logrus.Infof("JobServer initialization complete (queue size: %d, max pages: %d, max same cursor: %d).", queueSize, run.MaxPages, run.MaxSameCursor)
	return &JobServer{
		store:        stores.Jobs,
		artifacts:    stores.Artifacts,
		orchestrator: orchestrator,
		queue:        NewJobQueue(queueSize),
		collector:    collector,
		workers:      workers,
		flushEvery:   run.FlushEvery,
		credential:   jc.GetUpstreamConfig().APIKey,
	}
}

// Run starts the workers and blocks until ctx is done. Runs in flight see the
// cancellation and are marked failed; jobs still queued are marked failed
// without being started.
func (js *JobServer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < js.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			js.worker(ctx)
		}()
	}

	<-ctx.Done()
	js.queue.Close()
	wg.Wait()
	js.drain()
}

// Submit registers a job and queues it for a worker. It returns as soon as
// the job is recorded; a job the queue cannot take is marked failed and its
// id is returned together with the queue error.
func (js *JobServer) Submit(ctx context.Context, req types.JobRequest) (string, error) {
	target := timeline.NormalizeTarget(req.Target)
	if target == "" {
		return "", ErrEmptyTarget
	}
	if err := req.Filter.Validate(); err != nil {
		return "", err
	}

	id, err := js.store.Create(ctx, target, req.Filter)
	if err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}

	credential := req.Credential
	if credential == "" {
		credential = js.credential
	}

	log := logrus.WithFields(logrus.Fields{"job_id": id, "target": target})
	if err := js.queue.Enqueue(queuedJob{ID: id, Target: target, Filter: req.Filter, Credential: credential}); err != nil {
		js.collector.Add(stats.OriginBackground, stats.JobsRejected, 1)
		if markErr := js.store.MarkFailed(ctx, id, fmt.Sprintf("rejected before start: %v", err)); markErr != nil {
			log.WithError(markErr).Error("Failed to mark rejected job")
		}
		log.WithError(err).Warn("Job rejected")
		return id, err
	}

	log.Info("Job queued")
	return id, nil
}

func (js *JobServer) GetJob(ctx context.Context, id string) (types.Job, error) {
	return js.store.Get(ctx, id)
}

// GetArtifact returns the stored result of a completed job.
func (js *JobServer) GetArtifact(ctx context.Context, id string) (types.Artifact, error) {
	job, err := js.store.Get(ctx, id)
	if err != nil {
		return types.Artifact{}, err
	}
	if job.Status != types.JobCompleted {
		return types.Artifact{}, fmt.Errorf("%w: job %s is %s", ErrJobNotCompleted, id, job.Status)
	}
	if job.ArtifactRef == "" {
		return types.Artifact{}, ErrArtifactNotFound
	}
	return js.artifacts.Load(ctx, job.ArtifactRef)
}

// Orchestrator returns the orchestrator background jobs run on, so attended
// sessions share its upstream client, limits and artifact store.
func (js *JobServer) Orchestrator() *jobs.Orchestrator {
	return js.orchestrator
}

func (js *JobServer) GetQueueStats() QueueStats {
	return js.queue.GetStats()
}

func (js *JobServer) drain() {
	for j := range js.queue.Jobs() {
		js.failUnstarted(context.Background(), j.ID, shutdownMessage)
	}
}
