package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/jobs/stats"
	"github.com/masa-finance/timeline-worker/internal/timeline"
	"github.com/masa-finance/timeline-worker/internal/upstream"
)

const (
	defaultMaxSameCursor = 3
	defaultPollInterval  = 500 * time.Millisecond
)

// PageFetcher is the upstream boundary. upstream.Paginator implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, target, credential, cursor string) (upstream.Page, error)
}

// ArtifactSaver receives the result buffer of a completed run and returns a reference to it.
type ArtifactSaver interface {
	Save(ctx context.Context, artifact types.Artifact) (string, error)
}

// RunRequest is everything one acquisition run needs to know about its target.
type RunRequest struct {
	Target     string
	Filter     types.FilterConfig
	Credential string
	// Dedup is the run's index. It is created when nil; a realtime session
	// supplies its own so its sink shares it.
	Dedup *timeline.DedupIndex
	// Origin labels the run in the stats collector.
	Origin string
}

type Result struct {
	Accepted    []types.Record
	Stats       types.Stats
	StopReason  timeline.StopReason
	ArtifactRef string
}

// Orchestrator runs the acquisition loop. It has a single code path: what
// differs between an attended session and a background job is the sink and
// the pause controller it is handed.
type Orchestrator struct {
	fetcher       PageFetcher
	artifacts     ArtifactSaver
	maxPages      int
	maxSameCursor int
	pollInterval  time.Duration
	collector     *stats.StatsCollector
}

type OrchestratorOption func(*Orchestrator)

func WithArtifactSaver(a ArtifactSaver) OrchestratorOption {
	return func(o *Orchestrator) {
		o.artifacts = a
	}
}

// WithMaxPages sets the page ceiling. Zero means unbounded.
func WithMaxPages(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxPages = n
	}
}

// WithMaxSameCursor sets how many back-to-back identical cursors end a run.
// Values below one are raised to one so the guard can never be switched off.
func WithMaxSameCursor(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxSameCursor = n
	}
}

func WithPollInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.pollInterval = d
	}
}

func WithStatsCollector(c *stats.StatsCollector) OrchestratorOption {
	return func(o *Orchestrator) {
		o.collector = c
	}
}

func NewOrchestrator(fetcher PageFetcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		fetcher:       fetcher,
		maxSameCursor: defaultMaxSameCursor,
		pollInterval:  defaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pollInterval <= 0 {
		o.pollInterval = defaultPollInterval
	}
	if o.maxSameCursor < 1 {
		o.maxSameCursor = 1
	}
	return o
}

// Run acquires the target's timeline until a stop condition holds, a fetch
// fails for good, or the controller cancels it. Accepted records reach the
// sink in page order and, within a page, in upstream order.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, sink ProgressSink, pause PauseController) (Result, error) {
	log := logrus.WithFields(logrus.Fields{"target": req.Target, "origin": req.Origin})

	dedup := req.Dedup
	if dedup == nil {
		dedup = timeline.NewDedupIndex()
	}
	if pause == nil {
		pause = NeverPaused
	}
	limits := timeline.Limits{
		MaxRecords:    req.Filter.MaxRecords,
		MaxPages:      o.maxPages,
		MaxSameCursor: o.maxSameCursor,
	}

	var (
		state    timeline.CursorState
		st       types.Stats
		accepted = make([]types.Record, 0)
		reason   timeline.StopReason
	)

	o.collector.Add(req.Origin, stats.RunsStarted, 1)
	log.Info("Starting timeline acquisition")

	fail := func(err error) (Result, error) {
		if errors.Is(err, ErrRunCancelled) {
			o.collector.Add(req.Origin, stats.RunsCancelled, 1)
			log.Info("Acquisition cancelled")
		} else {
			o.collector.Add(req.Origin, stats.RunsFailed, 1)
			log.WithError(err).Error("Acquisition failed")
		}
		sink.OnError(err)
		return Result{Accepted: accepted, Stats: st, StopReason: reason}, err
	}

	for {
		if err := o.waitWhilePaused(ctx, pause); err != nil {
			return fail(err)
		}
		if pause.IsCancelled() {
			reason = timeline.StopCancelled
			return fail(ErrRunCancelled)
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if timeline.ReachedRecordLimit(st, limits.MaxRecords) {
			reason = timeline.StopMaxRecords
			break
		}

		pageNumber := st.PagesFetched + 1
		sink.OnPageStart(pageNumber)
		page, err := o.fetcher.FetchPage(ctx, req.Target, req.Credential, state.Cursor)
		if err != nil {
			return fail(fmt.Errorf("fetch page %d: %w", pageNumber, err))
		}
		st.PagesFetched++

		before := st
		for _, rec := range page.Records {
			if timeline.ReachedRecordLimit(st, limits.MaxRecords) {
				break
			}
			key := timeline.AcquiredKey(rec)
			if dedup.Seen(key) {
				st.Duplicates++
				st.TotalSuppressed++
				continue
			}
			if !timeline.Accepts(rec, req.Filter) {
				st.Filtered++
				st.TotalSuppressed++
				continue
			}
			dedup.Mark(key)
			accepted = append(accepted, rec)
			st.TotalAccepted++
			sink.OnRecordAccepted(rec, st)
		}

		o.collector.Add(req.Origin, stats.PagesFetched, 1)
		o.collector.Add(req.Origin, stats.RecordsAccepted, uint(st.TotalAccepted-before.TotalAccepted))
		o.collector.Add(req.Origin, stats.RecordsSuppressed, uint(st.TotalSuppressed-before.TotalSuppressed))
		log.Debugf("Page %d: %d records, %d accepted so far", pageNumber, len(page.Records), st.TotalAccepted)

		state.Advance(page.NextCursor)
		if r, stop := timeline.ShouldStop(state, st, limits); stop {
			reason = r
			break
		}
	}

	ref, err := o.handOff(ctx, req.Target, accepted, st)
	if err != nil {
		return fail(fmt.Errorf("persist results: %w", err))
	}

	o.collector.Add(req.Origin, stats.RunsCompleted, 1)
	log.WithFields(logrus.Fields{
		"accepted":   st.TotalAccepted,
		"suppressed": st.TotalSuppressed,
		"pages":      st.PagesFetched,
		"reason":     reason,
	}).Info("Acquisition complete")
	sink.OnComplete(st, ref)

	return Result{Accepted: accepted, Stats: st, StopReason: reason, ArtifactRef: ref}, nil
}

// waitWhilePaused sleeps in fixed increments until the controller resumes or cancels.
func (o *Orchestrator) waitWhilePaused(ctx context.Context, pause PauseController) error {
	if !pause.IsPaused() {
		return nil
	}
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for pause.IsPaused() && !pause.IsCancelled() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (o *Orchestrator) handOff(ctx context.Context, target string, records []types.Record, st types.Stats) (string, error) {
	if o.artifacts == nil {
		return "", nil
	}
	return o.artifacts.Save(ctx, types.Artifact{
		Target:    target,
		Records:   records,
		Stats:     st,
		CreatedAt: time.Now().UTC(),
	})
}
