package jobs

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-worker/api/types"
)

// StatusStore is the part of the job store a persisted sink writes to.
type StatusStore interface {
	UpdateStats(ctx context.Context, id string, stats types.Stats) error
	MarkCompleted(ctx context.Context, id string, stats types.Stats, artifactRef string) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
}

// PersistedSink writes a stats snapshot to the job store every flushEvery
// accepted records, and always on completion or failure. Terminal writes are
// made even if the run's context has been cancelled.
type PersistedSink struct {
	ctx        context.Context
	store      StatusStore
	jobID      string
	flushEvery int
	pending    int
}

func NewPersistedSink(ctx context.Context, store StatusStore, jobID string, flushEvery int) *PersistedSink {
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &PersistedSink{ctx: ctx, store: store, jobID: jobID, flushEvery: flushEvery}
}

func (s *PersistedSink) OnPageStart(page int) {
	logrus.WithField("job_id", s.jobID).Debugf("Fetching page %d", page)
}

func (s *PersistedSink) OnRecordAccepted(_ types.Record, stats types.Stats) {
	s.pending++
	if s.pending < s.flushEvery {
		return
	}
	s.pending = 0
	if err := s.store.UpdateStats(s.ctx, s.jobID, stats); err != nil {
		logrus.WithError(err).WithField("job_id", s.jobID).Warn("Failed to flush job stats")
	}
}

func (s *PersistedSink) OnComplete(stats types.Stats, artifactRef string) {
	s.pending = 0
	if err := s.store.MarkCompleted(context.WithoutCancel(s.ctx), s.jobID, stats, artifactRef); err != nil {
		logrus.WithError(err).WithField("job_id", s.jobID).Error("Failed to mark job completed")
	}
}

func (s *PersistedSink) OnError(err error) {
	if storeErr := s.store.MarkFailed(context.WithoutCancel(s.ctx), s.jobID, err.Error()); storeErr != nil {
		logrus.WithError(storeErr).WithField("job_id", s.jobID).Error("Failed to mark job failed")
	}
}
