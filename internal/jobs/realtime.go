package jobs

import (
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/timeline"
)

// EmitFunc delivers one event on a live channel.
type EmitFunc func(types.StreamEvent) error

// RealtimeSink pushes each accepted record to a live channel as soon as it is
// accepted. It shares the run's dedup index so a record the transport has
// already delivered is never pushed twice.
type RealtimeSink struct {
	emit  EmitFunc
	dedup *timeline.DedupIndex
}

func NewRealtimeSink(emit EmitFunc, dedup *timeline.DedupIndex) *RealtimeSink {
	if dedup == nil {
		dedup = timeline.NewDedupIndex()
	}
	return &RealtimeSink{emit: emit, dedup: dedup}
}

func (s *RealtimeSink) OnPageStart(page int) {
	logrus.Debugf("Realtime run fetching page %d", page)
}

func (s *RealtimeSink) OnRecordAccepted(record types.Record, stats types.Stats) {
	key := timeline.DeliveredKey(record)
	if s.dedup.Seen(key) {
		return
	}
	if err := s.emit(types.StreamEvent{Type: types.EventProgress, Record: &record, Stats: &stats}); err != nil {
		logrus.WithError(err).Warn("Failed to push progress event")
		return
	}
	s.dedup.Mark(key)
}

func (s *RealtimeSink) OnComplete(stats types.Stats, artifactRef string) {
	if err := s.emit(types.StreamEvent{Type: types.EventComplete, Stats: &stats, ArtifactRef: artifactRef}); err != nil {
		logrus.WithError(err).Warn("Failed to push complete event")
	}
}

func (s *RealtimeSink) OnError(err error) {
	if emitErr := s.emit(types.StreamEvent{Type: types.EventError, Message: err.Error()}); emitErr != nil {
		logrus.WithError(emitErr).Warn("Failed to push error event")
	}
}
