package jobs

import "github.com/masa-finance/timeline-worker/api/types"

// ProgressSink receives everything a run reports. All side effects of a run
// (pushing to a live channel, writing job status) live in the sink.
type ProgressSink interface {
	OnPageStart(page int)
	OnRecordAccepted(record types.Record, stats types.Stats)
	OnComplete(stats types.Stats, artifactRef string)
	OnError(err error)
}
