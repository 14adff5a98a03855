package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// These are the types of statistics that we can add. The value is the JSON key that will be used for serialization.
type StatType string

const (
	PagesFetched      StatType = "pages_fetched"
	RecordsAccepted   StatType = "records_accepted"
	RecordsSuppressed StatType = "records_suppressed"
	FetchRetries      StatType = "fetch_retries"
	RunsStarted       StatType = "runs_started"
	RunsCompleted     StatType = "runs_completed"
	RunsFailed        StatType = "runs_failed"
	RunsCancelled     StatType = "runs_cancelled"
	JobsRejected      StatType = "jobs_rejected"
)

// Origins used as the first-level key of the collected statistics.
const (
	OriginRealtime   = "realtime"
	OriginBackground = "background"
	OriginCLI        = "cli"
	OriginUpstream   = "upstream"
)

// AddStat is the struct used in the rest of the worker for sending statistics
type AddStat struct {
	Type   StatType
	Origin string
	Num    uint
}

// Stats is the structure we use to store the statistics
type Stats struct {
	BootTimeUnix      int64                        `json:"boot_time"`
	LastOperationUnix int64                        `json:"last_operation_time"`
	CurrentTimeUnix   int64                        `json:"current_time"`
	Stats             map[string]map[StatType]uint `json:"stats"`
	sync.Mutex
}

// StatsCollector is the object used to collect statistics
type StatsCollector struct {
	Stats *Stats
	Chan  chan AddStat
}

// StartCollector starts a goroutine that listens to a channel for AddStat messages and updates the stats accordingly.
func StartCollector(bufSize uint) *StatsCollector {
	logrus.Info("Starting stats collector")

	s := Stats{
		BootTimeUnix: time.Now().Unix(),
		Stats:        make(map[string]map[StatType]uint),
	}

	ch := make(chan AddStat, bufSize)

	go func(s *Stats, ch chan AddStat) {
		for stat := range ch {
			s.Lock()
			s.LastOperationUnix = time.Now().Unix()
			if _, ok := s.Stats[stat.Origin]; !ok {
				s.Stats[stat.Origin] = make(map[StatType]uint)
			}
			s.Stats[stat.Origin][stat.Type] += stat.Num
			s.Unlock()
			logrus.Debugf("Added %d to stat %s/%s", stat.Num, stat.Origin, stat.Type)
		}
	}(&s, ch)

	return &StatsCollector{Stats: &s, Chan: ch}
}

// Json returns the current statistics as a JSON byte array
func (s *StatsCollector) Json() ([]byte, error) {
	s.Stats.Lock()
	defer s.Stats.Unlock()
	s.Stats.CurrentTimeUnix = time.Now().Unix()
	return json.Marshal(s.Stats)
}

// Add is a convenience method to add a number to a statistic. A nil collector discards it.
func (s *StatsCollector) Add(origin string, typ StatType, num uint) {
	if s == nil || num == 0 {
		return
	}
	s.Chan <- AddStat{Origin: origin, Type: typ, Num: num}
}

// Get returns the current value of a statistic.
func (s *StatsCollector) Get(origin string, typ StatType) uint {
	s.Stats.Lock()
	defer s.Stats.Unlock()
	return s.Stats.Stats[origin][typ]
}
