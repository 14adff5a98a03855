package types

import (
	"errors"
	"time"
)

// Record is one acquired post.
type Record struct {
	Content      string `json:"content" bson:"content"`
	LikeCount    int    `json:"likes" bson:"likes"`
	RetweetCount int    `json:"retweets" bson:"retweets"`
	CommentCount int    `json:"comments" bson:"comments"`
	// RawTimestamp is the timestamp exactly as the upstream sent it.
	RawTimestamp string `json:"timestamp" bson:"timestamp"`
	// Timestamp is the parsed form of RawTimestamp, zero when it could not be parsed.
	Timestamp time.Time `json:"-" bson:"-"`
}

func (r Record) TotalEngagement() int {
	return r.LikeCount + r.RetweetCount + r.CommentCount
}

type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// FilterConfig selects which records a run keeps. Zero thresholds and false
// toggles disable the corresponding constraint.
type FilterConfig struct {
	MinLikes           int       `json:"min_likes"`
	MinRetweets        int       `json:"min_retweets"`
	MinComments        int       `json:"min_comments"`
	MinTotalEngagement int       `json:"min_total_engagement"`
	DateRange          DateRange `json:"date_range"`
	ExcludeRetweets    bool      `json:"exclude_retweets"`
	ExcludeReplies     bool      `json:"exclude_replies"`
	MediaOnly          bool      `json:"media_only"`
	MaxRecords         int       `json:"max_records"`
	// Language is accepted for compatibility with existing clients but is not applied.
	Language string `json:"language,omitempty"`
}

var (
	ErrNegativeThreshold = errors.New("filter thresholds must not be negative")
	ErrInvertedDateRange = errors.New("date range start is after its end")
)

// Validate checks the configuration once at the boundary so the acquisition
// loop never has to.
func (f FilterConfig) Validate() error {
	if f.MinLikes < 0 || f.MinRetweets < 0 || f.MinComments < 0 || f.MinTotalEngagement < 0 || f.MaxRecords < 0 {
		return ErrNegativeThreshold
	}
	if f.DateRange.Start != nil && f.DateRange.End != nil && f.DateRange.Start.After(*f.DateRange.End) {
		return ErrInvertedDateRange
	}
	return nil
}
