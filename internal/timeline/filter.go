package timeline

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/masa-finance/timeline-worker/api/types"
)

const (
	retweetMarker = "RT @"
	replyMarker   = "@"
)

// Substrings that mark a post as carrying media or a link.
var mediaMarkers = []string{
	"http://",
	"https://",
	"pic.twitter.com/",
	"t.co/",
	"youtu.be/",
}

// Accepts reports whether r satisfies every enabled constraint of cfg.
// Checks run cheapest first; the result is the same in any order.
func Accepts(r types.Record, cfg types.FilterConfig) bool {
	return meetsEngagement(r, cfg) &&
		withinDateRange(r, cfg.DateRange) &&
		!(cfg.ExcludeRetweets && IsRetweet(r.Content)) &&
		!(cfg.ExcludeReplies && IsReply(r.Content)) &&
		(!cfg.MediaOnly || HasMedia(r.Content))
}

func meetsEngagement(r types.Record, cfg types.FilterConfig) bool {
	if cfg.MinLikes > 0 && r.LikeCount < cfg.MinLikes {
		return false
	}
	if cfg.MinRetweets > 0 && r.RetweetCount < cfg.MinRetweets {
		return false
	}
	if cfg.MinComments > 0 && r.CommentCount < cfg.MinComments {
		return false
	}
	if cfg.MinTotalEngagement > 0 && r.TotalEngagement() < cfg.MinTotalEngagement {
		return false
	}
	return true
}

// withinDateRange treats a record whose timestamp could not be parsed as not
// violating the range.
func withinDateRange(r types.Record, dr types.DateRange) bool {
	if r.Timestamp.IsZero() {
		return true
	}
	if dr.Start != nil && r.Timestamp.Before(*dr.Start) {
		return false
	}
	if dr.End != nil && r.Timestamp.After(*dr.End) {
		return false
	}
	return true
}

// IsRetweet only looks at the start of the content.
func IsRetweet(content string) bool {
	return strings.HasPrefix(content, retweetMarker)
}

func IsReply(content string) bool {
	return strings.HasPrefix(content, replyMarker)
}

func HasMedia(content string) bool {
	lower := strings.ToLower(content)
	return slices.ContainsFunc(mediaMarkers, func(m string) bool {
		return strings.Contains(lower, m)
	})
}
