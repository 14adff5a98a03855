package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/timeline"
)

const timelinePath = "timeline"

// Page is one upstream response. An empty NextCursor means the timeline is exhausted.
type Page struct {
	Records    []types.Record
	NextCursor string
}

// Paginator fetches timeline pages one HTTP call at a time. It keeps no
// per-run state, so a single instance is shared by concurrent runs.
type Paginator struct {
	opts    *Options
	limiter *rate.Limiter
}

func NewPaginator(opts ...Option) *Paginator {
	o := newOptions(opts...)
	p := &Paginator{opts: o}
	if o.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(o.RequestsPerSecond), 1)
	}
	logrus.Infof("Upstream paginator using %s (retries: %d, backoff: %v)", o.BaseURL, o.Retries, o.RetryBackoff)
	return p
}

// linearBackOff waits step*n after the n-th failed attempt.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.step * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

func (p *Paginator) newBackOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.opts.Retries > 1 {
		b = backoff.WithMaxRetries(&linearBackOff{step: p.opts.RetryBackoff}, uint64(p.opts.Retries-1))
	}
	return backoff.WithContext(b, ctx)
}

// FetchPage requests the page following cursor for target, retrying transport
// failures and non-2xx responses. Once every attempt has failed the error
// wraps ErrRetriesExhausted.
func (p *Paginator) FetchPage(ctx context.Context, target, credential, cursor string) (Page, error) {
	var page Page
	attempts := 0

	op := func() error {
		attempts++
		var err error
		page, err = p.fetchOnce(ctx, target, credential, cursor)
		if err != nil {
			logrus.WithError(err).Debugf("Fetch attempt %d for %s failed", attempts, target)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logrus.Warnf("Retrying page fetch for %s in %v: %v", target, wait, err)
		if p.opts.OnRetry != nil {
			p.opts.OnRetry(err, wait)
		}
	}

	if err := backoff.RetryNotify(op, p.newBackOff(ctx), notify); err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, err)
	}
	return page, nil
}

func (p *Paginator) fetchOnce(ctx context.Context, target, credential, cursor string) (Page, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Page{}, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	params := url.Values{}
	params.Add("user", target)
	if cursor != "" {
		params.Add("cursor", cursor)
	}
	endpoint := fmt.Sprintf("%s/%s?%s", strings.TrimSuffix(p.opts.BaseURL, "/"), timelinePath, params.Encode())

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to create request: %w", err)
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var pr pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Page{}, fmt.Errorf("failed to decode response: %w", err)
	}

	records := make([]types.Record, 0, len(pr.Records))
	for _, r := range pr.Records {
		records = append(records, r.toRecord())
	}
	return Page{Records: records, NextCursor: pr.NextCursor}, nil
}

type pageResponse struct {
	Records    []rawRecord `json:"records"`
	NextCursor string      `json:"next_cursor"`
}

type rawRecord struct {
	Content   flexValue `json:"content"`
	Likes     flexInt   `json:"likes"`
	Retweets  flexInt   `json:"retweets"`
	Comments  flexInt   `json:"comments"`
	Timestamp flexValue `json:"timestamp"`
}

func (r rawRecord) toRecord() types.Record {
	rec := types.Record{
		LikeCount:    int(r.Likes),
		RetweetCount: int(r.Retweets),
		CommentCount: int(r.Comments),
		RawTimestamp: string(r.Timestamp),
		Content:      string(r.Content),
	}
	return timeline.Normalize(rec)
}

// flexInt accepts a JSON number, a numeric string or null. Anything it cannot
// read becomes 0 and counts too large to represent saturate at MaxInt64.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	switch {
	case err != nil && !errors.Is(err, strconv.ErrRange), math.IsNaN(v), v <= 0:
		*f = 0
	case v >= math.MaxInt64:
		*f = math.MaxInt64
	default:
		*f = flexInt(v)
	}
	return nil
}

// flexValue keeps a string verbatim. Any other JSON value is kept as its
// literal text so an odd upstream payload still yields a record.
type flexValue string

func (f *flexValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*f = flexValue(str)
		return nil
	}
	*f = flexValue(s)
	return nil
}
