package upstream

import (
	"net/http"
	"time"
)

type Options struct {
	BaseURL           string
	Timeout           time.Duration
	Retries           int
	RetryBackoff      time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	OnRetry           func(err error, wait time.Duration)
}

type Option func(*Options)

func BaseURL(u string) Option {
	return func(o *Options) {
		o.BaseURL = u
	}
}

// Timeout bounds each individual request attempt, not the whole page fetch.
func Timeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// Retries is the total number of attempts made for one page.
func Retries(n int) Option {
	return func(o *Options) {
		o.Retries = n
	}
}

// RetryBackoff is the base delay; the wait after attempt n is n times this value.
func RetryBackoff(d time.Duration) Option {
	return func(o *Options) {
		o.RetryBackoff = d
	}
}

// RateLimit caps the request rate across every run sharing the paginator. Zero disables it.
func RateLimit(rps float64) Option {
	return func(o *Options) {
		o.RequestsPerSecond = rps
	}
}

func HTTPClient(c *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = c
	}
}

// OnRetry is called before each wait between attempts.
func OnRetry(f func(err error, wait time.Duration)) Option {
	return func(o *Options) {
		o.OnRetry = f
	}
}

func newOptions(opts ...Option) *Options {
	o := &Options{
		BaseURL:      "http://127.0.0.1:8081",
		Timeout:      30 * time.Second,
		Retries:      3,
		RetryBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Retries < 1 {
		o.Retries = 1
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}
