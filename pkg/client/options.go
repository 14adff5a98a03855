package client

import (
	"errors"
	"net/http"
	"time"
)

// Options configures a Client. Poll settings apply to every JobResult the
// client hands out.
type Options struct {
	APIKey          string
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	HTTPClient      *http.Client
}

type Option func(*Options) error

// APIKey sets the key sent as a bearer token on every request.
func APIKey(key string) Option {
	return func(o *Options) error {
		o.APIKey = key
		return nil
	}
}

// Timeout bounds each HTTP request, not the wait for a job.
func Timeout(timeout time.Duration) Option {
	return func(o *Options) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		o.Timeout = timeout
		return nil
	}
}

// PollInterval sets how long JobResult waits between status checks. The default is one second.
func PollInterval(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		o.PollInterval = d
		return nil
	}
}

// MaxPollAttempts sets how many status checks JobResult makes before giving up. The default is 60.
func MaxPollAttempts(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return errors.New("max poll attempts must be positive")
		}
		o.MaxPollAttempts = n
		return nil
	}
}

// HTTPClient replaces the default HTTP client. Timeout is ignored when set.
func HTTPClient(c *http.Client) Option {
	return func(o *Options) error {
		o.HTTPClient = c
		return nil
	}
}

func NewOptions(opts ...Option) (*Options, error) {
	o := &Options{
		Timeout:         30 * time.Second,
		PollInterval:    time.Second,
		MaxPollAttempts: 60,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
