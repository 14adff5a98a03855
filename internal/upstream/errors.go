package upstream

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is returned once every attempt for a page has failed.
var ErrRetriesExhausted = errors.New("upstream retries exhausted")

// StatusError is a non-2xx response from the upstream API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}
