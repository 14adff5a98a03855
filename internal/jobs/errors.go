package jobs

import "errors"

// ErrRunCancelled is returned when an attended run is cancelled between pages.
var ErrRunCancelled = errors.New("run cancelled")
