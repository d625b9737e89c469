package download

import (
	"errors"
	"fmt"
	"time"

	"github.com/dloadly/backend/internal/models"
)

var (
	// ErrUnsupportedPlatform indicates the URL does not belong to any
	// recognized source site.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrInvalidURL indicates a recognized site but a malformed link, e.g. an
	// Fshare path without a file code.
	ErrInvalidURL = errors.New("invalid url format")
)

// DisabledError indicates the operator has switched the platform off.
type DisabledError struct {
	Platform models.Platform
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("platform %s is currently disabled", e.Platform)
}

// QuotaExceededError indicates the bandwidth budget or a per-platform daily
// request limit is exhausted.
type QuotaExceededError struct {
	Platform    models.Platform
	Message     string
	RemainingGB float64
	ResetsAt    time.Time
}

func (e *QuotaExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("quota exceeded for platform %s", e.Platform)
}

// FailedError indicates a downloader exhausted all of its methods. Callers
// must not retry automatically; retries are user-initiated re-submissions.
type FailedError struct {
	Platform models.Platform
	Err      error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("download failed for %s: %v", e.Platform, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}
