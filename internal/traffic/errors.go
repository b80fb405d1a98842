package traffic

import (
	"errors"
	"fmt"
)

// User-facing resolution failures.
var (
	ErrInvalidDomain     = errors.New("invalid domain")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrNotFound          = errors.New("domain not found")
)

// ErrNotListed is returned by a RankSource when the domain has no rank.
var ErrNotListed = errors.New("domain not listed")

// DomainError carries a user-facing failure for a specific input.
type DomainError struct {
	Err     error
	Domain  string
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Domain)
	}
	return fmt.Sprintf("%s: %s: %s", e.Err, e.Domain, e.Message)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// SoftReason classifies a stage failure that only advances the chain.
type SoftReason string

// Soft failure reasons recorded in logs and metrics.
const (
	ReasonTransport   SoftReason = "transport"
	ReasonTimeout     SoftReason = "timeout"
	ReasonStatus      SoftReason = "status"
	ReasonNoData      SoftReason = "no-data"
	ReasonNotListed   SoftReason = "not-listed"
	ReasonBreakerOpen SoftReason = "breaker-open"
	ReasonRateLimited SoftReason = "rate-limited"
)
