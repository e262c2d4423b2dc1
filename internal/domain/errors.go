package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAmbiguous    = errors.New("ambiguous")
	ErrUpstream     = errors.New("upstream error")
	ErrTimeout      = errors.New("timeout")
	ErrMalformed    = errors.New("malformed response")
	ErrDisconnected = errors.New("disconnected")
	ErrRejected     = errors.New("subscription rejected")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnknownAsset = errors.New("unknown asset")
	ErrInvalidInput = errors.New("invalid input")
	ErrLockHeld     = errors.New("lock already held")

	ErrWindowMismatch = errors.New("venue windows differ")
)

// ResolutionError reports why a venue identifier could not be resolved for a
// window. Reason is one of ErrNotFound, ErrAmbiguous or ErrUpstream.
type ResolutionError struct {
	Venue  Venue
	Reason error
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: %v", e.Venue, e.Reason)
	}
	return fmt.Sprintf("resolve %s: %v: %v", e.Venue, e.Reason, e.Err)
}

func (e *ResolutionError) Unwrap() []error { return []error{e.Reason, e.Err} }

// FetchError reports a failed quote fetch. Reason is one of ErrTimeout,
// ErrUpstream or ErrMalformed.
type FetchError struct {
	Venue  Venue
	Reason error
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %v", e.Venue, e.Reason)
	}
	return fmt.Sprintf("fetch %s: %v: %v", e.Venue, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{e.Reason, e.Err} }

// ChannelError reports a push channel failure. Reason is ErrDisconnected or
// ErrRejected.
type ChannelError struct {
	Channel string
	Reason  error
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("channel %s: %v", e.Channel, e.Reason)
	}
	return fmt.Sprintf("channel %s: %v: %v", e.Channel, e.Reason, e.Err)
}

func (e *ChannelError) Unwrap() []error { return []error{e.Reason, e.Err} }

// ReportError is the wire form of a per-leg failure attached to an
// OpportunityReport.
type ReportError struct {
	Venue   Venue  `json:"venue"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Report stages.
const (
	StageResolve     = "resolve"
	StageFetch       = "fetch"
	StagePriceToBeat = "price_to_beat"
	StageWindow      = "window"
)

// NewReportError classifies err into a ReportError.
func NewReportError(venue Venue, stage string, err error) ReportError {
	return ReportError{
		Venue:   venue,
		Stage:   stage,
		Reason:  ReasonOf(err),
		Message: err.Error(),
	}
}

// ReasonOf returns a short machine-readable reason for err.
func ReasonOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAmbiguous):
		return "ambiguous"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformed):
		return "malformed_response"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	case errors.Is(err, ErrRejected):
		return "subscription_rejected"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrWindowMismatch):
		return "window_mismatch"
	default:
		return "upstream_error"
	}
}
