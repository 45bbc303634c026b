package mcp

import (
	"errors"
	"fmt"
)

// ErrMalformedReport marks a report payload that is present but unusable:
// either empty, or an HTML/XML error page disguised as a tabular report.
// Callers treat it as zero rows and do not retry within the same cycle.
var ErrMalformedReport = errors.New("report payload is empty or malformed")

// TransportError wraps a network or auth failure reaching the remote API.
// The current step is skipped and retried on the next scheduled cycle.
type TransportError struct {
	Region string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp %s: %s: %v", e.Region, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LookupError reports a failed node or NAT-rule resolution.
type LookupError struct {
	Region string
	ID     string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("mcp %s: lookup %s: %v", e.Region, e.ID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
