package domain

import "time"

// Outcome is the reported result of one request.
type Outcome struct {
	Request  ReconciliationRequest
	State    ResourceState
	Err      error
	Attempts int
	Elapsed  time.Duration
	// Observed is set when the request was a duplicate and the outcome is the
	// one produced by the operation already in flight.
	Observed bool
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.State == o.Request.Desired
}
