package core

import (
	"remitlend/core/events"
	"remitlend/native/loans"
	"remitlend/observability/metrics"
)

// LoanTransitionSink counts loan lifecycle transitions from committed events.
type LoanTransitionSink struct {
	Metrics *metrics.LendingMetrics
}

// Emit implements events.Emitter.
func (s LoanTransitionSink) Emit(e events.Event) {
	if e == nil {
		return
	}
	var status loans.Status
	switch e.EventType() {
	case events.TypeLoanRequested:
		status = loans.StatusPending
	case events.TypeLoanApproved:
		status = loans.StatusActive
	case events.TypeLoanRepaid:
		status = loans.StatusRepaid
	case events.TypeLoanDefaulted:
		status = loans.StatusDefaulted
	default:
		return
	}
	s.Metrics.ObserveLoanTransition(status.String())
}
