package models

import "errors"

// Attendance error taxonomy. Handlers and the reconciler branch on these
// with errors.Is; the engine wraps them with employee/date/timestamp
// context via fmt.Errorf("...: %w", ...).
var (
	ErrUnknownEmployee = errors.New("unknown employee")
	ErrNoShiftAssigned = errors.New("no shift assigned")
	ErrCoveredByLeave  = errors.New("covered by leave")

	// ErrDuplicateCheckIn is non-fatal: the existing record is returned
	// unchanged alongside it, so callers can treat a repeat check-in as an
	// idempotent no-op rather than a failure.
	ErrDuplicateCheckIn = errors.New("duplicate check-in")

	ErrNoOpenCheckIn         = errors.New("no open check-in")
	ErrCheckOutBeforeCheckIn = errors.New("check-out before check-in")

	// ErrImplausibleDuration rejects worked durations outside [0, 24] hours.
	// Rejecting (not clamping) keeps device clock errors visible.
	ErrImplausibleDuration = errors.New("implausible worked duration")

	// ErrInconsistentState indicates the one-record-per-day invariant was
	// violated upstream. It is logged at fatal class and pushed to the
	// operational alert outbox, but serving continues for other employees.
	ErrInconsistentState = errors.New("inconsistent attendance state")

	ErrReconciliationConflict = errors.New("reconciliation conflict")
)
