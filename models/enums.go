package models

// AttendanceStatus classifies a day record. It is derived by the engine;
// the only externally settable value is OnLeave (leave-approval path).
type AttendanceStatus string

const (
	AttendanceStatusOnTime  AttendanceStatus = "OnTime"
	AttendanceStatusLate    AttendanceStatus = "Late"
	AttendanceStatusAbsent  AttendanceStatus = "Absent"
	AttendanceStatusOnLeave AttendanceStatus = "OnLeave"
)

// SyncState tracks reconciliation of device-originated records.
// Pending -> Synced on clean batch application.
// Pending -> Conflict on detected inconsistency.
// Conflict -> Synced only via explicit administrative resolution.
type SyncState string

const (
	SyncStateSynced   SyncState = "Synced"
	SyncStatePending  SyncState = "Pending"
	SyncStateConflict SyncState = "Conflict"
)

func (s AttendanceStatus) IsValid() bool {
	switch s {
	case AttendanceStatusOnTime, AttendanceStatusLate, AttendanceStatusAbsent, AttendanceStatusOnLeave:
		return true
	}
	return false
}

type AttendanceEventType string

const (
	AttendanceEventIn  AttendanceEventType = "In"
	AttendanceEventOut AttendanceEventType = "Out"
)

func (t AttendanceEventType) IsValid() bool {
	return t == AttendanceEventIn || t == AttendanceEventOut
}

type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "Pending"
	LeaveStatusApproved LeaveStatus = "Approved"
	LeaveStatusRejected LeaveStatus = "Rejected"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleStaff UserRole = "S"
)

// Alert outbox publish lifecycle (transactional outbox).
const (
	AlertPublishStatusPending    = "PENDING"
	AlertPublishStatusProcessing = "PROCESSING"
	AlertPublishStatusSent       = "SENT"
	AlertPublishStatusFailed     = "FAILED"
	AlertPublishStatusDead       = "DEAD"
)

// Alert kinds surfaced to the operational channel.
const (
	AlertKindInconsistentState      = "INCONSISTENT_STATE"
	AlertKindReconciliationConflict = "RECONCILIATION_CONFLICT"
)
