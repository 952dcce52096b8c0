package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
)

// SyncConflict queues a device event that could not be applied without
// violating an invariant already satisfied by the ledger. Conflicts are
// surfaced for manual review, never silently dropped; resolution is an
// explicit administrative action (Conflict -> Synced).
type SyncConflict struct {
	ID                 int                 `gorm:"primary_key" json:"id"`
	AttendanceRecordId int                 `gorm:"not null;index" json:"attendance_record_id"`
	EmployeeId         int                 `gorm:"not null;index" json:"employee_id"`
	EventType          AttendanceEventType `gorm:"type:enum('In','Out');not null" json:"event_type"`
	EventTimestamp     time.Time           `gorm:"not null" json:"event_timestamp"`
	SourceDevice       string              `gorm:"size:64" json:"source_device"`
	Reason             string              `gorm:"type:text" json:"reason"`
	Resolved           *bool               `gorm:"not null;default:0;index" json:"resolved"`
	ResolvedBy         int                 `gorm:"default:0" json:"resolved_by"`
	ResolvedAt         *time.Time          `json:"resolved_at"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func ListOpenSyncConflicts(ctx context.Context, limit int, offset int) ([]*SyncConflict, error) {
	if limit <= 0 || limit > 200 {
		limit = config.SearchLimit
	}
	var conflicts []*SyncConflict
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&SyncConflict{}).
		Where("resolved = ?", false).
		Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&conflicts).Error
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}
