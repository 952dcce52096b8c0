package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttendanceAlert is a transactional-outbox row for the operational
// alerting channel: the alert is written inside the caller's DB transaction
// and published to Pub/Sub asynchronously by the alert dispatcher after
// commit, so an alert is never emitted for a rolled-back mutation.
type AttendanceAlert struct {
	ID             int        `gorm:"primary_key" json:"id"`
	Kind           string     `gorm:"size:40;not null;index" json:"kind"`
	Severity       string     `gorm:"size:10;not null" json:"severity"`
	EmployeeId     int        `gorm:"index" json:"employee_id"`
	AttendanceDate *time.Time `gorm:"type:date" json:"attendance_date"`
	Detail         string     `gorm:"type:text" json:"detail"`
	CorrelationId  string     `gorm:"size:64" json:"correlation_id"`

	PublishStatus    string     `gorm:"size:16;not null;default:'PENDING';index" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:64" json:"locked_by"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:64" json:"pub_sub_message_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CreateAttendanceAlert writes an alert row inside tx. Publishing happens
// after commit (workflow.AlertDispatcher).
func CreateAttendanceAlert(ctx context.Context, tx *gorm.DB, kind string, severity string, employeeId int, date *time.Time, detail string) error {
	alert := AttendanceAlert{
		Kind:           kind,
		Severity:       severity,
		EmployeeId:     employeeId,
		AttendanceDate: date,
		Detail:         detail,
		CorrelationId:  correlationIdFromContextOrNew(ctx),
		PublishStatus:  AlertPublishStatusPending,
	}
	return tx.Create(&alert).Error
}

func (a AttendanceAlert) ToAlertMessage() config.AlertMessage {
	return config.AlertMessage{
		ID:             a.ID,
		Kind:           a.Kind,
		Severity:       a.Severity,
		EmployeeId:     a.EmployeeId,
		AttendanceDate: a.AttendanceDate,
		Detail:         a.Detail,
		CorrelationId:  a.CorrelationId,
		CreatedAt:      a.CreatedAt,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
