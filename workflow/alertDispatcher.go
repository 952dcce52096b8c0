package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AlertDispatcher drains the attendance_alerts outbox to Pub/Sub.
//
// Rows are claimed with FOR UPDATE SKIP LOCKED so multiple instances can
// run the dispatcher concurrently; each claimed row is published at most
// once per attempt, retried with exponential backoff, and parked as DEAD
// after MaxAttempts so a poisoned row cannot wedge the queue.
type AlertDispatcher struct {
	DB          *gorm.DB
	Logger      *logrus.Logger
	WorkerID    string
	BatchSize   int
	Interval    time.Duration
	LockTTL     time.Duration
	MaxAttempts int
}

func NewAlertDispatcher(db *gorm.DB, logger *logrus.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		DB:          db,
		Logger:      logger,
		WorkerID:    "alerts-" + time.Now().Format("20060102-150405.000"),
		BatchSize:   50,
		Interval:    5 * time.Second,
		LockTTL:     30 * time.Second,
		MaxAttempts: 8,
	}
}

func (d *AlertDispatcher) Run(ctx context.Context) {
	if d == nil || d.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.Interval):
		}
	}
}

func (d *AlertDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTTL)

	var claimed []models.AttendanceAlert
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("publish_status IN ?", []string{models.AlertPublishStatusPending, models.AlertPublishStatusFailed}).
			Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if err := tx.Model(&models.AttendanceAlert{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"publish_status": models.AlertPublishStatusProcessing,
					"locked_at":      &now,
					"locked_by":      &d.WorkerID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "workflow", "AlertDispatcher", "claim", nil, err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	for _, alert := range claimed {
		d.publishOne(ctx, alert)
	}
}

func (d *AlertDispatcher) publishOne(ctx context.Context, alert models.AttendanceAlert) {
	msgId, err := config.PublishAlertWithResult(ctx, alert.ToAlertMessage())
	now := time.Now().UTC()
	if err == nil {
		uerr := d.DB.WithContext(ctx).Model(&models.AttendanceAlert{}).
			Where("id = ?", alert.ID).
			Updates(map[string]interface{}{
				"publish_status":     models.AlertPublishStatusSent,
				"published_at":       &now,
				"pub_sub_message_id": &msgId,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error
		if uerr != nil {
			config.LogError(d.Logger, "workflow", "AlertDispatcher", "mark sent", alert.ID, uerr)
		}
		return
	}

	attempts := alert.PublishAttempts + 1
	errMsg := err.Error()
	updates := map[string]interface{}{
		"publish_attempts":   attempts,
		"last_publish_error": &errMsg,
		"locked_at":          nil,
		"locked_by":          nil,
	}
	if attempts >= d.MaxAttempts {
		updates["publish_status"] = models.AlertPublishStatusDead
		d.Logger.WithFields(logrus.Fields{
			"module":   "workflow",
			"funcName": "AlertDispatcher",
			"alert_id": alert.ID,
			"attempts": attempts,
		}).Error("alert exhausted publish attempts: " + errMsg)
	} else {
		backoff := time.Duration(1<<uint(attempts)) * time.Second
		if backoff > 10*time.Minute {
			backoff = 10 * time.Minute
		}
		next := now.Add(backoff)
		updates["publish_status"] = models.AlertPublishStatusFailed
		updates["next_attempt_at"] = &next
		d.Logger.WithFields(logrus.Fields{
			"module":   "workflow",
			"funcName": "AlertDispatcher",
			"alert_id": alert.ID,
			"attempts": attempts,
			"retry_at": next.Format(time.RFC3339),
		}).Warn("alert publish failed: " + errMsg)
	}
	if uerr := d.DB.WithContext(ctx).Model(&models.AttendanceAlert{}).
		Where("id = ?", alert.ID).
		Updates(updates).Error; uerr != nil {
		config.LogError(d.Logger, "workflow", "AlertDispatcher", "mark failed", alert.ID, uerr)
	}
}
