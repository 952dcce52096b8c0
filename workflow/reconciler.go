package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BatchEvent is one buffered device event replayed after an offline
// period. Timestamp carries the device-side event time, not receipt time.
type BatchEvent struct {
	DeviceEmployeeId string                     `json:"device_employee_id" binding:"required"`
	EventType        models.AttendanceEventType `json:"event_type" binding:"required"`
	Timestamp        time.Time                  `json:"timestamp" binding:"required"`
}

// ReconciliationReport summarizes how a replayed batch was absorbed.
type ReconciliationReport struct {
	Received            int   `json:"received"`
	Applied             int   `json:"applied"`
	Duplicate           int   `json:"duplicate"`
	Conflicted          int   `json:"conflicted"`
	Rejected            int   `json:"rejected"`
	ConflictedRecordIds []int `json:"conflicted_record_ids,omitempty"`
}

// ReplayDecision classifies a replayed event against the record already
// in the ledger.
type ReplayDecision int

const (
	// ReplayDuplicate: the ledger already covers the event; it adds
	// nothing.
	ReplayDuplicate ReplayDecision = iota
	// ReplaySupersede: the event is earlier and the record has not been
	// confirmed yet, so the earlier time wins.
	ReplaySupersede
	// ReplayConflict: the event contradicts a confirmed record and must
	// go to manual review.
	ReplayConflict
)

// DecideCheckInReplay applies the buffered-event merge rule: an earlier
// timestamp supersedes a Pending record, contradicts a Synced one, and a
// later or equal timestamp is always a duplicate.
func DecideCheckInReplay(existing *models.AttendanceRecord, eventTs time.Time) ReplayDecision {
	if existing.CheckIn == nil || !eventTs.Before(*existing.CheckIn) {
		return ReplayDuplicate
	}
	if existing.SyncState == models.SyncStatePending {
		return ReplaySupersede
	}
	return ReplayConflict
}

// DecideCheckOutReplay classifies a replayed check-out against a closed
// record: a leave day or a matching timestamp is a duplicate, a differing
// timestamp contradicts the recorded check-out and goes to manual review.
func DecideCheckOutReplay(existing *models.AttendanceRecord, eventTs time.Time) ReplayDecision {
	if existing.Status == models.AttendanceStatusOnLeave {
		return ReplayDuplicate
	}
	if existing.CheckOut != nil && existing.CheckOut.Equal(eventTs) {
		return ReplayDuplicate
	}
	return ReplayConflict
}

// IngestBatch replays a device's buffered events against the ledger.
//
// Events are sorted by timestamp before applying so the outcome does not
// depend on the order the device drained its buffer. Each event is
// applied independently; a bad event is counted and skipped, never aborts
// the batch. Records the batch touched and left unconflicted are promoted
// Pending -> Synced at the end.
func (e *AttendanceEngine) IngestBatch(ctx context.Context, sourceDevice string, events []BatchEvent) (*ReconciliationReport, error) {
	ctx, span := tracer.Start(ctx, "IngestBatch")
	defer span.End()

	// Best-effort per-device lock: two replays of the same device buffer
	// should not interleave. The employee-day advisory lock still
	// serializes the writes if Redis is unavailable.
	var lock *redislock.Lock
	locker := config.GetRedisLock()
	if locker == nil {
		e.logger.WithFields(logrus.Fields{
			"module":        "workflow",
			"funcName":      "IngestBatch",
			"source_device": sourceDevice,
		}).Warn("redis lock not ready; proceeding without redis lock")
	} else {
		var err error
		lock, err = locker.Obtain(ctx, fmt.Sprintf("ingest:%s", sourceDevice), 30*time.Second, nil)
		if err == redislock.ErrNotObtained {
			e.logger.WithFields(logrus.Fields{
				"module":        "workflow",
				"funcName":      "IngestBatch",
				"source_device": sourceDevice,
			}).Warn("could not obtain redis lock; proceeding without redis lock")
			lock = nil
		} else if err != nil {
			e.logger.WithFields(logrus.Fields{
				"module":        "workflow",
				"funcName":      "IngestBatch",
				"source_device": sourceDevice,
			}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
			lock = nil
		}
	}
	defer func() {
		if lock != nil {
			_ = lock.Release(ctx)
		}
	}()

	sorted := make([]BatchEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	report := &ReconciliationReport{Received: len(events)}
	touched := make(map[int]bool)
	conflicted := make(map[int]bool)

	for _, event := range sorted {
		if !event.EventType.IsValid() {
			report.Rejected++
			config.LogError(e.logger, "workflow", "IngestBatch", "unknown event type", event,
				fmt.Errorf("unknown event type %q", event.EventType))
			continue
		}

		switch event.EventType {
		case models.AttendanceEventIn:
			record, err := e.RecordCheckIn(ctx, event.DeviceEmployeeId, event.Timestamp, sourceDevice, models.SyncStatePending)
			if err == nil {
				report.Applied++
				touched[record.ID] = true
				continue
			}
			if errors.Is(err, models.ErrDuplicateCheckIn) && record != nil {
				e.absorbCheckInReplay(ctx, sourceDevice, event, record, report, touched, conflicted)
				continue
			}
			report.Rejected++
			config.LogError(e.logger, "workflow", "IngestBatch", "RecordCheckIn", event, err)

		case models.AttendanceEventOut:
			record, err := e.RecordCheckOut(ctx, event.DeviceEmployeeId, event.Timestamp, sourceDevice)
			if err == nil {
				report.Applied++
				touched[record.ID] = true
				continue
			}
			if errors.Is(err, models.ErrNoOpenCheckIn) {
				if existing := e.closedDayRecord(ctx, event); existing != nil {
					e.absorbCheckOutReplay(ctx, sourceDevice, event, existing, report, conflicted)
					continue
				}
			}
			report.Rejected++
			config.LogError(e.logger, "workflow", "IngestBatch", "RecordCheckOut", event, err)
		}
	}

	for id := range conflicted {
		report.ConflictedRecordIds = append(report.ConflictedRecordIds, id)
	}
	sort.Ints(report.ConflictedRecordIds)

	if err := e.promoteSynced(ctx, touched, conflicted); err != nil {
		return report, err
	}

	e.logger.WithFields(logrus.Fields{
		"module":        "workflow",
		"funcName":      "IngestBatch",
		"source_device": sourceDevice,
		"received":      report.Received,
		"applied":       report.Applied,
		"duplicate":     report.Duplicate,
		"conflicted":    report.Conflicted,
		"rejected":      report.Rejected,
	}).Info("batch reconciliation finished")
	return report, nil
}

// absorbCheckInReplay handles a replayed check-in that collided with an
// existing record for the same employee-day.
func (e *AttendanceEngine) absorbCheckInReplay(ctx context.Context, sourceDevice string, event BatchEvent, existing *models.AttendanceRecord, report *ReconciliationReport, touched map[int]bool, conflicted map[int]bool) {
	ts := event.Timestamp.In(e.facility.Location)
	switch DecideCheckInReplay(existing, ts) {
	case ReplayDuplicate:
		report.Duplicate++
	case ReplaySupersede:
		if err := e.supersedeCheckIn(ctx, existing, ts); err != nil {
			report.Rejected++
			config.LogError(e.logger, "workflow", "IngestBatch", "supersedeCheckIn", event, err)
			return
		}
		report.Applied++
		touched[existing.ID] = true
	case ReplayConflict:
		reason := fmt.Sprintf("replayed check-in %s precedes confirmed check-in %s",
			ts.Format(time.RFC3339), existing.CheckIn.Format(time.RFC3339))
		if err := e.queueConflict(ctx, existing, event.EventType, ts, sourceDevice, reason); err != nil {
			report.Rejected++
			config.LogError(e.logger, "workflow", "IngestBatch", "queueConflict", event, err)
			return
		}
		report.Conflicted++
		conflicted[existing.ID] = true
	}
}

// supersedeCheckIn rewrites an unconfirmed record with an earlier
// check-in time, re-deriving delay, status and working hours.
func (e *AttendanceEngine) supersedeCheckIn(ctx context.Context, existing *models.AttendanceRecord, ts time.Time) error {
	return e.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireEmployeeDayLock(tx, existing.EmployeeId, existing.AttendanceDate); err != nil {
			return err
		}
		defer ReleaseEmployeeDayLock(tx, existing.EmployeeId, existing.AttendanceDate)

		var record models.AttendanceRecord
		if err := tx.Where("id = ?", existing.ID).First(&record).Error; err != nil {
			return err
		}
		if record.SyncState != models.SyncStatePending || record.CheckIn == nil || !ts.Before(*record.CheckIn) {
			// Re-check under the lock; a concurrent writer got here first.
			return nil
		}

		delay := models.DelayMinutesFor(ts, record.AttendanceDate, record.ShiftStartMinute, record.GraceMinutes)
		updates := map[string]interface{}{
			"check_in":      &ts,
			"delay_minutes": delay,
			"status":        models.ClassifyCheckIn(delay),
		}
		if record.CheckOut != nil {
			hours, err := models.WorkingHoursBetween(ts, *record.CheckOut)
			if err != nil {
				return err
			}
			updates["working_hours"] = hours
		}
		if err := tx.Model(&models.AttendanceRecord{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
			return err
		}
		existing.CheckIn = &ts
		existing.DelayMinutes = delay
		return nil
	})
}

// queueConflict parks the event for manual review and marks the record
// Conflict so it is excluded from reports until resolved.
func (e *AttendanceEngine) queueConflict(ctx context.Context, record *models.AttendanceRecord, eventType models.AttendanceEventType, ts time.Time, sourceDevice string, reason string) error {
	return e.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conflict := models.SyncConflict{
			AttendanceRecordId: record.ID,
			EmployeeId:         record.EmployeeId,
			EventType:          eventType,
			EventTimestamp:     ts,
			SourceDevice:       sourceDevice,
			Reason:             reason,
			Resolved:           utils.BoolPtr(false),
		}
		if err := tx.Create(&conflict).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.AttendanceRecord{}).
			Where("id = ?", record.ID).
			Update("sync_state", models.SyncStateConflict).Error; err != nil {
			return err
		}
		day := record.AttendanceDate
		return models.CreateAttendanceAlert(ctx, tx, models.AlertKindReconciliationConflict, "warning", record.EmployeeId, &day, reason)
	})
}

// closedDayRecord returns the completed record for the event's
// employee-day, or nil when the day is not closed.
func (e *AttendanceEngine) closedDayRecord(ctx context.Context, event BatchEvent) *models.AttendanceRecord {
	employee, err := models.GetEmployeeByDeviceId(ctx, event.DeviceEmployeeId)
	if err != nil {
		return nil
	}
	day := models.DateOf(event.Timestamp, e.facility.Location)
	record, err := models.GetAttendanceByEmployeeDate(ctx, employee.ID, day)
	if err != nil {
		return nil
	}
	if record.CheckOut == nil && record.Status != models.AttendanceStatusOnLeave {
		return nil
	}
	return record
}

// absorbCheckOutReplay handles a replayed check-out against a day that is
// already closed.
func (e *AttendanceEngine) absorbCheckOutReplay(ctx context.Context, sourceDevice string, event BatchEvent, existing *models.AttendanceRecord, report *ReconciliationReport, conflicted map[int]bool) {
	ts := event.Timestamp.In(e.facility.Location)
	switch DecideCheckOutReplay(existing, ts) {
	case ReplayDuplicate:
		report.Duplicate++
	case ReplayConflict:
		reason := fmt.Sprintf("replayed check-out %s contradicts recorded check-out %s",
			ts.Format(time.RFC3339), existing.CheckOut.Format(time.RFC3339))
		if err := e.queueConflict(ctx, existing, event.EventType, ts, sourceDevice, reason); err != nil {
			report.Rejected++
			config.LogError(e.logger, "workflow", "IngestBatch", "queueConflict", event, err)
			return
		}
		report.Conflicted++
		conflicted[existing.ID] = true
	}
}

// promoteSynced confirms batch-touched records that ended the batch
// without a conflict.
func (e *AttendanceEngine) promoteSynced(ctx context.Context, touched map[int]bool, conflicted map[int]bool) error {
	ids := []int{}
	for id := range touched {
		if !conflicted[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return e.database().WithContext(ctx).Model(&models.AttendanceRecord{}).
		Where("id IN ? AND sync_state = ?", ids, models.SyncStatePending).
		Update("sync_state", models.SyncStateSynced).Error
}

// ResolveConflict closes a queued conflict. Once the record has no open
// conflicts left it returns to Synced. The resolving user comes from the
// request context.
func (e *AttendanceEngine) ResolveConflict(ctx context.Context, conflictId int, resolutionNote string) (*models.SyncConflict, error) {
	ctx, span := tracer.Start(ctx, "ResolveConflict")
	defer span.End()

	var resolved *models.SyncConflict
	err := e.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conflict models.SyncConflict
		if err := tx.Where("id = ?", conflictId).First(&conflict).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if conflict.Resolved != nil && *conflict.Resolved {
			resolved = &conflict
			return nil
		}

		now := time.Now()
		userId, _ := utils.GetUserIdFromContext(ctx)
		updates := map[string]interface{}{
			"resolved":    true,
			"resolved_by": userId,
			"resolved_at": &now,
		}
		if err := tx.Model(&models.SyncConflict{}).Where("id = ?", conflict.ID).Updates(updates).Error; err != nil {
			return err
		}

		var open int64
		if err := tx.Model(&models.SyncConflict{}).
			Where("attendance_record_id = ? AND resolved = ? AND id <> ?", conflict.AttendanceRecordId, false, conflict.ID).
			Count(&open).Error; err != nil {
			return err
		}
		if open == 0 {
			if err := tx.Model(&models.AttendanceRecord{}).
				Where("id = ? AND sync_state = ?", conflict.AttendanceRecordId, models.SyncStateConflict).
				Update("sync_state", models.SyncStateSynced).Error; err != nil {
				return err
			}
		}

		if err := models.CreateHistory(ctx, tx, "RESOLVE", conflict.ID, "SyncConflict", conflict, updates, resolutionNote); err != nil {
			return err
		}

		conflict.Resolved = utils.BoolPtr(true)
		conflict.ResolvedBy = userId
		conflict.ResolvedAt = &now
		resolved = &conflict
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}
