package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CloseOutDay synthesizes records for every active employee who produced
// no event on the given day: OnLeave when an approved leave covers the
// day, Absent otherwise. Safe to run repeatedly; days already recorded
// are skipped, so a retried sweep converges instead of erroring.
func (e *AttendanceEngine) CloseOutDay(ctx context.Context, date time.Time) ([]*models.AttendanceRecord, error) {
	ctx, span := tracer.Start(ctx, "CloseOutDay")
	defer span.End()

	day := models.DateOf(date, e.facility.Location)

	employees, err := models.ListActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}

	var recordedIds []int
	err = e.database().WithContext(ctx).Model(&models.AttendanceRecord{}).
		Where("attendance_date = ?", day).
		Pluck("employee_id", &recordedIds).Error
	if err != nil {
		return nil, err
	}
	recorded := make(map[int]bool, len(recordedIds))
	for _, id := range recordedIds {
		recorded[id] = true
	}

	created := []*models.AttendanceRecord{}
	for _, employee := range employees {
		if recorded[employee.ID] {
			continue
		}

		status := models.AttendanceStatusAbsent
		onLeave, err := e.leave.IsOnApprovedLeave(ctx, employee.ID, day)
		if err != nil {
			config.LogError(e.logger, "workflow", "CloseOutDay", "IsOnApprovedLeave", employee.ID, err)
			continue
		}
		if onLeave {
			status = models.AttendanceStatusOnLeave
		}

		record := models.AttendanceRecord{
			EmployeeId:     employee.ID,
			AttendanceDate: day,
			ShiftId:        employee.ShiftId,
			Status:         status,
			SourceDevice:   "closeout",
			SyncState:      models.SyncStateSynced,
		}
		if shift, err := models.GetShift(ctx, employee.ShiftId); err == nil {
			record.ShiftStartMinute = shift.StartMinute
			record.ShiftEndMinute = shift.EndMinute
			record.GraceMinutes = e.graceFor(shift)
		}

		// Per-row insert so one failure does not abort the sweep; the
		// duplicate-key path covers an event racing in mid-sweep.
		err = e.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(&record).Error
		})
		if err != nil {
			if models.IsDuplicateKeyErr(err) {
				continue
			}
			config.LogError(e.logger, "workflow", "CloseOutDay", "Create", employee.ID, err)
			continue
		}
		created = append(created, &record)
	}

	e.logger.WithFields(logrus.Fields{
		"module":   "workflow",
		"funcName": "CloseOutDay",
		"date":     day.Format("2006-01-02"),
		"created":  len(created),
	}).Info("close-out sweep finished")
	return created, nil
}
