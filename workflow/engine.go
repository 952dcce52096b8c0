package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer trace.Tracer = otel.Tracer("attendance-engine")

// LeaveChecker is the leave-workflow collaborator contract. The concrete
// implementation is models.IsOnApprovedLeave; tests substitute their own.
type LeaveChecker interface {
	IsOnApprovedLeave(ctx context.Context, employeeId int, date time.Time) (bool, error)
}

// LeaveCheckerFunc adapts a plain function to LeaveChecker.
type LeaveCheckerFunc func(ctx context.Context, employeeId int, date time.Time) (bool, error)

func (f LeaveCheckerFunc) IsOnApprovedLeave(ctx context.Context, employeeId int, date time.Time) (bool, error) {
	return f(ctx, employeeId, date)
}

// AttendanceEngine converts raw check-in/check-out events into
// authoritative ledger records. All facility configuration is passed in at
// construction; the engine reads no ambient state.
type AttendanceEngine struct {
	db       *gorm.DB
	logger   *logrus.Logger
	facility config.FacilitySettings
	leave    LeaveChecker
}

func NewAttendanceEngine(db *gorm.DB, logger *logrus.Logger, facility config.FacilitySettings, leave LeaveChecker) *AttendanceEngine {
	if leave == nil {
		leave = LeaveCheckerFunc(models.IsOnApprovedLeave)
	}
	return &AttendanceEngine{
		db:       db,
		logger:   logger,
		facility: facility,
		leave:    leave,
	}
}

func (e *AttendanceEngine) Location() *time.Location {
	return e.facility.Location
}

// database resolves lazily so the engine can be wired into routes before
// the startup retry loop has connected.
func (e *AttendanceEngine) database() *gorm.DB {
	if e.db != nil {
		return e.db
	}
	return config.GetDB()
}

func (e *AttendanceEngine) graceFor(shift *models.Shift) int {
	if shift.GraceMinutes == 0 && e.facility.DefaultGraceMinutes > 0 {
		return e.facility.DefaultGraceMinutes
	}
	return shift.GraceMinutes
}

func (e *AttendanceEngine) resolveEmployeeAndShift(ctx context.Context, deviceEmployeeId string) (*models.Employee, *models.Shift, error) {
	employee, err := models.GetEmployeeByDeviceId(ctx, deviceEmployeeId)
	if err != nil {
		return nil, nil, err
	}
	if employee.ShiftId == 0 {
		return nil, nil, fmt.Errorf("employee %d: %w", employee.ID, models.ErrNoShiftAssigned)
	}
	shift, err := models.GetShift(ctx, employee.ShiftId)
	if err != nil {
		return nil, nil, fmt.Errorf("employee %d shift %d: %w", employee.ID, employee.ShiftId, models.ErrNoShiftAssigned)
	}
	return employee, shift, nil
}

// RecordCheckIn creates the ledger record for an employee's first valid
// check-in of the day.
//
// On a repeat check-in the existing record is returned unchanged together
// with models.ErrDuplicateCheckIn, so callers can treat it as an
// idempotent no-op instead of an exception.
func (e *AttendanceEngine) RecordCheckIn(ctx context.Context, deviceEmployeeId string, timestamp time.Time, sourceDevice string, syncState models.SyncState) (*models.AttendanceRecord, error) {
	ctx, span := tracer.Start(ctx, "RecordCheckIn")
	defer span.End()

	employee, shift, err := e.resolveEmployeeAndShift(ctx, deviceEmployeeId)
	if err != nil {
		return nil, err
	}

	ts := timestamp.In(e.facility.Location)
	day := models.DateOf(timestamp, e.facility.Location)

	var existing *models.AttendanceRecord
	var created *models.AttendanceRecord
	txErr := e.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireEmployeeDayLock(tx, employee.ID, day); err != nil {
			return err
		}
		defer ReleaseEmployeeDayLock(tx, employee.ID, day)

		var record models.AttendanceRecord
		err := tx.Where("employee_id = ? AND attendance_date = ?", employee.ID, day).First(&record).Error
		switch {
		case err == nil:
			existing = &record
			if record.Status == models.AttendanceStatusOnLeave {
				return fmt.Errorf("employee %d date %s: %w", employee.ID, day.Format("2006-01-02"), models.ErrCoveredByLeave)
			}
			if record.CheckIn != nil {
				return fmt.Errorf("employee %d date %s already checked in at %s: %w",
					employee.ID, day.Format("2006-01-02"), record.CheckIn.Format(time.RFC3339), models.ErrDuplicateCheckIn)
			}
			// A record with no check-in that is neither OnLeave nor a
			// leave row should not exist; the invariant was violated
			// upstream (an Absent row before any event counts too, since
			// events only arrive before close-out under normal operation).
			return fmt.Errorf("employee %d date %s has a record without check-in (status=%s): %w",
				employee.ID, day.Format("2006-01-02"), record.Status, models.ErrInconsistentState)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// fall through to create
		default:
			return err
		}

		onLeave, err := e.leave.IsOnApprovedLeave(ctx, employee.ID, day)
		if err != nil {
			return err
		}
		if onLeave {
			return fmt.Errorf("employee %d date %s: %w", employee.ID, day.Format("2006-01-02"), models.ErrCoveredByLeave)
		}

		grace := e.graceFor(shift)
		delay := models.DelayMinutesFor(ts, day, shift.StartMinute, grace)
		record = models.AttendanceRecord{
			EmployeeId:       employee.ID,
			AttendanceDate:   day,
			CheckIn:          &ts,
			ShiftId:          shift.ID,
			ShiftStartMinute: shift.StartMinute,
			ShiftEndMinute:   shift.EndMinute,
			GraceMinutes:     grace,
			DelayMinutes:     delay,
			Status:           models.ClassifyCheckIn(delay),
			SourceDevice:     sourceDevice,
			SyncState:        syncState,
		}
		if err := tx.Create(&record).Error; err != nil {
			if models.IsDuplicateKeyErr(err) {
				// Lost the race to a concurrent check-in; report duplicate.
				var winner models.AttendanceRecord
				if lerr := tx.Where("employee_id = ? AND attendance_date = ?", employee.ID, day).First(&winner).Error; lerr == nil {
					existing = &winner
				}
				return fmt.Errorf("employee %d date %s: %w", employee.ID, day.Format("2006-01-02"), models.ErrDuplicateCheckIn)
			}
			return err
		}
		created = &record
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, models.ErrDuplicateCheckIn) && existing != nil {
			return existing, txErr
		}
		if errors.Is(txErr, models.ErrInconsistentState) {
			e.reportInconsistentState(ctx, employee.ID, day, txErr)
		}
		return nil, txErr
	}
	return created, nil
}

// RecordCheckOut closes the open record for the employee's day and derives
// working hours. Never mutates check-in.
func (e *AttendanceEngine) RecordCheckOut(ctx context.Context, deviceEmployeeId string, timestamp time.Time, sourceDevice string) (*models.AttendanceRecord, error) {
	ctx, span := tracer.Start(ctx, "RecordCheckOut")
	defer span.End()

	employee, _, err := e.resolveEmployeeAndShift(ctx, deviceEmployeeId)
	if err != nil {
		return nil, err
	}

	ts := timestamp.In(e.facility.Location)
	day := models.DateOf(timestamp, e.facility.Location)

	var updated *models.AttendanceRecord
	txErr := e.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireEmployeeDayLock(tx, employee.ID, day); err != nil {
			return err
		}
		defer ReleaseEmployeeDayLock(tx, employee.ID, day)

		var record models.AttendanceRecord
		err := tx.Where("employee_id = ? AND attendance_date = ?", employee.ID, day).First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("employee %d date %s: %w", employee.ID, day.Format("2006-01-02"), models.ErrNoOpenCheckIn)
			}
			return err
		}
		if record.Status == models.AttendanceStatusOnLeave {
			return fmt.Errorf("employee %d date %s: %w", employee.ID, day.Format("2006-01-02"), models.ErrCoveredByLeave)
		}
		if record.CheckIn == nil || record.CheckOut != nil {
			return fmt.Errorf("employee %d date %s: %w", employee.ID, day.Format("2006-01-02"), models.ErrNoOpenCheckIn)
		}
		if !ts.After(*record.CheckIn) {
			return fmt.Errorf("employee %d check-out %s <= check-in %s: %w",
				employee.ID, ts.Format(time.RFC3339), record.CheckIn.Format(time.RFC3339), models.ErrCheckOutBeforeCheckIn)
		}

		hours, err := models.WorkingHoursBetween(*record.CheckIn, ts)
		if err != nil {
			return fmt.Errorf("employee %d date %s: %w", employee.ID, day.Format("2006-01-02"), err)
		}

		if err := tx.Model(&models.AttendanceRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"check_out":     &ts,
				"working_hours": hours,
			}).Error; err != nil {
			return err
		}
		record.CheckOut = &ts
		record.WorkingHours = decimal.NewNullDecimal(hours)
		updated = &record
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return updated, nil
}

// QueryRange returns the employee's records ordered by date ascending.
func (e *AttendanceEngine) QueryRange(ctx context.Context, employeeId int, startDate time.Time, endDate time.Time) ([]*models.AttendanceRecord, error) {
	start := models.DateOf(startDate, e.facility.Location)
	end := models.DateOf(endDate, e.facility.Location)
	return models.GetAttendanceRange(ctx, employeeId, start, end)
}

// reportInconsistentState logs the invariant violation at fatal class and
// queues an operational alert. Serving continues for other employees.
func (e *AttendanceEngine) reportInconsistentState(ctx context.Context, employeeId int, day time.Time, cause error) {
	e.logger.WithFields(logrus.Fields{
		"module":      "workflow",
		"funcName":    "reportInconsistentState",
		"severity":    "fatal",
		"employee_id": employeeId,
		"date":        day.Format("2006-01-02"),
	}).Error(cause.Error())

	// Separate transaction: the alert must survive the rolled-back
	// operation that detected the inconsistency.
	err := e.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.CreateAttendanceAlert(ctx, tx, models.AlertKindInconsistentState, "fatal", employeeId, &day, cause.Error())
	})
	if err != nil {
		config.LogError(e.logger, "workflow", "reportInconsistentState", "CreateAttendanceAlert", nil, err)
	}
}
