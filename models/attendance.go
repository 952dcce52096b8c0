package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AttendanceRecord is the authoritative ledger entry: one row per
// (employee, calendar day). All derived values (working_hours,
// delay_minutes, status) are recomputed by the engine from stored facts,
// never mutated independently.
//
// Shift window fields are a frozen snapshot of the shift definition in
// effect at creation; a later shift reassignment must not retroactively
// alter past records.
type AttendanceRecord struct {
	ID             int       `gorm:"primary_key" json:"id"`
	EmployeeId     int       `gorm:"not null;uniqueIndex:idx_attendance_employee_date,priority:1" json:"employee_id"`
	AttendanceDate time.Time `gorm:"type:date;not null;uniqueIndex:idx_attendance_employee_date,priority:2;index" json:"attendance_date"`

	CheckIn  *time.Time `json:"check_in"`
	CheckOut *time.Time `json:"check_out"`

	ShiftId          int `gorm:"not null;default:0" json:"shift_id"`
	ShiftStartMinute int `gorm:"not null;default:0" json:"shift_start_minute"`
	ShiftEndMinute   int `gorm:"not null;default:0" json:"shift_end_minute"`
	GraceMinutes     int `gorm:"not null;default:0" json:"grace_minutes"`

	WorkingHours decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"working_hours"`
	DelayMinutes int                 `gorm:"not null;default:0" json:"delay_minutes"`

	Status       AttendanceStatus `gorm:"type:enum('OnTime','Late','Absent','OnLeave');not null" json:"status"`
	SourceDevice string           `gorm:"size:64" json:"source_device"`
	SyncState    SyncState        `gorm:"type:enum('Synced','Pending','Conflict');not null;default:'Synced';index" json:"sync_state"`
	Notes        string           `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MaxWorkedHours bounds a plausible single-day duration. Durations outside
// (0, MaxWorkedHours] indicate a corrupt device clock and are rejected.
const MaxWorkedHours = 24

// DateOf normalizes a timestamp to midnight of its calendar day in the
// facility's zone. Attendance dates must always pass through here so the
// unique (employee, date) index compares like for like.
func DateOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DelayMinutesFor computes whole minutes a check-in fell after shift start
// plus grace. Zero for on-time or early check-ins. Partial minutes count:
// one second past the grace window is already a 1-minute delay.
func DelayMinutesFor(checkIn time.Time, day time.Time, shiftStartMinute int, graceMinutes int) int {
	cutoff := day.Add(time.Duration(shiftStartMinute+graceMinutes) * time.Minute)
	if !checkIn.After(cutoff) {
		return 0
	}
	delay := checkIn.Sub(cutoff)
	minutes := int(delay / time.Minute)
	if delay%time.Minute != 0 {
		minutes++
	}
	return minutes
}

// ClassifyCheckIn derives the status for a checked-in record.
func ClassifyCheckIn(delayMinutes int) AttendanceStatus {
	if delayMinutes > 0 {
		return AttendanceStatusLate
	}
	return AttendanceStatusOnTime
}

// WorkingHoursBetween computes the worked duration in hours, rounded to
// two decimals. Returns ErrCheckOutBeforeCheckIn when out <= in and
// ErrImplausibleDuration when the span exceeds MaxWorkedHours; values are
// rejected, not clamped, so device clock errors stay visible.
func WorkingHoursBetween(in time.Time, out time.Time) (decimal.Decimal, error) {
	if !out.After(in) {
		return decimal.Zero, ErrCheckOutBeforeCheckIn
	}
	span := out.Sub(in)
	if span > MaxWorkedHours*time.Hour {
		return decimal.Zero, ErrImplausibleDuration
	}
	return decimal.NewFromFloat(span.Hours()).Round(2), nil
}

// GetAttendanceRange returns an employee's records ordered by date
// ascending. The result is finite and restartable: re-querying yields the
// same sequence unless records changed.
func GetAttendanceRange(ctx context.Context, employeeId int, startDate time.Time, endDate time.Time) ([]*AttendanceRecord, error) {
	var records []*AttendanceRecord
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&AttendanceRecord{}).
		Where("employee_id = ? AND attendance_date >= ? AND attendance_date <= ?", employeeId, startDate, endDate).
		Order("attendance_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func GetAttendanceRecord(ctx context.Context, id int) (*AttendanceRecord, error) {
	var record AttendanceRecord
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&AttendanceRecord{}).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetAttendanceByEmployeeDate looks up the one record an employee can
// hold for a calendar day. day must be a DateOf-normalized date.
func GetAttendanceByEmployeeDate(ctx context.Context, employeeId int, day time.Time) (*AttendanceRecord, error) {
	var record AttendanceRecord
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&AttendanceRecord{}).
		Where("employee_id = ? AND attendance_date = ?", employeeId, day).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// CorrectAttendanceRecord applies an administrative correction inside a
// transaction and writes a History row. Corrections are never silent; the
// before/after snapshots make the audit trail reconstructable.
func CorrectAttendanceRecord(ctx context.Context, id int, mutate func(*AttendanceRecord) error, description string) (*AttendanceRecord, error) {
	db := config.GetDB()
	var corrected *AttendanceRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record AttendanceRecord
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			return err
		}
		before := record

		if err := mutate(&record); err != nil {
			return err
		}

		// A moved check-in re-derives delay and status from the frozen
		// shift snapshot; leave days keep their status.
		checkInMoved := (record.CheckIn == nil) != (before.CheckIn == nil) ||
			(record.CheckIn != nil && before.CheckIn != nil && !record.CheckIn.Equal(*before.CheckIn))
		if checkInMoved && record.CheckIn != nil && record.Status != AttendanceStatusOnLeave {
			record.DelayMinutes = DelayMinutesFor(*record.CheckIn, record.AttendanceDate, record.ShiftStartMinute, record.GraceMinutes)
			record.Status = ClassifyCheckIn(record.DelayMinutes)
		}

		// Re-derive working hours whenever both stamps are present.
		if record.CheckIn != nil && record.CheckOut != nil {
			hours, err := WorkingHoursBetween(*record.CheckIn, *record.CheckOut)
			if err != nil {
				return err
			}
			record.WorkingHours = decimal.NewNullDecimal(hours)
		} else {
			record.WorkingHours = decimal.NullDecimal{}
		}

		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		if err := createHistory(ctx, tx, "UPDATE", record.ID, "AttendanceRecord", before, record, description); err != nil {
			return err
		}
		corrected = &record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return corrected, nil
}
