package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"gorm.io/gorm"
)

// Shift is a daily work-time window. Start/End are stored as minutes from
// local midnight so a definition is zone-independent; overnight shifts
// (end <= start) wrap to the next day.
type Shift struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:100;not null;unique" json:"name" binding:"required"`
	StartMinute  int       `gorm:"not null" json:"start_minute"`
	EndMinute    int       `gorm:"not null" json:"end_minute"`
	GraceMinutes int       `gorm:"not null;default:0" json:"grace_minutes"`
	IsActive     *bool     `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewShift struct {
	Name         string `json:"name" binding:"required"`
	StartMinute  int    `json:"start_minute" binding:"min=0,max=1439"`
	EndMinute    int    `json:"end_minute" binding:"min=0,max=1439"`
	GraceMinutes int    `json:"grace_minutes" binding:"min=0"`
	IsActive     *bool  `json:"is_active" binding:"required"`
}

func (s Shift) Validate() error {
	if s.StartMinute < 0 || s.StartMinute > 23*60+59 {
		return fmt.Errorf("shift start out of range: %d", s.StartMinute)
	}
	if s.EndMinute < 0 || s.EndMinute > 23*60+59 {
		return fmt.Errorf("shift end out of range: %d", s.EndMinute)
	}
	if s.GraceMinutes < 0 {
		return fmt.Errorf("grace minutes must be non-negative: %d", s.GraceMinutes)
	}
	return nil
}

// StartOn returns the shift's start instant on the given calendar day.
// day must already be midnight in the facility zone.
func (s Shift) StartOn(day time.Time) time.Time {
	return day.Add(time.Duration(s.StartMinute) * time.Minute)
}

// EndOn returns the shift's end instant on the given calendar day,
// rolling to the next day for overnight shifts.
func (s Shift) EndOn(day time.Time) time.Time {
	end := day.Add(time.Duration(s.EndMinute) * time.Minute)
	if s.EndMinute <= s.StartMinute {
		end = end.Add(24 * time.Hour)
	}
	return end
}

func GetShift(ctx context.Context, id int) (*Shift, error) {
	var shift Shift
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Shift{}).Where("id = ?", id).First(&shift).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func CreateShift(ctx context.Context, input NewShift) (*Shift, error) {
	shift := Shift{
		Name:         input.Name,
		StartMinute:  input.StartMinute,
		EndMinute:    input.EndMinute,
		GraceMinutes: input.GraceMinutes,
		IsActive:     input.IsActive,
	}
	if err := shift.Validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Shift](ctx, "name", input.Name, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&shift).Error; err != nil {
		return nil, err
	}
	return &shift, nil
}

func UpdateShift(ctx context.Context, id int, input NewShift) (*Shift, error) {
	shift, err := GetShift(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Shift](ctx, "name", input.Name, id); err != nil {
		return nil, err
	}

	shift.Name = input.Name
	shift.StartMinute = input.StartMinute
	shift.EndMinute = input.EndMinute
	shift.GraceMinutes = input.GraceMinutes
	shift.IsActive = input.IsActive
	if err := shift.Validate(); err != nil {
		return nil, err
	}

	// NOTE: shift reassignment or edits never rewrite attendance history:
	// each AttendanceRecord carries a frozen snapshot of the shift window it
	// was classified against.
	db := config.GetDB()
	if err := db.WithContext(ctx).Save(shift).Error; err != nil {
		return nil, err
	}
	return shift, nil
}

func ListShifts(ctx context.Context) ([]*Shift, error) {
	var shifts []*Shift
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Shift{}).Order("id ASC").Find(&shifts).Error; err != nil {
		return nil, err
	}
	return shifts, nil
}
