package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"gorm.io/gorm"
)

// Employee is the directory entry the attendance engine resolves device
// events against. DeviceEmployeeId is the opaque stable identifier the
// fingerprint device reports; biometric matching happens on the device.
type Employee struct {
	ID               int       `gorm:"primary_key" json:"id"`
	Name             string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email            *string   `gorm:"size:100;unique" json:"email"`
	Phone            string    `gorm:"size:20" json:"phone"`
	DeviceEmployeeId string    `gorm:"size:64;not null;unique" json:"device_employee_id"`
	ShiftId          int       `gorm:"not null;default:0;index" json:"shift_id"`
	IsActive         *bool     `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEmployee struct {
	Name             string  `json:"name" binding:"required"`
	Email            *string `json:"email"`
	Phone            string  `json:"phone"`
	DeviceEmployeeId string  `json:"device_employee_id" binding:"required"`
	ShiftId          int     `json:"shift_id"`
	IsActive         *bool   `json:"is_active" binding:"required"`
}

// GetEmployeeByDeviceId resolves a device-reported identifier. Inactive
// employees resolve the same as unknown ones: devices keep stale ids around
// long after offboarding.
func GetEmployeeByDeviceId(ctx context.Context, deviceEmployeeId string) (*Employee, error) {
	deviceEmployeeId = strings.TrimSpace(deviceEmployeeId)
	if deviceEmployeeId == "" {
		return nil, fmt.Errorf("empty device employee id: %w", ErrUnknownEmployee)
	}

	var employee Employee
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&Employee{}).
		Where("device_employee_id = ?", deviceEmployeeId).
		First(&employee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("device employee id %q: %w", deviceEmployeeId, ErrUnknownEmployee)
		}
		return nil, err
	}
	if employee.IsActive == nil || !*employee.IsActive {
		return nil, fmt.Errorf("device employee id %q is inactive: %w", deviceEmployeeId, ErrUnknownEmployee)
	}
	return &employee, nil
}

func GetEmployee(ctx context.Context, id int) (*Employee, error) {
	var employee Employee
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Employee{}).Where("id = ?", id).First(&employee).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &employee, nil
}

func CreateEmployee(ctx context.Context, input NewEmployee) (*Employee, error) {
	if input.Email != nil && !utils.IsValidEmail(*input.Email) {
		return nil, errors.New("invalid email")
	}
	if err := utils.ValidateUnique[Employee](ctx, "device_employee_id", input.DeviceEmployeeId, 0); err != nil {
		return nil, err
	}
	if input.ShiftId != 0 {
		if err := utils.ValidateResourceId[Shift](ctx, input.ShiftId); err != nil {
			return nil, err
		}
	}

	employee := Employee{
		Name:             input.Name,
		Email:            input.Email,
		Phone:            input.Phone,
		DeviceEmployeeId: strings.TrimSpace(input.DeviceEmployeeId),
		ShiftId:          input.ShiftId,
		IsActive:         input.IsActive,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

func UpdateEmployee(ctx context.Context, id int, input NewEmployee) (*Employee, error) {
	employee, err := GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Email != nil && !utils.IsValidEmail(*input.Email) {
		return nil, errors.New("invalid email")
	}
	if err := utils.ValidateUnique[Employee](ctx, "device_employee_id", input.DeviceEmployeeId, id); err != nil {
		return nil, err
	}
	if input.ShiftId != 0 {
		if err := utils.ValidateResourceId[Shift](ctx, input.ShiftId); err != nil {
			return nil, err
		}
	}

	employee.Name = input.Name
	employee.Email = input.Email
	employee.Phone = input.Phone
	employee.DeviceEmployeeId = strings.TrimSpace(input.DeviceEmployeeId)
	employee.ShiftId = input.ShiftId
	employee.IsActive = input.IsActive

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(employee).Error; err != nil {
		return nil, err
	}
	return employee, nil
}

// AssignShift changes the employee's current shift. Existing attendance
// records keep the shift snapshot they were classified with.
func AssignShift(ctx context.Context, employeeId int, shiftId int) (*Employee, error) {
	employee, err := GetEmployee(ctx, employeeId)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Shift](ctx, shiftId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Employee{}).
		Where("id = ?", employeeId).
		Update("shift_id", shiftId).Error; err != nil {
		return nil, err
	}
	employee.ShiftId = shiftId
	return employee, nil
}

func ListEmployees(ctx context.Context, limit int, offset int) ([]*Employee, error) {
	if limit <= 0 || limit > 200 {
		limit = config.SearchLimit
	}
	var employees []*Employee
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&Employee{}).
		Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&employees).Error
	if err != nil {
		return nil, err
	}
	return employees, nil
}

// ListActiveEmployees returns every active employee; used by the close-out
// sweep, which must consider the whole roster.
func ListActiveEmployees(ctx context.Context) ([]*Employee, error) {
	var employees []*Employee
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&Employee{}).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&employees).Error
	if err != nil {
		return nil, err
	}
	return employees, nil
}
