package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// LeaveRequest covers an inclusive date range. The attendance engine only
// consults approved requests; the approval workflow itself is a thin CRUD
// collaborator.
type LeaveRequest struct {
	ID         int         `gorm:"primary_key" json:"id"`
	EmployeeId int         `gorm:"not null;index" json:"employee_id"`
	StartDate  time.Time   `gorm:"type:date;not null" json:"start_date"`
	EndDate    time.Time   `gorm:"type:date;not null" json:"end_date"`
	Status     LeaveStatus `gorm:"type:enum('Pending','Approved','Rejected');not null;default:'Pending'" json:"status"`
	Reason     string      `gorm:"type:text" json:"reason"`
	ApprovedBy int         `gorm:"default:0" json:"approved_by"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLeaveRequest struct {
	EmployeeId int    `json:"employee_id" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate    string `json:"end_date" binding:"required"`   // YYYY-MM-DD
	Reason     string `json:"reason"`
}

// IsOnApprovedLeave reports whether the employee has an approved leave
// request covering the given calendar day.
func IsOnApprovedLeave(ctx context.Context, employeeId int, date time.Time) (bool, error) {
	var count int64
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&LeaveRequest{}).
		Where("employee_id = ? AND status = ? AND start_date <= ? AND end_date >= ?",
			employeeId, LeaveStatusApproved, date, date).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func CreateLeaveRequest(ctx context.Context, input NewLeaveRequest, loc *time.Location) (*LeaveRequest, error) {
	if err := utils.ValidateResourceId[Employee](ctx, input.EmployeeId); err != nil {
		return nil, err
	}
	start, err := time.ParseInLocation("2006-01-02", input.StartDate, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", input.EndDate, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid end_date: %w", err)
	}
	if end.Before(start) {
		return nil, errors.New("end_date before start_date")
	}

	leave := LeaveRequest{
		EmployeeId: input.EmployeeId,
		StartDate:  start,
		EndDate:    end,
		Status:     LeaveStatusPending,
		Reason:     input.Reason,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&leave).Error; err != nil {
		return nil, err
	}
	return &leave, nil
}

// ApproveLeaveRequest marks the request approved and synthesizes OnLeave
// ledger records for every covered day that has no record yet. Days that
// already have a record (the employee worked before leave was granted) are
// left alone; the close-out sweep reports them as recorded.
func ApproveLeaveRequest(ctx context.Context, id int, approverUserId int) (*LeaveRequest, error) {
	db := config.GetDB()
	var leave LeaveRequest
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&leave).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if leave.Status == LeaveStatusApproved {
			return nil // idempotent
		}
		if leave.Status == LeaveStatusRejected {
			return errors.New("leave request already rejected")
		}

		if err := tx.Model(&LeaveRequest{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"status": LeaveStatusApproved, "approved_by": approverUserId}).Error; err != nil {
			return err
		}
		leave.Status = LeaveStatusApproved
		leave.ApprovedBy = approverUserId

		for day := leave.StartDate; !day.After(leave.EndDate); day = day.AddDate(0, 0, 1) {
			record := AttendanceRecord{
				EmployeeId:     leave.EmployeeId,
				AttendanceDate: day,
				Status:         AttendanceStatusOnLeave,
				SyncState:      SyncStateSynced,
				SourceDevice:   "leave-approval",
			}
			if err := tx.Create(&record).Error; err != nil {
				if IsDuplicateKeyErr(err) {
					// A record already exists for that day; keep it.
					continue
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &leave, nil
}

func RejectLeaveRequest(ctx context.Context, id int, approverUserId int) (*LeaveRequest, error) {
	db := config.GetDB()
	var leave LeaveRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&leave).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if leave.Status == LeaveStatusApproved {
		return nil, errors.New("leave request already approved")
	}
	if err := db.WithContext(ctx).Model(&LeaveRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": LeaveStatusRejected, "approved_by": approverUserId}).Error; err != nil {
		return nil, err
	}
	leave.Status = LeaveStatusRejected
	return &leave, nil
}

// IsDuplicateKeyErr matches MySQL error 1062 (duplicate entry). The unique
// (employee_id, attendance_date) index is the hard backstop for the
// one-record-per-day invariant; callers treat 1062 as "lost the race".
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
