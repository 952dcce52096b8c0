package workflow

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AcquireEmployeeDayLock serializes the read-modify-write for one
// (employee, day) across instances using MySQL advisory locks. Two
// concurrent check-ins for the same employee-day must not both create a
// record; the unique index is the backstop, this lock avoids burning the
// insert on the common path.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB (transaction) that will do the write.
func AcquireEmployeeDayLock(tx *gorm.DB, employeeId int, day time.Time) error {
	lockName := employeeDayLockName(employeeId, day)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 10)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire attendance lock for employee_id=%d day=%s", employeeId, day.Format("2006-01-02"))
	}
	return nil
}

func ReleaseEmployeeDayLock(tx *gorm.DB, employeeId int, day time.Time) {
	lockName := employeeDayLockName(employeeId, day)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

func employeeDayLockName(employeeId int, day time.Time) string {
	return fmt.Sprintf("attendance:%d:%s", employeeId, day.Format("2006-01-02"))
}
