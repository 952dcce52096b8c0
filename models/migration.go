package models

import (
	"log"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Employee{}, &Shift{},
		&AttendanceRecord{}, &SyncConflict{}, &AttendanceAlert{},
		&LeaveRequest{},
		&History{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
