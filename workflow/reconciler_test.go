package workflow_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"bitbucket.org/mmdatafocus/hrm_backend/workflow"
)

func TestDecideCheckInReplay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Yangon")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	existingIn := time.Date(2026, 3, 9, 9, 5, 0, 0, loc)

	record := func(state models.SyncState) *models.AttendanceRecord {
		in := existingIn
		return &models.AttendanceRecord{CheckIn: &in, SyncState: state}
	}

	cases := []struct {
		name    string
		rec     *models.AttendanceRecord
		eventTs time.Time
		want    workflow.ReplayDecision
	}{
		{"later event is duplicate", record(models.SyncStatePending), existingIn.Add(time.Minute), workflow.ReplayDuplicate},
		{"equal event is duplicate", record(models.SyncStateSynced), existingIn, workflow.ReplayDuplicate},
		{"earlier event supersedes pending", record(models.SyncStatePending), existingIn.Add(-3 * time.Minute), workflow.ReplaySupersede},
		{"earlier event conflicts with synced", record(models.SyncStateSynced), existingIn.Add(-3 * time.Minute), workflow.ReplayConflict},
		{"earlier event conflicts with already-conflicted", record(models.SyncStateConflict), existingIn.Add(-3 * time.Minute), workflow.ReplayConflict},
		{"no check-in is duplicate", &models.AttendanceRecord{SyncState: models.SyncStatePending}, existingIn, workflow.ReplayDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := workflow.DecideCheckInReplay(tc.rec, tc.eventTs)
			if got != tc.want {
				t.Fatalf("DecideCheckInReplay = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestDecideCheckOutReplay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Yangon")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	out := time.Date(2026, 3, 9, 17, 5, 0, 0, loc)

	closed := func() *models.AttendanceRecord {
		ts := out
		return &models.AttendanceRecord{CheckOut: &ts, Status: models.AttendanceStatusOnTime, SyncState: models.SyncStateSynced}
	}
	onLeave := &models.AttendanceRecord{Status: models.AttendanceStatusOnLeave, SyncState: models.SyncStateSynced}

	cases := []struct {
		name    string
		rec     *models.AttendanceRecord
		eventTs time.Time
		want    workflow.ReplayDecision
	}{
		{"matching timestamp is duplicate", closed(), out, workflow.ReplayDuplicate},
		{"later timestamp conflicts", closed(), out.Add(15 * time.Minute), workflow.ReplayConflict},
		{"earlier timestamp conflicts", closed(), out.Add(-15 * time.Minute), workflow.ReplayConflict},
		{"leave day is duplicate", onLeave, out, workflow.ReplayDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := workflow.DecideCheckOutReplay(tc.rec, tc.eventTs)
			if got != tc.want {
				t.Fatalf("DecideCheckOutReplay = %v; want %v", got, tc.want)
			}
		})
	}
}
