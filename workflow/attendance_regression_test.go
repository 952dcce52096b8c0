package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"bitbucket.org/mmdatafocus/hrm_backend/workflow"
)

// Regression: the full event lifecycle against a real MySQL. One record
// per (employee, day), late classification, derived hours, idempotent
// close-out, leave precedence and batch reconciliation.
func TestAttendanceLifecycle_Regression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "hrm_test")
	t.Setenv("FACILITY_TIMEZONE", "Asia/Yangon")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	facility, err := config.LoadFacilitySettings()
	if err != nil {
		t.Fatalf("LoadFacilitySettings: %v", err)
	}
	loc := facility.Location
	engine := workflow.NewAttendanceEngine(config.GetDB(), config.GetLogger(), facility, nil)

	shift, err := models.CreateShift(ctx, models.NewShift{
		Name:         "Day Shift",
		StartMinute:  9 * 60,
		EndMinute:    17 * 60,
		GraceMinutes: 10,
		IsActive:     utils.BoolPtr(true),
	})
	if err != nil {
		t.Fatalf("CreateShift: %v", err)
	}

	newEmployee := func(name, deviceId string) *models.Employee {
		e, err := models.CreateEmployee(ctx, models.NewEmployee{
			Name:             name,
			DeviceEmployeeId: deviceId,
			ShiftId:          shift.ID,
			IsActive:         utils.BoolPtr(true),
		})
		if err != nil {
			t.Fatalf("CreateEmployee(%s): %v", name, err)
		}
		return e
	}

	aung := newEmployee("Aung Kyaw", "FP-001")
	su := newEmployee("Su Myat", "FP-002")
	thida := newEmployee("Thida Win", "FP-003")
	kyaw := newEmployee("Kyaw Zin", "FP-004")
	moe := newEmployee("Moe Thu", "FP-005")

	day := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)

	// Late check-in: 09:12 against 09:00 start + 10 grace is a 2-minute delay.
	record, err := engine.RecordCheckIn(ctx, "FP-001", day.Add(9*time.Hour+12*time.Minute), "gate-1", models.SyncStateSynced)
	if err != nil {
		t.Fatalf("RecordCheckIn: %v", err)
	}
	if record.Status != models.AttendanceStatusLate {
		t.Fatalf("status = %s; want Late", record.Status)
	}
	if record.DelayMinutes != 2 {
		t.Fatalf("delay = %d; want 2", record.DelayMinutes)
	}
	if record.ShiftStartMinute != 9*60 || record.GraceMinutes != 10 {
		t.Fatalf("shift snapshot not frozen: start=%d grace=%d", record.ShiftStartMinute, record.GraceMinutes)
	}

	// Repeat check-in must keep the first record untouched.
	dup, err := engine.RecordCheckIn(ctx, "FP-001", day.Add(9*time.Hour+30*time.Minute), "gate-1", models.SyncStateSynced)
	if !errors.Is(err, models.ErrDuplicateCheckIn) {
		t.Fatalf("repeat check-in: got %v; want ErrDuplicateCheckIn", err)
	}
	if dup == nil || dup.ID != record.ID {
		t.Fatalf("duplicate did not return existing record")
	}
	if !dup.CheckIn.Equal(*record.CheckIn) {
		t.Fatalf("duplicate mutated check-in: %v != %v", dup.CheckIn, record.CheckIn)
	}

	// Check-out at 17:02 derives 7.83 worked hours.
	out, err := engine.RecordCheckOut(ctx, "FP-001", day.Add(17*time.Hour+2*time.Minute), "gate-1")
	if err != nil {
		t.Fatalf("RecordCheckOut: %v", err)
	}
	if !out.WorkingHours.Valid || out.WorkingHours.Decimal.StringFixed(2) != "7.83" {
		t.Fatalf("working hours = %v; want 7.83", out.WorkingHours)
	}

	// A second check-out has no open record to close.
	if _, err := engine.RecordCheckOut(ctx, "FP-001", day.Add(18*time.Hour), "gate-1"); !errors.Is(err, models.ErrNoOpenCheckIn) {
		t.Fatalf("second check-out: got %v; want ErrNoOpenCheckIn", err)
	}

	// Unknown device ids are rejected before touching the ledger.
	if _, err := engine.RecordCheckIn(ctx, "FP-999", day.Add(9*time.Hour), "gate-1", models.SyncStateSynced); !errors.Is(err, models.ErrUnknownEmployee) {
		t.Fatalf("unknown device: got %v; want ErrUnknownEmployee", err)
	}

	// Approved leave takes precedence over device events.
	leave, err := models.CreateLeaveRequest(ctx, models.NewLeaveRequest{
		EmployeeId: thida.ID,
		StartDate:  "2026-03-09",
		EndDate:    "2026-03-09",
		Reason:     "medical",
	}, loc)
	if err != nil {
		t.Fatalf("CreateLeaveRequest: %v", err)
	}
	if _, err := models.ApproveLeaveRequest(ctx, leave.ID, 1); err != nil {
		t.Fatalf("ApproveLeaveRequest: %v", err)
	}
	if _, err := engine.RecordCheckIn(ctx, "FP-003", day.Add(9*time.Hour), "gate-1", models.SyncStateSynced); !errors.Is(err, models.ErrCoveredByLeave) {
		t.Fatalf("check-in on leave day: got %v; want ErrCoveredByLeave", err)
	}

	// Batch replay, delivered out of order: the earlier check-in must win
	// regardless of buffer order, the later one counts as duplicate.
	report, err := engine.IngestBatch(ctx, "gate-2", []workflow.BatchEvent{
		{DeviceEmployeeId: "FP-004", EventType: models.AttendanceEventIn, Timestamp: day.Add(9*time.Hour + 30*time.Minute)},
		{DeviceEmployeeId: "FP-004", EventType: models.AttendanceEventIn, Timestamp: day.Add(9*time.Hour + 3*time.Minute)},
		{DeviceEmployeeId: "FP-004", EventType: models.AttendanceEventOut, Timestamp: day.Add(17*time.Hour + 5*time.Minute)},
	})
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if report.Applied != 2 || report.Duplicate != 1 || report.Conflicted != 0 {
		t.Fatalf("report = %+v; want applied=2 duplicate=1 conflicted=0", report)
	}
	kyawRec, err := models.GetAttendanceByEmployeeDate(ctx, kyaw.ID, day)
	if err != nil {
		t.Fatalf("fetch batch record: %v", err)
	}
	if !kyawRec.CheckIn.Equal(day.Add(9*time.Hour + 3*time.Minute)) {
		t.Fatalf("batch check-in = %v; want 09:03", kyawRec.CheckIn)
	}
	if kyawRec.Status != models.AttendanceStatusOnTime {
		t.Fatalf("batch status = %s; want OnTime (inside grace)", kyawRec.Status)
	}
	if kyawRec.SyncState != models.SyncStateSynced {
		t.Fatalf("batch record sync state = %s; want Synced after clean batch", kyawRec.SyncState)
	}

	// An earlier replayed check-in against a confirmed record is a
	// conflict: queued for review, record parked as Conflict.
	if _, err := engine.RecordCheckIn(ctx, "FP-005", day.Add(9*time.Hour+10*time.Minute), "gate-1", models.SyncStateSynced); err != nil {
		t.Fatalf("RecordCheckIn (moe): %v", err)
	}
	report, err = engine.IngestBatch(ctx, "gate-2", []workflow.BatchEvent{
		{DeviceEmployeeId: "FP-005", EventType: models.AttendanceEventIn, Timestamp: day.Add(9 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("IngestBatch (conflict): %v", err)
	}
	if report.Conflicted != 1 {
		t.Fatalf("report = %+v; want conflicted=1", report)
	}
	moeRec, err := models.GetAttendanceByEmployeeDate(ctx, moe.ID, day)
	if err != nil {
		t.Fatalf("fetch conflicted record: %v", err)
	}
	if moeRec.SyncState != models.SyncStateConflict {
		t.Fatalf("sync state = %s; want Conflict", moeRec.SyncState)
	}
	if !moeRec.CheckIn.Equal(day.Add(9*time.Hour + 10*time.Minute)) {
		t.Fatalf("conflict overwrote confirmed check-in: %v", moeRec.CheckIn)
	}

	conflicts, err := models.ListOpenSyncConflicts(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListOpenSyncConflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("open conflicts = %d; want 1", len(conflicts))
	}
	if _, err := engine.ResolveConflict(ctx, conflicts[0].ID, "verified badge photo; keep 09:10"); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	moeRec, err = models.GetAttendanceByEmployeeDate(ctx, moe.ID, day)
	if err != nil {
		t.Fatalf("re-fetch resolved record: %v", err)
	}
	if moeRec.SyncState != models.SyncStateSynced {
		t.Fatalf("sync state after resolve = %s; want Synced", moeRec.SyncState)
	}

	// Replayed check-outs against a closed day: a matching timestamp is
	// a duplicate, a differing one contradicts the recorded check-out
	// and is queued for review instead of being dropped.
	report, err = engine.IngestBatch(ctx, "gate-2", []workflow.BatchEvent{
		{DeviceEmployeeId: "FP-004", EventType: models.AttendanceEventOut, Timestamp: day.Add(17*time.Hour + 5*time.Minute)},
		{DeviceEmployeeId: "FP-004", EventType: models.AttendanceEventOut, Timestamp: day.Add(17*time.Hour + 20*time.Minute)},
	})
	if err != nil {
		t.Fatalf("IngestBatch (check-out replay): %v", err)
	}
	if report.Duplicate != 1 || report.Conflicted != 1 {
		t.Fatalf("report = %+v; want duplicate=1 conflicted=1", report)
	}
	kyawRec, err = models.GetAttendanceByEmployeeDate(ctx, kyaw.ID, day)
	if err != nil {
		t.Fatalf("re-fetch batch record: %v", err)
	}
	if kyawRec.SyncState != models.SyncStateConflict {
		t.Fatalf("sync state = %s; want Conflict after contradicting check-out", kyawRec.SyncState)
	}
	if !kyawRec.CheckOut.Equal(day.Add(17*time.Hour + 5*time.Minute)) {
		t.Fatalf("conflict overwrote recorded check-out: %v", kyawRec.CheckOut)
	}

	// Close-out: Su produced no events and gets Absent; Thida is covered
	// by leave. Running the sweep twice must not create more rows.
	created, err := engine.CloseOutDay(ctx, day)
	if err != nil {
		t.Fatalf("CloseOutDay: %v", err)
	}
	byEmployee := map[int]models.AttendanceStatus{}
	for _, r := range created {
		byEmployee[r.EmployeeId] = r.Status
	}
	if byEmployee[su.ID] != models.AttendanceStatusAbsent {
		t.Fatalf("su status = %s; want Absent", byEmployee[su.ID])
	}
	if _, ok := byEmployee[aung.ID]; ok {
		t.Fatalf("close-out created a record for an employee with events")
	}
	// Thida: leave approval already synthesized OnLeave, so close-out
	// skips her; whichever path created it, the row must say OnLeave.
	thidaRec, err := models.GetAttendanceByEmployeeDate(ctx, thida.ID, day)
	if err != nil {
		t.Fatalf("fetch leave record: %v", err)
	}
	if thidaRec.Status != models.AttendanceStatusOnLeave {
		t.Fatalf("thida status = %s; want OnLeave", thidaRec.Status)
	}

	again, err := engine.CloseOutDay(ctx, day)
	if err != nil {
		t.Fatalf("CloseOutDay (second run): %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second close-out created %d records; want 0", len(again))
	}

	// Range query is date-ascending and bounded.
	records, err := engine.QueryRange(ctx, aung.ID, day.AddDate(0, 0, -7), day)
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("range records = %d; want 1", len(records))
	}

	// A corrected check-in re-derives delay and status from the frozen
	// shift snapshot and recomputes working hours from the new stamps.
	fixedIn := day.Add(9*time.Hour + 5*time.Minute)
	corrected, err := models.CorrectAttendanceRecord(ctx, records[0].ID, func(r *models.AttendanceRecord) error {
		r.CheckIn = &fixedIn
		return nil
	}, "badge reader clock ran 7 minutes fast")
	if err != nil {
		t.Fatalf("CorrectAttendanceRecord: %v", err)
	}
	if corrected.DelayMinutes != 0 {
		t.Fatalf("corrected delay = %d; want 0", corrected.DelayMinutes)
	}
	if corrected.Status != models.AttendanceStatusOnTime {
		t.Fatalf("corrected status = %s; want OnTime", corrected.Status)
	}
	if got := corrected.WorkingHours.Decimal.StringFixed(2); got != "7.95" {
		t.Fatalf("corrected working hours = %s; want 7.95", got)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("hrm-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("hrm-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=hrm_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
