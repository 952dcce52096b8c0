// closeout-sweep finalizes one attendance day: every active employee
// without a record gets Absent, or OnLeave when an approved leave covers
// the day. Intended to run from a scheduler shortly after the facility's
// close-out hour; re-running for the same day is a no-op.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/closeout-sweep -date 2026-08-31
//
// With no -date the sweep targets yesterday in the facility timezone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"bitbucket.org/mmdatafocus/hrm_backend/workflow"
)

func main() {
	dateArg := flag.String("date", "", "Day to close out (YYYY-MM-DD). Defaults to yesterday in the facility timezone.")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	logger := config.GetLogger()
	facility, err := config.LoadFacilitySettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "facility settings: %v\n", err)
		os.Exit(1)
	}

	day := time.Now().In(facility.Location).AddDate(0, 0, -1)
	if strings.TrimSpace(*dateArg) != "" {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(*dateArg), facility.Location)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -date %q: %v\n", *dateArg, err)
			os.Exit(1)
		}
		day = parsed
	}

	ctx := utils.SetUserIdInContext(context.Background(), 0)
	ctx = utils.SetUserNameInContext(ctx, "CloseOutSweep")

	engine := workflow.NewAttendanceEngine(db, logger, facility, nil)
	created, err := engine.CloseOutDay(ctx, day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "close-out failed for %s: %v\n", day.Format("2006-01-02"), err)
		os.Exit(1)
	}

	absent, onLeave := 0, 0
	for _, r := range created {
		switch r.Status {
		case models.AttendanceStatusAbsent:
			absent++
		case models.AttendanceStatusOnLeave:
			onLeave++
		}
	}
	fmt.Printf("Closed out %s: %d record(s) created (%d absent, %d on leave)\n",
		day.Format("2006-01-02"), len(created), absent, onLeave)
}
