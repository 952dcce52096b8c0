package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// FacilitySettings is the explicit runtime configuration of a facility.
// It is loaded once in main() and passed into the attendance engine at
// construction; engine code must not read env vars or globals for these.
type FacilitySettings struct {
	// Location is the facility's local time zone. Attendance dates are
	// normalized to midnight in this zone.
	Location *time.Location

	// CloseOutHour is the local hour (0-23) after which the daily close-out
	// sweep is allowed to run. The sweep itself is triggered externally
	// (scheduler or cmd/closeout-sweep); the engine only records the policy.
	CloseOutHour int

	// DefaultGraceMinutes is applied when a shift definition predates the
	// grace_minutes column and stores zero.
	DefaultGraceMinutes int
}

// LoadFacilitySettings reads facility configuration from env:
// - FACILITY_TIMEZONE (IANA name, default Asia/Yangon)
// - FACILITY_CLOSEOUT_HOUR (default 22)
// - FACILITY_DEFAULT_GRACE_MINUTES (default 0)
func LoadFacilitySettings() (FacilitySettings, error) {
	tz := strings.TrimSpace(os.Getenv("FACILITY_TIMEZONE"))
	if tz == "" {
		tz = "Asia/Yangon"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return FacilitySettings{}, fmt.Errorf("invalid FACILITY_TIMEZONE %q: %w", tz, err)
	}

	closeOutHour := intFromEnv("FACILITY_CLOSEOUT_HOUR", 22)
	if closeOutHour < 0 || closeOutHour > 23 {
		return FacilitySettings{}, fmt.Errorf("FACILITY_CLOSEOUT_HOUR out of range: %d", closeOutHour)
	}

	grace := intFromEnv("FACILITY_DEFAULT_GRACE_MINUTES", 0)
	if grace < 0 {
		return FacilitySettings{}, fmt.Errorf("FACILITY_DEFAULT_GRACE_MINUTES must be non-negative: %d", grace)
	}

	return FacilitySettings{
		Location:            loc,
		CloseOutHour:        closeOutHour,
		DefaultGraceMinutes: grace,
	}, nil
}
