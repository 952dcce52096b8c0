package config_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
)

func TestLoadFacilitySettings_Defaults(t *testing.T) {
	t.Setenv("FACILITY_TIMEZONE", "")
	t.Setenv("FACILITY_CLOSEOUT_HOUR", "")
	t.Setenv("FACILITY_DEFAULT_GRACE_MINUTES", "")

	settings, err := config.LoadFacilitySettings()
	if err != nil {
		t.Fatalf("LoadFacilitySettings: %v", err)
	}
	if settings.Location.String() != "Asia/Yangon" {
		t.Fatalf("default timezone = %s; want Asia/Yangon", settings.Location)
	}
	if settings.CloseOutHour != 22 {
		t.Fatalf("default close-out hour = %d; want 22", settings.CloseOutHour)
	}
	if settings.DefaultGraceMinutes != 0 {
		t.Fatalf("default grace = %d; want 0", settings.DefaultGraceMinutes)
	}
}

func TestLoadFacilitySettings_Overrides(t *testing.T) {
	t.Setenv("FACILITY_TIMEZONE", "Asia/Jakarta")
	t.Setenv("FACILITY_CLOSEOUT_HOUR", "23")
	t.Setenv("FACILITY_DEFAULT_GRACE_MINUTES", "15")

	settings, err := config.LoadFacilitySettings()
	if err != nil {
		t.Fatalf("LoadFacilitySettings: %v", err)
	}
	if settings.Location.String() != "Asia/Jakarta" {
		t.Fatalf("timezone = %s; want Asia/Jakarta", settings.Location)
	}
	if settings.CloseOutHour != 23 {
		t.Fatalf("close-out hour = %d; want 23", settings.CloseOutHour)
	}
	if settings.DefaultGraceMinutes != 15 {
		t.Fatalf("grace = %d; want 15", settings.DefaultGraceMinutes)
	}
}

func TestLoadFacilitySettings_RejectsBadValues(t *testing.T) {
	t.Setenv("FACILITY_TIMEZONE", "Not/AZone")
	if _, err := config.LoadFacilitySettings(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}

	t.Setenv("FACILITY_TIMEZONE", "")
	t.Setenv("FACILITY_CLOSEOUT_HOUR", "24")
	if _, err := config.LoadFacilitySettings(); err == nil {
		t.Fatal("expected error for out-of-range close-out hour")
	}
}
