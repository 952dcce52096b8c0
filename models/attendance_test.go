package models_test

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"github.com/shopspring/decimal"
)

func yangon(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Yangon")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestDateOf_NormalizesToLocalMidnight(t *testing.T) {
	loc := yangon(t)

	// 2026-03-09 23:50 local is still March 9 even though it is already
	// March 10 in UTC+offset-free terms.
	local := time.Date(2026, 3, 9, 23, 50, 0, 0, loc)
	day := models.DateOf(local.UTC(), loc)
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)
	if !day.Equal(want) {
		t.Fatalf("DateOf = %v; want %v", day, want)
	}
	if h, m, s := day.Clock(); h != 0 || m != 0 || s != 0 {
		t.Fatalf("DateOf not midnight: %02d:%02d:%02d", h, m, s)
	}
}

func TestDelayMinutesFor(t *testing.T) {
	loc := yangon(t)
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)
	shiftStart := 9 * 60

	cases := []struct {
		name    string
		checkIn time.Time
		grace   int
		want    int
	}{
		{"early", time.Date(2026, 3, 9, 8, 45, 0, 0, loc), 10, 0},
		{"exactly at start", time.Date(2026, 3, 9, 9, 0, 0, 0, loc), 10, 0},
		{"inside grace", time.Date(2026, 3, 9, 9, 10, 0, 0, loc), 10, 0},
		{"two past grace", time.Date(2026, 3, 9, 9, 12, 0, 0, loc), 10, 2},
		{"one second past grace", time.Date(2026, 3, 9, 9, 10, 1, 0, loc), 10, 1},
		{"no grace", time.Date(2026, 3, 9, 9, 0, 1, 0, loc), 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.DelayMinutesFor(tc.checkIn, day, shiftStart, tc.grace)
			if got != tc.want {
				t.Fatalf("DelayMinutesFor = %d; want %d", got, tc.want)
			}
		})
	}
}

func TestClassifyCheckIn(t *testing.T) {
	if got := models.ClassifyCheckIn(0); got != models.AttendanceStatusOnTime {
		t.Fatalf("delay 0 = %s; want OnTime", got)
	}
	if got := models.ClassifyCheckIn(1); got != models.AttendanceStatusLate {
		t.Fatalf("delay 1 = %s; want Late", got)
	}
}

func TestWorkingHoursBetween(t *testing.T) {
	loc := yangon(t)
	in := time.Date(2026, 3, 9, 9, 0, 0, 0, loc)

	hours, err := models.WorkingHoursBetween(in, in.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("WorkingHoursBetween: %v", err)
	}
	if hours.Cmp(decimal.NewFromInt(8)) != 0 {
		t.Fatalf("expected 8.00 hours; got %s", hours.String())
	}

	hours, err = models.WorkingHoursBetween(in, in.Add(7*time.Hour+50*time.Minute))
	if err != nil {
		t.Fatalf("WorkingHoursBetween: %v", err)
	}
	if hours.StringFixed(2) != "7.83" {
		t.Fatalf("expected 7.83 hours; got %s", hours.StringFixed(2))
	}
}

func TestWorkingHoursBetween_RejectsCheckOutBeforeCheckIn(t *testing.T) {
	loc := yangon(t)
	in := time.Date(2026, 3, 9, 9, 0, 0, 0, loc)

	if _, err := models.WorkingHoursBetween(in, in); !errors.Is(err, models.ErrCheckOutBeforeCheckIn) {
		t.Fatalf("equal stamps: got %v; want ErrCheckOutBeforeCheckIn", err)
	}
	if _, err := models.WorkingHoursBetween(in, in.Add(-time.Minute)); !errors.Is(err, models.ErrCheckOutBeforeCheckIn) {
		t.Fatalf("out before in: got %v; want ErrCheckOutBeforeCheckIn", err)
	}
}

func TestWorkingHoursBetween_RejectsImplausibleDuration(t *testing.T) {
	loc := yangon(t)
	in := time.Date(2026, 3, 9, 9, 0, 0, 0, loc)

	// A corrupt device clock produces a multi-day span; it must be
	// rejected outright, never clamped.
	if _, err := models.WorkingHoursBetween(in, in.Add(25*time.Hour)); !errors.Is(err, models.ErrImplausibleDuration) {
		t.Fatalf("25h span: got %v; want ErrImplausibleDuration", err)
	}
	if _, err := models.WorkingHoursBetween(in, in.Add(24*time.Hour)); err != nil {
		t.Fatalf("24h span should still be accepted: %v", err)
	}
}

func TestShiftEndOn_OvernightWrapsToNextDay(t *testing.T) {
	loc := yangon(t)
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)

	night := models.Shift{StartMinute: 22 * 60, EndMinute: 6 * 60}
	start := night.StartOn(day)
	if !start.Equal(time.Date(2026, 3, 9, 22, 0, 0, 0, loc)) {
		t.Fatalf("StartOn = %v; want 22:00 same day", start)
	}
	end := night.EndOn(day)
	want := time.Date(2026, 3, 10, 6, 0, 0, 0, loc)
	if !end.Equal(want) {
		t.Fatalf("EndOn = %v; want %v", end, want)
	}

	regular := models.Shift{StartMinute: 9 * 60, EndMinute: 17 * 60}
	end = regular.EndOn(day)
	want = time.Date(2026, 3, 9, 17, 0, 0, 0, loc)
	if !end.Equal(want) {
		t.Fatalf("EndOn = %v; want %v", end, want)
	}
}
