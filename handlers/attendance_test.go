package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/handlers"
	"bitbucket.org/mmdatafocus/hrm_backend/workflow"
	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	facility, err := config.LoadFacilitySettings()
	if err != nil {
		t.Fatalf("LoadFacilitySettings: %v", err)
	}
	engine := workflow.NewAttendanceEngine(nil, config.GetLogger(), facility, nil)
	h := handlers.NewAttendanceHandler(engine)

	r := gin.New()
	r.POST("/events/check-in", h.CheckIn)
	r.POST("/events/batch", h.IngestBatch)
	r.POST("/api/close-out", h.CloseOut)
	r.GET("/api/attendance/:employee_id", h.QueryRange)
	r.PUT("/api/attendance/:id/correct", h.Correct)
	return r
}

func TestCheckIn_RejectsInvalidBody(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"missing device id", `{"timestamp":"2026-03-09T09:00:00+06:30"}`},
		{"bad timestamp", `{"device_employee_id":"FP-001","timestamp":"yesterday"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/events/check-in", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", w.Code)
			}
		})
	}
}

func TestIngestBatch_RejectsMissingEvents(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events/batch", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
}

func TestCloseOut_RejectsBadDate(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/close-out", strings.NewReader(`{"date":"09-03-2026"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
}

func TestQueryRange_RejectsBadRange(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		name string
		url  string
	}{
		{"bad employee id", "/api/attendance/abc?from=2026-03-01&to=2026-03-09"},
		{"missing from", "/api/attendance/1?to=2026-03-09"},
		{"inverted range", "/api/attendance/1?from=2026-03-09&to=2026-03-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", w.Code)
			}
		})
	}
}

func TestCorrect_StatusOverrideLimitedToOnLeave(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"derived status rejected", `{"status":"Absent","description":"mark absent"}`},
		{"late rejected", `{"status":"Late","description":"mark late"}`},
		{"unknown status rejected", `{"status":"Holiday","description":"mark holiday"}`},
		{"missing description", `{"status":"OnLeave"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/api/attendance/5/correct", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", w.Code)
			}
		})
	}
}
