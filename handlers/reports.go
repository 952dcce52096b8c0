package handlers

import (
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/models/reports"
	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	Location *time.Location
}

func NewReportHandler(loc *time.Location) *ReportHandler {
	return &ReportHandler{Location: loc}
}

func (h *ReportHandler) parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.ParseInLocation("2006-01-02", c.Query("from"), h.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return time.Time{}, time.Time{}, false
	}
	to, err := time.ParseInLocation("2006-01-02", c.Query("to"), h.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to precedes from"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *ReportHandler) AttendanceSummary(c *gin.Context) {
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}

	rows, err := reports.GetAttendanceSummaryReport(c.Request.Context(), from, to)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": rows})
}

// AttendanceSummaryExcel streams the summary as an xlsx attachment.
func (h *ReportHandler) AttendanceSummaryExcel(c *gin.Context) {
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}

	rows, err := reports.GetAttendanceSummaryReport(c.Request.Context(), from, to)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}

	exporters := make([]reports.ExcelExporter, 0, len(rows))
	for _, r := range rows {
		exporters = append(exporters, r)
	}
	f, err := reports.BuildExcel(exporters, reports.AttendanceSummaryHeadings...)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=attendance_summary.xlsx")
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
