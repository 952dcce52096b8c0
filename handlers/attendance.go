package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"bitbucket.org/mmdatafocus/hrm_backend/workflow"
	"github.com/gin-gonic/gin"
)

// AttendanceHandler exposes the attendance engine over REST. Device
// gateways post events; the HR console reads records and manages
// corrections.
type AttendanceHandler struct {
	Engine *workflow.AttendanceEngine
}

func NewAttendanceHandler(engine *workflow.AttendanceEngine) *AttendanceHandler {
	return &AttendanceHandler{Engine: engine}
}

type AttendanceEventRequest struct {
	DeviceEmployeeId string     `json:"device_employee_id" binding:"required"`
	Timestamp        *time.Time `json:"timestamp"`
}

func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req AttendanceEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}

	ts := utils.DereferencePtr(req.Timestamp, time.Now()).In(h.Engine.Location())
	device, _ := utils.GetDeviceIdFromContext(c.Request.Context())

	record, err := h.Engine.RecordCheckIn(c.Request.Context(), req.DeviceEmployeeId, ts, device, models.SyncStateSynced)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateCheckIn) && record != nil {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate", "data": record})
			return
		}
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": record})
}

func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	var req AttendanceEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}

	ts := utils.DereferencePtr(req.Timestamp, time.Now()).In(h.Engine.Location())
	device, _ := utils.GetDeviceIdFromContext(c.Request.Context())

	record, err := h.Engine.RecordCheckOut(c.Request.Context(), req.DeviceEmployeeId, ts, device)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": record})
}

type IngestBatchRequest struct {
	Events []workflow.BatchEvent `json:"events" binding:"required"`
}

func (h *AttendanceHandler) IngestBatch(c *gin.Context) {
	var req IngestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}
	if err := utils.ValidateStruct(req.Events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid events", "detail": err.Error()})
		return
	}
	device, _ := utils.GetDeviceIdFromContext(c.Request.Context())

	report, err := h.Engine.IngestBatch(c.Request.Context(), device, req.Events)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": report})
}

type CloseOutRequest struct {
	Date string `json:"date" binding:"required"` // YYYY-MM-DD
}

func (h *AttendanceHandler) CloseOut(c *gin.Context) {
	var req CloseOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, h.Engine.Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date", "detail": err.Error()})
		return
	}

	created, err := h.Engine.CloseOutDay(c.Request.Context(), date)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "created": len(created), "data": created})
}

func (h *AttendanceHandler) QueryRange(c *gin.Context) {
	employeeId, err := strconv.Atoi(c.Param("employee_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid employee_id"})
		return
	}
	from, err := time.ParseInLocation("2006-01-02", c.Query("from"), h.Engine.Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}
	to, err := time.ParseInLocation("2006-01-02", c.Query("to"), h.Engine.Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to precedes from"})
		return
	}

	records, err := h.Engine.QueryRange(c.Request.Context(), employeeId, from, to)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": records})
}

type CorrectionRequest struct {
	CheckIn     *time.Time `json:"check_in"`
	CheckOut    *time.Time `json:"check_out"`
	Status      *string    `json:"status"`
	Notes       *string    `json:"notes"`
	Description string     `json:"description" binding:"required"`
}

func (h *AttendanceHandler) Correct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}
	// OnTime/Late/Absent are derived from the stored stamps; OnLeave is
	// the only status an admin may set directly.
	if req.Status != nil {
		status := models.AttendanceStatus(*req.Status)
		if !status.IsValid() || status != models.AttendanceStatusOnLeave {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status may only be corrected to OnLeave"})
			return
		}
	}

	record, err := models.CorrectAttendanceRecord(c.Request.Context(), id, func(r *models.AttendanceRecord) error {
		if req.CheckIn != nil {
			in := req.CheckIn.In(h.Engine.Location())
			r.CheckIn = &in
		}
		if req.CheckOut != nil {
			out := req.CheckOut.In(h.Engine.Location())
			r.CheckOut = &out
		}
		if req.Status != nil {
			r.Status = models.AttendanceStatusOnLeave
		}
		if req.Notes != nil {
			r.Notes = *req.Notes
		}
		return nil
	}, req.Description)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": record})
}

func (h *AttendanceHandler) ListConflicts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	conflicts, err := models.ListOpenSyncConflicts(c.Request.Context(), limit, offset)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": conflicts})
}

type ResolveConflictRequest struct {
	Note string `json:"note" binding:"required"`
}

func (h *AttendanceHandler) ResolveConflict(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}

	conflict, err := h.Engine.ResolveConflict(c.Request.Context(), id, req.Note)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": conflict})
}

// respondAttendanceError maps engine sentinels onto HTTP statuses. 4xx for
// caller mistakes, 409 for state the caller must reconcile first, 5xx for
// ledger damage the caller cannot fix.
func respondAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownEmployee):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown employee", "detail": err.Error()})
	case errors.Is(err, models.ErrNoShiftAssigned):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no shift assigned", "detail": err.Error()})
	case errors.Is(err, models.ErrCoveredByLeave):
		c.JSON(http.StatusConflict, gin.H{"error": "covered by approved leave", "detail": err.Error()})
	case errors.Is(err, models.ErrNoOpenCheckIn):
		c.JSON(http.StatusConflict, gin.H{"error": "no open check-in", "detail": err.Error()})
	case errors.Is(err, models.ErrCheckOutBeforeCheckIn):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "check-out precedes check-in", "detail": err.Error()})
	case errors.Is(err, models.ErrImplausibleDuration):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "implausible duration", "detail": err.Error()})
	case errors.Is(err, models.ErrDuplicateCheckIn):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate check-in", "detail": err.Error()})
	case errors.Is(err, models.ErrReconciliationConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "reconciliation conflict", "detail": err.Error()})
	case errors.Is(err, models.ErrInconsistentState):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inconsistent attendance state", "detail": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "detail": err.Error()})
	default:
		config.LogError(config.GetLogger(), "handlers", "respondAttendanceError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
