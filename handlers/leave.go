package handlers

import (
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"github.com/gin-gonic/gin"
)

type LeaveHandler struct {
	Location *time.Location
}

func NewLeaveHandler(loc *time.Location) *LeaveHandler {
	return &LeaveHandler{Location: loc}
}

func (h *LeaveHandler) Create(c *gin.Context) {
	var input models.NewLeaveRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}

	leave, err := models.CreateLeaveRequest(c.Request.Context(), input, h.Location)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": leave})
}

func (h *LeaveHandler) Approve(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	leave, err := models.ApproveLeaveRequest(c.Request.Context(), id, userId)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": leave})
}

func (h *LeaveHandler) Reject(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	leave, err := models.RejectLeaveRequest(c.Request.Context(), id, userId)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": leave})
}
