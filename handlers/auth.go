package handlers

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Timezone string `json:"timezone"`
}

func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}

	info, err := models.Login(c.Request.Context(), req.Username, req.Password, req.Timezone)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": info})
}

type DeviceTokenRequest struct {
	DeviceId string `json:"device_id" binding:"required"`
}

// IssueDeviceToken mints a long-lived JWT for a fingerprint terminal or
// batch uploader. Admin only: a device token authorizes event ingestion.
func IssueDeviceToken(c *gin.Context) {
	var req DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}

	token, err := utils.JwtGenerateDevice(req.DeviceId, "device")
	if err != nil {
		respondAttendanceError(c, errors.New("could not issue device token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "token": token})
}
