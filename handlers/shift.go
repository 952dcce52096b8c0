package handlers

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/hrm_backend/models"
	"github.com/gin-gonic/gin"
)

func CreateShift(c *gin.Context) {
	var input models.NewShift
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}

	shift, err := models.CreateShift(c.Request.Context(), input)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": shift})
}

func UpdateShift(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var input models.NewShift
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "detail": err.Error()})
		return
	}

	shift, err := models.UpdateShift(c.Request.Context(), id, input)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": shift})
}

func ListShifts(c *gin.Context) {
	shifts, err := models.ListShifts(c.Request.Context())
	if err != nil {
		respondAttendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": shifts})
}
