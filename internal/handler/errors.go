package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"discipleship/internal/attendance"
)

// writeError maps attendance errors to the status codes and messages clients rely on.
func writeError(c *gin.Context, err error) {
	var oor *attendance.OutOfRangeError
	switch {
	case errors.As(err, &oor):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "You must be within " + strconv.FormatFloat(oor.RadiusMeters, 'f', -1, 64) + "m of the class location to check in",
			"distance": oor.DistanceMeters,
		})
	case errors.Is(err, attendance.ErrInvalidOrExpiredCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired attendance code"})
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Already checked in for this session"})
	case errors.Is(err, attendance.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Attendance record not found"})
	case errors.Is(err, attendance.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, attendance.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, attendance.ErrNoActiveWindow):
		c.JSON(http.StatusNotFound, gin.H{"error": "No active attendance window"})
	case errors.Is(err, attendance.ErrNotEnrolled):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not enrolled in this course"})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
