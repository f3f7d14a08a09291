package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"discipleship/internal/attendance"
	"discipleship/internal/audit"
	"discipleship/internal/auth"
	"discipleship/internal/geo"
	"discipleship/internal/metrics"
	"discipleship/internal/qr"
)

// AuditPublisher queues audit events.
type AuditPublisher interface {
	Publish(ctx context.Context, e audit.Event) error
}

// AuditLog reads persisted audit events.
type AuditLog interface {
	ListBySession(ctx context.Context, liveSessionID string, limit int) ([]audit.Event, error)
}

type Handler struct {
	svc      *attendance.Service
	auditPub AuditPublisher // nil disables the audit trail
	auditLog AuditLog       // nil when the audit table is not reachable
}

func New(svc *attendance.Service, pub AuditPublisher, auditLog AuditLog) *Handler {
	return &Handler{svc: svc, auditPub: pub, auditLog: auditLog}
}

// Register mounts the attendance routes. bearer authenticates every route;
// checkinLimit throttles code submissions per caller.
func (h *Handler) Register(r gin.IRouter, bearer, checkinLimit gin.HandlerFunc) {
	staff := auth.RequireRole(auth.RoleInstructor, auth.RoleAdmin)

	sa := r.Group("/secure-attendance", bearer)
	sa.POST("/sessions/:sessionId/start", staff, h.StartSession)
	sa.GET("/sessions/:sessionId/active", h.ActiveSession)
	sa.GET("/sessions/:sessionId/qr", staff, h.SessionQR)
	sa.GET("/sessions/:sessionId/audit", staff, h.SessionAudit)
	sa.POST("/checkin", checkinLimit, h.CheckIn)
	sa.POST("/checkout", h.CheckOut)

	att := r.Group("/attendance", bearer)
	att.POST("/sessions/:sessionId/checkout", h.CheckOutSession)

	ls := r.Group("/live-sessions", bearer)
	ls.POST("/:sessionId/join", h.Join)
	ls.POST("/:sessionId/leave", h.Leave)
	ls.GET("/:sessionId/attendance", staff, h.SessionAttendance)
}

// ---------- Issue ----------

type startRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Radius    *float64 `json:"radius"`
}

// StartSession opens (or re-opens) the attendance window of a live session.
func (h *Handler) StartSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	origin, err := point(req.Latitude, req.Longitude)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	iss, err := h.svc.IssueWindow(c.Request.Context(), attendance.IssueRequest{
		LiveSessionID: sessionID,
		IssuerSubject: claims.Subject,
		Origin:        origin,
		RadiusMeters:  req.Radius,
	})
	h.record(c, audit.Event{Action: audit.ActionIssue, Outcome: audit.OutcomeOf(err), Subject: claims.Subject, LiveSessionID: sessionID})
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.WindowsIssued.Inc()

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"attendanceCode": iss.Code,
		"qrCodeData":     iss.QRData,
		"expiresAt":      iss.ExpiresAt,
	})
}

// ActiveSession tells students whether a window is open, without the code.
func (h *Handler) ActiveSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	st, err := h.svc.Active(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         st.Session.ID,
		"title":      st.Session.Title,
		"starts_at":  st.Session.StartsAt,
		"expires_at": st.ExpiresAt,
		"is_active":  st.Active,
	})
}

// SessionQR renders the open window's payload as a PNG for projection.
func (h *Handler) SessionQR(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	w, err := h.svc.CurrentWindow(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := qr.Payload{SessionID: w.LiveSessionID, Code: w.Code, Expires: w.ExpiresAt.UnixMilli()}.Encode()
	if err != nil {
		writeError(c, err)
		return
	}
	size, _ := strconv.Atoi(c.Query("size"))
	if size > 1024 {
		size = 1024
	}
	png, err := qr.PNG(data, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// ---------- Check-in / check-out ----------

type checkInRequest struct {
	SessionID      string   `json:"sessionId" binding:"required"`
	AttendanceCode string   `json:"attendanceCode" binding:"required"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	IsOnline       bool     `json:"isOnline"`
}

// CheckIn records the caller's presence after code and geofence validation.
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validUUID(req.SessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId must be a UUID"})
		return
	}
	// Online check-ins ignore whatever coordinates were sent.
	var loc *geo.Point
	if !req.IsOnline {
		var err error
		if loc, err = point(req.Latitude, req.Longitude); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	claims, _ := auth.FromContext(c)
	typ := attendance.InPerson
	if req.IsOnline {
		typ = attendance.Online
	}
	res, err := h.svc.CheckIn(c.Request.Context(), attendance.CheckInRequest{
		Subject:       claims.Subject,
		LiveSessionID: req.SessionID,
		Code:          req.AttendanceCode,
		Location:      loc,
		Online:        req.IsOnline,
	})

	outcome := audit.OutcomeOf(err)
	metrics.CheckIns.WithLabelValues(outcome, string(typ)).Inc()
	evt := audit.Event{Action: audit.ActionCheckIn, Outcome: outcome, Subject: claims.Subject, LiveSessionID: req.SessionID, AttendanceType: typ}
	if res.DistanceMeters != nil {
		metrics.GeofenceDistance.Observe(*res.DistanceMeters)
		d := int(math.Round(*res.DistanceMeters))
		evt.DistanceMeters = &d
	}
	h.record(c, evt)
	if err != nil {
		writeError(c, err)
		return
	}

	how := "in person"
	if req.IsOnline {
		how = "online"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Successfully checked in " + how,
		"attendance": res.Record,
	})
}

type checkOutRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// CheckOut closes the caller's attendance record.
func (h *Handler) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validUUID(req.SessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId must be a UUID"})
		return
	}
	h.checkOut(c, req.SessionID, "Successfully checked out")
}

// CheckOutSession is check-out with the live session in the path.
func (h *Handler) CheckOutSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	h.checkOut(c, sessionID, "Successfully checked out")
}

// Leave is the live-session route for check-out.
func (h *Handler) Leave(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	h.checkOut(c, sessionID, "Successfully left session")
}

func (h *Handler) checkOut(c *gin.Context, sessionID, message string) {
	claims, _ := auth.FromContext(c)
	rec, err := h.svc.CheckOut(c.Request.Context(), claims.Subject, sessionID)
	outcome := audit.OutcomeOf(err)
	metrics.CheckOuts.WithLabelValues(outcome).Inc()
	h.record(c, audit.Event{Action: audit.ActionCheckOut, Outcome: outcome, Subject: claims.Subject, LiveSessionID: sessionID, AttendanceType: rec.Type})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "attendance": rec})
}

// ---------- Live-session routes ----------

// Join records online attendance for an enrolled caller and returns the meeting link.
func (h *Handler) Join(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	claims, _ := auth.FromContext(c)
	rec, ls, err := h.svc.Join(c.Request.Context(), claims.Subject, sessionID)
	outcome := audit.OutcomeOf(err)
	metrics.CheckIns.WithLabelValues(outcome, string(attendance.Online)).Inc()
	h.record(c, audit.Event{Action: audit.ActionJoin, Outcome: outcome, Subject: claims.Subject, LiveSessionID: sessionID, AttendanceType: attendance.Online})
	if err != nil {
		writeError(c, err)
		return
	}

	var zoomURL *string
	if ls.ZoomMeetingID != "" {
		u := "https://zoom.us/j/" + ls.ZoomMeetingID
		zoomURL = &u
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Successfully joined session",
		"attendance": rec,
		"zoom_url":   zoomURL,
	})
}

// SessionAttendance lists who attended a live session.
func (h *Handler) SessionAttendance(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	recs, err := h.svc.Attendance(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Attendee{}
	}
	c.JSON(http.StatusOK, gin.H{"attendance": recs})
}

// SessionAudit lists recent check-in attempts, including rejected ones.
func (h *Handler) SessionAudit(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	if h.auditLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := h.auditLog.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ---------- helpers ----------

// record queues an audit event. Failures never fail the request.
func (h *Handler) record(c *gin.Context, e audit.Event) {
	if h.auditPub == nil {
		return
	}
	if err := h.auditPub.Publish(c.Request.Context(), e); err != nil {
		metrics.AuditPublishFailures.Inc()
		log.Printf("audit publish failed: %v", err)
	}
}

func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("sessionId")
	if !validUUID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId must be a UUID"})
		return "", false
	}
	return id, true
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

var errPartialCoordinates = errors.New("latitude and longitude must be supplied together")

// point builds a coordinate from optional fields; both or neither must be set.
func point(lat, lon *float64) (*geo.Point, error) {
	switch {
	case lat == nil && lon == nil:
		return nil, nil
	case lat == nil || lon == nil:
		return nil, errPartialCoordinates
	}
	p := geo.Point{Lat: *lat, Lon: *lon}
	if !p.Valid() {
		return nil, errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	return &p, nil
}
