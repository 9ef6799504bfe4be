package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"velora/internal/booking"
	"velora/internal/model"
	"velora/internal/store"
)

// GET /api/v1/availability?from=2026-06-01&to=2026-06-07
func (s *Server) getAvailability(c *gin.Context) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" {
		fromStr = s.cal.Today(time.Now())
	}
	if toStr == "" {
		toStr = fromStr
	}

	from, err := s.cal.ParseDate(fromStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}
	to, err := s.cal.ParseDate(toStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not precede from"})
		return
	}
	if to.Sub(from) > 62*24*time.Hour {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range too wide"})
		return
	}

	ctx := c.Request.Context()
	sched, err := s.schedule.Get(ctx)
	if err != nil {
		s.serverError(c, err)
		return
	}
	appts, err := s.store.ListActiveByRange(ctx, fromStr, toStr)
	if err != nil {
		s.serverError(c, err)
		return
	}

	days := s.resolver.Resolve(time.Now(), from, to, sched, appts)
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// GET /api/v1/services
func (s *Server) listServices(c *gin.Context) {
	services, err := s.store.ListActiveServices(c.Request.Context())
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}

// POST /api/v1/appointments
func (s *Server) createAppointment(c *gin.Context) {
	var req booking.CreateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.bookings.Create(c.Request.Context(), principalFrom(c), req)
	if err != nil {
		s.domainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GET /api/v1/appointments/:id
func (s *Server) getAppointment(c *gin.Context) {
	appt, err := s.bookings.Get(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// POST /api/v1/appointments/:id/cancel
func (s *Server) cancelAppointment(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	result, err := s.bookings.Cancel(c.Request.Context(), principalFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		s.domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/v1/appointments/:id/reschedule
func (s *Server) rescheduleAppointment(c *gin.Context) {
	var req booking.RescheduleRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.bookings.Reschedule(c.Request.Context(), principalFrom(c), c.Param("id"), req)
	if err != nil {
		s.domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PUT /api/v1/admin/schedule/weekly
func (s *Server) putWeeklySchedule(c *gin.Context) {
	var weekly model.WeeklySchedule
	if err := c.BindJSON(&weekly); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.schedule.UpdateWeekly(c.Request.Context(), principalFrom(c), weekly); err != nil {
		s.domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// PUT /api/v1/admin/schedule/special-days/:date
func (s *Server) putSpecialDay(c *gin.Context) {
	date := c.Param("date")
	if _, err := s.cal.ParseDate(date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	var hours model.DailySchedule
	if err := c.BindJSON(&hours); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sd := model.SpecialDay{Date: date, Hours: hours}
	if err := s.schedule.UpsertSpecialDay(c.Request.Context(), principalFrom(c), sd); err != nil {
		s.domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// DELETE /api/v1/admin/schedule/special-days/:date
func (s *Server) deleteSpecialDay(c *gin.Context) {
	if err := s.schedule.DeleteSpecialDay(c.Request.Context(), principalFrom(c), c.Param("date")); err != nil {
		s.domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GET /api/v1/admin/export?from=2026-06-01&to=2026-06-30
func (s *Server) exportAppointments(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to required"})
		return
	}
	if _, err := s.cal.ParseDate(from); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}
	if _, err := s.cal.ParseDate(to); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}

	filename := fmt.Sprintf("citas_%s_%s.xlsx", from, to)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := s.exporter.Export(c.Request.Context(), c.Writer, from, to); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
	}
}

// domainError maps service errors onto HTTP statuses.
func (s *Server) domainError(c *gin.Context, err error) {
	var (
		vErr  *booking.ValidationError
		bcErr *booking.BusinessClosedError
		cErr  *booking.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.As(err, &bcErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": bcErr.Error()})
	case errors.As(err, &cErr):
		c.JSON(http.StatusConflict, gin.H{"error": cErr.Error()})
	case errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
	case errors.Is(err, booking.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, store.ErrStaleVersion):
		c.JSON(http.StatusConflict, gin.H{"error": "appointment was modified concurrently, retry"})
	default:
		s.serverError(c, err)
	}
}

func (s *Server) serverError(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
