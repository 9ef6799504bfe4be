// Package api exposes the scheduling operations over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"velora/internal/audit"
	"velora/internal/availability"
	"velora/internal/booking"
	"velora/internal/calendar"
	"velora/internal/limiter"
	"velora/internal/model"
	"velora/internal/schedule"
)

// ReadStore is the query surface the handlers read from directly.
type ReadStore interface {
	ListActiveByRange(ctx context.Context, from, to string) ([]model.Appointment, error)
	ListActiveServices(ctx context.Context) ([]model.Service, error)
}

// Config for the HTTP server.
type Config struct {
	Port               int
	JWTSecret          string
	RateLimitPerMinute int
}

// Server wires the gin router over the domain services.
type Server struct {
	cfg      Config
	bookings *booking.Service
	schedule *schedule.Service
	resolver *availability.Resolver
	cal      *calendar.Calendar
	store    ReadStore
	exporter *audit.Exporter
	limiter  limiter.Limiter
	logger   zerolog.Logger

	httpSrv *http.Server
}

// NewServer builds the server and its routes.
func NewServer(
	cfg Config,
	bookings *booking.Service,
	sched *schedule.Service,
	resolver *availability.Resolver,
	cal *calendar.Calendar,
	store ReadStore,
	exporter *audit.Exporter,
	lim limiter.Limiter,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		bookings: bookings,
		schedule: sched,
		resolver: resolver,
		cal:      cal,
		store:    store,
		exporter: exporter,
		limiter:  lim,
		logger:   logger.With().Str("component", "api").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	v1 := router.Group("/api/v1", AuthMiddleware(cfg.JWTSecret))
	{
		v1.GET("/availability", s.getAvailability)
		v1.GET("/services", s.listServices)

		appts := v1.Group("/appointments")
		appts.POST("", s.rateLimit(), s.createAppointment)
		appts.GET("/:id", s.getAppointment)
		appts.POST("/:id/cancel", s.cancelAppointment)
		appts.POST("/:id/reschedule", s.rateLimit(), s.rescheduleAppointment)

		admin := v1.Group("/admin", RequireAdmin())
		admin.PUT("/schedule/weekly", s.putWeeklySchedule)
		admin.PUT("/schedule/special-days/:date", s.putSpecialDay)
		admin.DELETE("/schedule/special-days/:date", s.deleteSpecialDay)
		admin.GET("/export", s.exportAppointments)
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// rateLimit throttles write operations per principal. Limiter errors fail
// open so a broken counter never blocks bookings.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || s.cfg.RateLimitPerMinute <= 0 {
			c.Next()
			return
		}
		p := principalFrom(c)
		key := fmt.Sprintf("user:%d", p.UserID)
		ok, err := s.limiter.Allow(c.Request.Context(), key, s.cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			s.logger.Warn().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
