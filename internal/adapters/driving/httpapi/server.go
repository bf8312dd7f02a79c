// Package httpapi serves read-only health and status endpoints for serve mode.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

const (
	defaultRunsLimit  = 20
	maxRunsLimit      = 200
	defaultGapsLimit  = 100
	maxGapsLimit      = 1000
	defaultSchedLimit = 10
	shutdownTimeout   = 10 * time.Second
)

// Server exposes pipeline state over HTTP.
type Server struct {
	status   driving.StatusService
	runs     driving.RunHistory
	dict     driving.DictionaryService
	sync     driving.SyncOrchestrator
	schedule driving.ScheduleHistory
	started  time.Time
}

// NewServer creates a status server. sync may be nil.
func NewServer(
	status driving.StatusService,
	runs driving.RunHistory,
	dict driving.DictionaryService,
	sync driving.SyncOrchestrator,
) *Server {
	return &Server{
		status:  status,
		runs:    runs,
		dict:    dict,
		sync:    sync,
		started: time.Now(),
	}
}

// SetScheduleHistory enables the /schedule endpoint.
func (s *Server) SetScheduleHistory(h driving.ScheduleHistory) {
	s.schedule = h
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.healthz)
	r.GET("/status", s.getStatus)
	r.GET("/runs", s.listRuns)
	r.GET("/dictionary/gaps", s.listGaps)
	r.GET("/schedule", s.getSchedule)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Status server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) getStatus(c *gin.Context) {
	report, err := s.status.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	view := newStatusView(report)
	if s.sync != nil {
		if live, err := s.sync.Status(c.Request.Context()); err == nil && live != nil && live.Running {
			view.Sync = newSyncView(live)
		}
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) listRuns(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), defaultRunsLimit, maxRunsLimit)

	entries, err := s.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]runView, len(entries))
	for i := range entries {
		out[i] = newRunView(entries[i])
	}
	c.JSON(http.StatusOK, gin.H{"runs": out, "limit": limit})
}

func (s *Server) listGaps(c *gin.Context) {
	minCount := parseLimit(c.Query("min_count"), 1, int(^uint(0)>>1))
	limit := parseLimit(c.Query("limit"), defaultGapsLimit, maxGapsLimit)

	gaps, err := s.dict.Gaps(c.Request.Context(), minCount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total := len(gaps)
	if len(gaps) > limit {
		gaps = gaps[:limit]
	}
	if gaps == nil {
		gaps = []driving.TokenGap{}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"min_count": minCount,
		"gaps":      gaps,
	})
}

func (s *Server) getSchedule(c *gin.Context) {
	if s.schedule == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scheduler not running"})
		return
	}
	limit := parseLimit(c.Query("limit"), defaultSchedLimit, maxRunsLimit)

	state, runs, err := s.schedule.Schedule(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]scheduledRunView, len(runs))
	for i := range runs {
		out[i] = newScheduledRunView(runs[i])
	}
	c.JSON(http.StatusOK, gin.H{"schedule": newScheduleView(state), "runs": out})
}

// parseLimit returns def for missing or non-positive values and caps at max.
func parseLimit(raw string, def, maxVal int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxVal)
}

// requestLogger logs each request through zap.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.L().Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
