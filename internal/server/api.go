package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/vesaa/clawwatch/internal/engine"
	"github.com/vesaa/clawwatch/internal/models"
)

// Server wires the engine to the HTTP surface.
type Server struct {
	eng      *engine.Engine
	deadline time.Duration
	log      zerolog.Logger
}

// New builds a Server. deadline bounds every ingestion and query
// operation; expiry surfaces to callers as a Timeout.
func New(eng *engine.Engine, deadline time.Duration, log zerolog.Logger) *Server {
	return &Server{eng: eng, deadline: deadline, log: log}
}

// RegisterDataRoutes wires the data-plane API: agent report ingestion.
// Reports authenticate per device via the API key in the payload.
func (s *Server) RegisterDataRoutes(r *gin.Engine) {
	r.POST("/api/report", s.handleReport)

	// Data-plane health (no auth — used by load-balancers / probes)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// RegisterControlRoutes wires the control-plane API.
//
//	Public:   POST /api/login, GET /api/health
//	Protected (JWT): everything else
func (s *Server) RegisterControlRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.POST("/login", s.handleLogin)
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	auth := api.Group("/", JWTMiddleware())
	{
		auth.GET("/stats", s.handleFleetSummary)

		auth.GET("/devices", s.handleDeviceList)
		auth.POST("/devices", s.handleDeviceCreate)
		auth.GET("/devices/:id", s.handleDeviceCard)
		auth.DELETE("/devices/:id", s.handleDeviceDelete)

		auth.GET("/devices/:id/trend", s.handleTrend)
		auth.GET("/devices/:id/logs", s.handleDeviceLogs)
		auth.GET("/logs", s.handleFleetLogs)
	}
}

// opCtx derives the bounded operation context for one request.
func (s *Server) opCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.deadline)
}

// writeError maps engine error kinds onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindBadRequest:
		status = http.StatusBadRequest
	case engine.KindUnauthorized:
		status = http.StatusUnauthorized
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindConflict:
		status = http.StatusConflict
	case engine.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ── Data plane ────────────────────────────────────────────────────────────────

// handleReport accepts one periodic agent report.
//
//	POST /api/report
func (s *Server) handleReport(c *gin.Context) {
	var report models.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.opCtx(c)
	defer cancel()

	if err := s.eng.ProcessReport(ctx, &report); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ── Control plane ─────────────────────────────────────────────────────────────

// handleLogin accepts username + password and returns a signed JWT.
func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if !checkAdmin(body.Username, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := GenerateJWT(body.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": 86400, // seconds
		"type":       "Bearer",
	})
}

func (s *Server) handleFleetSummary(c *gin.Context) {
	ctx, cancel := s.opCtx(c)
	defer cancel()

	summary, err := s.eng.FleetSummary(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) handleDeviceList(c *gin.Context) {
	ctx, cancel := s.opCtx(c)
	defer cancel()

	devices, err := s.eng.ListDevices(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": devices})
}

// handleDeviceCreate registers a device and returns the generated API
// key. The key appears in this response only; the server keeps a hash.
func (s *Server) handleDeviceCreate(c *gin.Context) {
	var body struct {
		Name       string `json:"name" binding:"required"`
		DeviceType string `json:"device_type"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	ctx, cancel := s.opCtx(c)
	defer cancel()

	dev, key, err := s.eng.CreateDevice(ctx, body.Name, body.DeviceType, body.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dev, "key": key})
}

func (s *Server) handleDeviceCard(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}
	ctx, cancel := s.opCtx(c)
	defer cancel()

	card, err := s.eng.DeviceCard(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": card})
}

func (s *Server) handleDeviceDelete(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}
	ctx, cancel := s.opCtx(c)
	defer cancel()

	if err := s.eng.DeleteDevice(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// handleTrend returns a downsampled metric series.
//
//	GET /api/devices/:id/trend?metric=cpu&hours=24&resolution=100
func (s *Server) handleTrend(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}
	metric := c.DefaultQuery("metric", "cpu")
	hours := intQuery(c, "hours", 24)
	resolution := intQuery(c, "resolution", 100)

	to := time.Now()
	from := to.Add(-time.Duration(hours) * time.Hour)

	ctx, cancel := s.opCtx(c)
	defer cancel()

	points, err := s.eng.Trend(ctx, id, metric, from, to, resolution)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": points})
}

func (s *Server) handleDeviceLogs(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 100)

	ctx, cancel := s.opCtx(c)
	defer cancel()

	entries, err := s.eng.RecentLogs(ctx, id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) handleFleetLogs(c *gin.Context) {
	limit := intQuery(c, "limit", 100)

	ctx, cancel := s.opCtx(c)
	defer cancel()

	entries, err := s.eng.FleetRecentLogs(ctx, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// ── helpers ───────────────────────────────────────────────────────────────────

func deviceID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
