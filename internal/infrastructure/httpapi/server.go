// Package httpapi exposes the administrative trigger API.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/metrics"
	"DocketWatch/internal/notify"
	"DocketWatch/internal/usecase"
)

// Triggers is the slice of the pipeline the admin API can invoke.
type Triggers interface {
	CheckDocket(ctx context.Context, number string, limit int) (usecase.CheckReport, error)
	Drain(ctx context.Context) (notify.DrainStats, error)
	DailyReset(ctx context.Context, now time.Time) ([]string, error)
}

// NewRouter builds the gin engine. Routes under /admin require the bearer token;
// an empty token disables them.
func NewRouter(triggers Triggers, token string, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{triggers: triggers, logger: logger, now: time.Now}

	router := gin.New()
	router.Use(gin.Recovery(), requestMetrics())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := router.Group("/admin", bearerAuth(token))
	admin.POST("/dockets/:docket/check", h.checkDocket)
	admin.POST("/drain", h.drain)
	admin.POST("/deluge/reset", h.resetDeluge)
	return router
}

type handler struct {
	triggers Triggers
	logger   *slog.Logger
	now      func() time.Time
}

func (h *handler) checkDocket(c *gin.Context) {
	docket := c.Param("docket")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	report, err := h.triggers.CheckDocket(c.Request.Context(), docket, limit)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "docket not monitored"})
		return
	}
	if err != nil {
		h.logger.Error("on-demand check failed", "docket", docket, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"docket":  report.Docket,
		"outcome": report.Outcome,
		"limit":   report.Limit,
		"new":     report.New,
		"stored":  report.Stored,
		"queued":  report.Queued,
		"error":   report.Error,
	})
}

func (h *handler) drain(c *gin.Context) {
	stats, err := h.triggers.Drain(c.Request.Context())
	if err != nil {
		h.logger.Error("on-demand drain failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"skipped":  stats.Skipped,
		"due":      stats.Due,
		"groups":   stats.Groups,
		"sent":     stats.Sent,
		"failed":   stats.Failed,
		"released": stats.Released,
	})
}

func (h *handler) resetDeluge(c *gin.Context) {
	cleared, err := h.triggers.DailyReset(c.Request.Context(), h.now())
	if err != nil {
		h.logger.Error("on-demand deluge reset failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cleared == nil {
		cleared = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API disabled"})
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status()), c.Request.Method).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
