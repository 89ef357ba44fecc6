package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/internal/metrics"
	"github.com/rossigee/slot-rank-tracker/internal/slots"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// Version is reported by the health endpoint
var Version = "dev"

// Registry is the keyword registry and history storage behind the API
type Registry interface {
	ListKeywords(ctx context.Context, slotType string) ([]types.Keyword, error)
	EnqueueKeyword(ctx context.Context, slotType, keyword, linkURL string) (*types.Keyword, bool, error)
	CountKeywords(ctx context.Context) (int, error)
	ListRankHistory(ctx context.Context, slotStatusID int64, limit int) ([]types.RankHistory, error)
}

// Recorder applies check results to the registry
type Recorder interface {
	Record(ctx context.Context, job types.Keyword, result types.CheckResult, checkedAt time.Time) error
}

// SlotService manages grants and allocated units
type SlotService interface {
	CreateGrant(ctx context.Context, req types.CreateSlotRequest) (*types.Slot, error)
	Allocate(ctx context.Context, req types.AllocateSlotsRequest) (*types.AllocateSlotsResponse, error)
	Release(ctx context.Context, id int64) error
	Units(ctx context.Context, customerID string) ([]types.SlotStatusView, error)
	Grants(ctx context.Context, customerID, search string) ([]types.SlotView, types.SlotStats, error)
	Summary(ctx context.Context, customerID string) (*types.CustomerSummary, types.SlotStats, error)
}

// Handler handles HTTP API requests
type Handler struct {
	registry  Registry
	recorder  Recorder
	slots     SlotService
	notifier  slots.Notifier
	startedAt time.Time
	now       func() time.Time
}

// NewHandler creates a new API handler. notifier may be nil.
func NewHandler(registry Registry, recorder Recorder, slotService SlotService, notifier slots.Notifier) *Handler {
	return &Handler{
		registry:  registry,
		recorder:  recorder,
		slots:     slotService,
		notifier:  notifier,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// SetupRoutes configures the API routes. auth guards the /api group when non-nil.
func SetupRoutes(router *gin.Engine, handler *Handler, auth gin.HandlerFunc) {
	router.Use(countRequests())

	api := router.Group("/api")
	if auth != nil {
		api.Use(auth)
	}
	{
		api.GET("/keywords", handler.ListKeywords)
		api.POST("/keywords", handler.EnqueueKeyword)
		api.POST("/ranking-check/update-results", handler.UpdateResults)

		api.GET("/slot-status", handler.GetSlotStatus)
		api.POST("/slot-status", handler.AllocateSlots)
		api.DELETE("/slot-status", handler.ReleaseSlot)
		api.POST("/slots", handler.CreateSlot)

		api.GET("/rank-history", handler.ListRankHistory)
	}

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", metrics.Handler())
}

// HealthCheck provides service health information
func (h *Handler) HealthCheck(c *gin.Context) {
	response := types.HealthResponse{
		Status:    "healthy",
		Timestamp: h.now(),
		Version:   Version,
		Uptime:    h.now().Sub(h.startedAt).Round(time.Second).String(),
	}

	pending, err := h.registry.CountKeywords(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Warn("Health check could not count pending jobs")
		response.Status = "degraded"
		c.JSON(http.StatusOK, response)
		return
	}
	metrics.PendingJobs.Set(float64(pending))
	response.PendingJobs = pending

	c.JSON(http.StatusOK, response)
}

func countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func respondError(c *gin.Context, code int, reason string, err error) {
	response := types.ErrorResponse{
		Error: reason,
		Code:  code,
	}
	if err != nil {
		response.Message = err.Error()
	}
	if code >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error(reason)
	}
	c.JSON(code, response)
}

func (h *Handler) notify(ctx context.Context) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to notify rank workers")
	}
}
