package handler

import (
	"context"
	"net/http"
	"time"

	"crypto-snapshot/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// latestLookback bounds how many days /api/snapshots/latest walks back.
const latestLookback = 7

// SnapshotLoader reads stored snapshots by calendar date.
type SnapshotLoader interface {
	Load(ctx context.Context, date time.Time) (domain.SnapshotRecord, bool, error)
}

type Handler struct {
	tracer    trace.Tracer
	snapshots SnapshotLoader
	metrics   http.Handler
	now       func() time.Time
}

func New(tracer trace.Tracer, snapshots SnapshotLoader, metrics http.Handler) *Handler {
	return &Handler{
		tracer:    tracer,
		snapshots: snapshots,
		metrics:   metrics,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the read-only API. apiKey guards /api when non-empty.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := r.Group("/api", RequireAPIKey(apiKey))
	api.GET("/snapshots/latest", h.GetLatestSnapshot)
	api.GET("/snapshots/:date", h.GetSnapshot)
}
