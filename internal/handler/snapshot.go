package handler

import (
	"errors"
	"net/http"
	"time"

	"crypto-snapshot/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type snapshotResponse struct {
	Date     string                `json:"date"`
	Snapshot domain.SnapshotRecord `json:"snapshot"`
}

// GetSnapshot returns the snapshot stored for a DD_MM_YYYY date.
func (h *Handler) GetSnapshot(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-snapshot")
	defer span.End()

	key := c.Param("date")
	span.SetAttributes(attribute.String("date", key))

	date, err := domain.ParseDateKey(key, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted as DD_MM_YYYY"})
		return
	}

	record, found, err := h.snapshots.Load(ctx, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeLoadError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for " + key})
		return
	}

	c.JSON(http.StatusOK, snapshotResponse{Date: key, Snapshot: record})
}

// GetLatestSnapshot returns the newest snapshot of the last week, starting
// from today.
func (h *Handler) GetLatestSnapshot(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-latest-snapshot")
	defer span.End()

	date := h.now()
	for i := 0; i < latestLookback; i++ {
		record, found, err := h.snapshots.Load(ctx, date)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeLoadError(c, err)
			return
		}
		if found {
			key := domain.DateKey(date)
			span.SetAttributes(attribute.String("date", key))
			c.JSON(http.StatusOK, snapshotResponse{Date: key, Snapshot: record})
			return
		}
		date = domain.PreviousDay(date)
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot in the last 7 days"})
}

func writeLoadError(c *gin.Context, err error) {
	var corrupt *domain.CorruptRecordError
	if errors.As(err, &corrupt) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored snapshot is corrupt", "key": corrupt.Key})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
