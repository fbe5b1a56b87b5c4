package handler

import (
	"net/http"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/apierror"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MetricsHandler struct {
	svc   service.MetricsService
	queue JobQueue
}

func NewMetricsHandler(svc service.MetricsService, queue JobQueue) *MetricsHandler {
	return &MetricsHandler{svc: svc, queue: queue}
}

// Recompute handles POST /v1/metrics/recompute.
// channel_id + date rebuilds one unit synchronously; a from..to range is queued
// (or run inline when no queue is configured).
func (h *MetricsHandler) Recompute(c *gin.Context) {
	var req dto.RecomputeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	loc := h.svc.Location()

	if req.Date != "" {
		if req.ChannelID == nil {
			c.JSON(http.StatusBadRequest, apierror.New("channel_id is required with date"))
			return
		}
		channelID, _ := uuid.Parse(*req.ChannelID)
		day, err := parseDay(req.Date, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("invalid date"))
			return
		}
		resp, err := h.svc.Recompute(c.Request.Context(), channelID, day)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	if req.From == "" || req.To == "" {
		c.JSON(http.StatusBadRequest, apierror.New("either date or from/to is required"))
		return
	}
	from, errFrom := parseDay(req.From, loc)
	to, errTo := parseDay(req.To, loc)
	if errFrom != nil || errTo != nil || to.Before(from) {
		c.JSON(http.StatusBadRequest, apierror.New("invalid range"))
		return
	}

	if h.queue != nil {
		jobID, err := h.queue.EnqueueRecompute(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, dto.RecomputeQueuedResponse{JobID: jobID, Queue: worker.QueueRecompute})
		return
	}

	var channelID *uuid.UUID
	if req.ChannelID != nil {
		id, _ := uuid.Parse(*req.ChannelID)
		channelID = &id
	}
	report, err := h.svc.RecomputeRange(c.Request.Context(), from, to, channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ChannelMetrics handles GET /v1/channels/:id/metrics?from=&to=.
func (h *MetricsHandler) ChannelMetrics(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var q dto.RangeFilter
	if !bindQuery(c, &q) {
		return
	}
	from, _ := parseDay(q.From, h.svc.Location())
	to, _ := parseDay(q.To, h.svc.Location())
	rows, err := h.svc.ListRange(c.Request.Context(), id, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "total": len(rows)})
}
