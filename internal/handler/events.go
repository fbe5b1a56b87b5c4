package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/apierror"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/worker"

	"github.com/gin-gonic/gin"
)

// JobQueue is the async side of ingestion and recompute, backed by Redis lists.
type JobQueue interface {
	EnqueueEvents(ctx context.Context, events []dto.EventRequest) (int, error)
	EnqueueRecompute(ctx context.Context, req dto.RecomputeRequest) (string, error)
}

type EventsHandler struct {
	svc   service.IngestService
	queue JobQueue
}

func NewEventsHandler(svc service.IngestService, queue JobQueue) *EventsHandler {
	return &EventsHandler{svc: svc, queue: queue}
}

// Ingest handles POST /v1/events: applies one event synchronously.
func (h *EventsHandler) Ingest(c *gin.Context) {
	var req dto.EventRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res, err := h.svc.Ingest(c.Request.Context(), req)
	if err != nil {
		// Unattributable leads/reserves are stored raw; report that instead of failing.
		if res != nil && errors.Is(err, service.ErrUnattributable) {
			res.Detail = err.Error()
			c.JSON(http.StatusAccepted, res)
			return
		}
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == dto.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// IngestBatch handles POST /v1/events/batch: queues events for the worker pool.
func (h *EventsHandler) IngestBatch(c *gin.Context) {
	var req dto.BatchEventsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, apierror.New("queue unavailable"))
		return
	}
	queued, err := h.queue.EnqueueEvents(c.Request.Context(), req.Events)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.BatchAcceptedResponse{Queued: queued, Queue: worker.QueueEvents})
}
