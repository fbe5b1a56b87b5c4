package handler

import (
	"net/http"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"

	"github.com/gin-gonic/gin"
)

type ChannelsHandler struct {
	svc     service.ChannelService
	reports service.ReportService
	metrics service.MetricsService
}

func NewChannelsHandler(svc service.ChannelService, reports service.ReportService, metrics service.MetricsService) *ChannelsHandler {
	return &ChannelsHandler{svc: svc, reports: reports, metrics: metrics}
}

// Create handles POST /v1/channels.
func (h *ChannelsHandler) Create(c *gin.Context) {
	var req dto.CreateChannelRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List handles GET /v1/channels?all=true.
func (h *ChannelsHandler) List(c *gin.Context) {
	resp, err := h.svc.List(c.Request.Context(), c.Query("all") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp, "total": len(resp)})
}

// Get handles GET /v1/channels/:id.
func (h *ChannelsHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update handles PATCH /v1/channels/:id (administrative edit).
func (h *ChannelsHandler) Update(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateChannelRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Summary handles GET /v1/channels/:id/summary?from=&to=.
func (h *ChannelsHandler) Summary(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var q dto.RangeFilter
	if !bindQuery(c, &q) {
		return
	}
	loc := h.metrics.Location()
	from, _ := parseDay(q.From, loc)
	to, _ := parseDay(q.To, loc)
	resp, err := h.reports.ChannelSummary(c.Request.Context(), id, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
