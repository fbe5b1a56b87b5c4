package handler

import (
	"net/http"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReportsHandler struct {
	svc service.ReportService
	loc *time.Location
}

func NewReportsHandler(svc service.ReportService, loc *time.Location) *ReportsHandler {
	return &ReportsHandler{svc: svc, loc: loc}
}

// Segments handles GET /v1/segments.
func (h *ReportsHandler) Segments(c *gin.Context) {
	resp, err := h.svc.Segments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Counts handles GET /v1/stats/counts?from=&to=&channel_id=.
func (h *ReportsHandler) Counts(c *gin.Context) {
	var q dto.RangeFilter
	if !bindQuery(c, &q) {
		return
	}
	from, _ := parseDay(q.From, h.loc)
	to, _ := parseDay(q.To, h.loc)
	var channelID *uuid.UUID
	if q.ChannelID != "" {
		id, _ := uuid.Parse(q.ChannelID)
		channelID = &id
	}
	resp, err := h.svc.Counts(c.Request.Context(), from, to, channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
