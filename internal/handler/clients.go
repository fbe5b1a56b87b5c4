package handler

import (
	"net/http"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/apierror"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"

	"github.com/gin-gonic/gin"
)

type ClientsHandler struct{ svc service.ClientService }

func NewClientsHandler(svc service.ClientService) *ClientsHandler { return &ClientsHandler{svc: svc} }

// Get handles GET /v1/clients/:id.
func (h *ClientsHandler) Get(c *gin.Context) {
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

// Lookup handles GET /v1/clients?phone=|email=.
func (h *ClientsHandler) Lookup(c *gin.Context) {
	var q dto.ClientLookup
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid query"))
		return
	}
	resp, err := h.svc.Lookup(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Register handles POST /v1/clients.
func (h *ClientsHandler) Register(c *gin.Context) {
	var req dto.RegisterClientRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, created, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

// CorrectVisit handles POST /v1/visits/:id/corrections.
func (h *ClientsHandler) CorrectVisit(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.VisitCorrectionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CorrectVisit(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// UpdateLeadStatus handles PATCH /v1/leads/:id/status.
func (h *ClientsHandler) UpdateLeadStatus(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateLeadStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.UpdateLeadStatus(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
