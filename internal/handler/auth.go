package handler

import (
	"net/http"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	svc service.AuthService
}

func NewAuthHandler(svc service.AuthService) *AuthHandler { return &AuthHandler{svc: svc} }

// MintToken handles POST /v1/auth/tokens (admin only).
func (h *AuthHandler) MintToken(c *gin.Context) {
	var req dto.MintTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.MintToken(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
