package dto

// ─── Service tokens ─────────────────────────────────────────────────────────

type MintTokenRequest struct {
	Subject string `json:"subject" validate:"required,min=1,max=100"`
	Role    string `json:"role"    validate:"required,oneof=admin ingestor scheduler reporter"`
	// TTLHours overrides JWT_EXPIRATION_HOURS when positive
	TTLHours int `json:"ttl_hours" validate:"omitempty,min=1"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Role        string `json:"role"`
}
