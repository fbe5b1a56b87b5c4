package service

import (
	"errors"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/config"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Service roles carried in the "role" claim.
const (
	RoleAdmin     = "admin"
	RoleIngestor  = "ingestor"
	RoleScheduler = "scheduler"
	RoleReporter  = "reporter"
)

var validRoles = map[string]bool{RoleAdmin: true, RoleIngestor: true, RoleScheduler: true, RoleReporter: true}

// AuthService mints service tokens for ingestion adapters, the scheduler and
// reporting collaborators. There are no end-user accounts.
type AuthService interface {
	MintToken(req dto.MintTokenRequest) (*dto.TokenResponse, error)
}

type authService struct {
	cfg *config.Config
	now func() time.Time
}

func NewAuthService(cfg *config.Config) AuthService {
	return &authService{cfg: cfg, now: time.Now}
}

func (s *authService) MintToken(req dto.MintTokenRequest) (*dto.TokenResponse, error) {
	if !validRoles[req.Role] {
		return nil, invalid("unknown role %q", req.Role)
	}
	if req.Subject == "" {
		return nil, invalid("subject is required")
	}
	if s.cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not configured")
	}
	hours := s.cfg.JWTExpirationHours
	if req.TTLHours > 0 {
		hours = req.TTLHours
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":  req.Subject,
		"role": req.Role,
		"jti":  uuid.NewString(),
		"exp":  now.Add(time.Duration(hours) * time.Hour).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, err
	}
	return &dto.TokenResponse{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   hours * 3600,
		Role:        req.Role,
	}, nil
}
