package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	ClaimsKey  = "claims"
	SubjectKey = "subject"

	// tolerated clock drift between the token minter and this service
	tokenLeeway = 30 * time.Second
)

// JWTClaims are the claims embedded in every service token. Subject names the
// calling integration (CRM adapter, booking system, scheduler).
type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth validates the HS256 bearer token on every protected route. Tokens
// must carry an expiry, a subject and a role.
func JWTAuth(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(tokenLeeway),
	)
	key := []byte(secret)

	return func(c *gin.Context) {
		tokenStr, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("authentication required"))
			return
		}

		claims := &JWTClaims{}
		_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("token expired"))
			return
		case err != nil:
			log.Debug().Err(err).Str("request_id", c.GetString(RequestIDKey)).Msg("auth: token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("invalid token"))
			return
		case claims.Subject == "" || claims.Role == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("token lacks subject or role"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}

// RequireRole rejects requests whose token role is not in the allowed list.
// admin is always allowed.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := map[string]bool{"admin": true}
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("authentication required"))
			return
		}
		if !allowed[claims.Role] {
			log.Warn().
				Str("request_id", c.GetString(RequestIDKey)).
				Str("subject", claims.Subject).
				Str("role", claims.Role).
				Str("route", c.FullPath()).
				Msg("auth: role not permitted")
			c.AbortWithStatusJSON(http.StatusForbidden, apierror.New("insufficient permissions"))
			return
		}
		c.Next()
	}
}

// GetClaims returns the claims JWTAuth stored, or nil on unauthenticated routes.
func GetClaims(c *gin.Context) *JWTClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*JWTClaims)
	return claims
}
