package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/turn"
	"jan-server/services/chat-api/internal/interfaces/httpserver/responses"
	"jan-server/services/chat-api/internal/utils/redact"
)

const (
	identityContextKey  = "identity"
	anonymousIDHeader   = "X-Anonymous-Id"
	maxAnonymousIDBytes = 128
)

var errAuthNotConfigured = errors.New("bearer authentication is not configured")

// IdentityMiddleware resolves who is calling. A valid HS256 bearer token
// yields an owner id from its subject; a request without one is anonymous and
// keyed by X-Anonymous-Id or, failing that, a salted hash of the client IP.
func IdentityMiddleware(secret string, redactor *redact.Redactor, logger zerolog.Logger) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	return func(c *gin.Context) {
		token, hasToken := bearerToken(c)
		if !hasToken {
			c.Set(identityContextKey, turn.Identity{AnonymousKey: anonymousKey(c, redactor)})
			c.Next()
			return
		}

		subject, err := subjectFromToken(parser, token, secret)
		if err != nil {
			logger.Warn().Err(err).Str("path", c.FullPath()).Msg("bearer token rejected")
			responses.HandleErrorWithStatus(c, http.StatusUnauthorized, err, "unauthorized")
			return
		}
		c.Set(identityContextKey, turn.Identity{OwnerID: &subject})
		c.Set("user_id", subject)
		c.Next()
	}
}

// IdentityFromContext returns the caller identity set by IdentityMiddleware.
func IdentityFromContext(c *gin.Context) (turn.Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return turn.Identity{}, false
	}
	identity, ok := val.(turn.Identity)
	return identity, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func subjectFromToken(parser *jwt.Parser, raw string, secret string) (string, error) {
	if secret == "" {
		return "", errAuthNotConfigured
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}); err != nil {
		return "", err
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func anonymousKey(c *gin.Context, redactor *redact.Redactor) string {
	if id := strings.TrimSpace(c.GetHeader(anonymousIDHeader)); id != "" && len(id) <= maxAnonymousIDBytes {
		return "anon:" + id
	}
	return "ip:" + redactor.Key(c.ClientIP())
}
