package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/antibyte/espresso/pkg/configuration"
	"github.com/antibyte/espresso/pkg/logger"
)

// SecretEnv overrides the [JWT] secret setting.
const SecretEnv = "ESPRESSO_JWT_SECRET"

// ErrNoToken is returned when a request carries no token.
var ErrNoToken = errors.New("no token found in request")

var (
	ephemeralSecret string
	ephemeralOnce   sync.Once
)

// getJWTSecret returns the signing secret. Without a configured secret a
// random one is generated per process, so tokens do not survive a restart.
func getJWTSecret() string {
	if envSecret := os.Getenv(SecretEnv); envSecret != "" {
		return envSecret
	}
	if secret := configuration.GetString("JWT", "secret", ""); secret != "" {
		return secret
	}
	ephemeralOnce.Do(func() {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("failed to generate JWT secret: %v", err))
		}
		ephemeralSecret = hex.EncodeToString(buf)
		logger.SecurityWarn("No JWT secret configured - using a random per-process secret. Set %s or [JWT] secret.", SecretEnv)
	})
	return ephemeralSecret
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "expiration_hours", 24)
	return time.Duration(hours) * time.Hour
}

// SessionClaims identify a client allowed to use the server.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// GenerateToken signs a token for sessionID.
func GenerateToken(sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    configuration.GetString("JWT", "issuer", "espresso"),
			Subject:   "session",
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("token could not be signed: %w", err)
	}
	logger.AuthInfo("token issued for session %s", sessionID)
	return signed, nil
}

// ValidateToken checks signature, algorithm and expiry of tokenString.
func ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&SessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(getJWTSecret()), nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("could not extract token claims")
	}
	return claims, nil
}

// ExtractTokenFromRequest finds the token in the Authorization header
// ("Bearer <token>"), the session_token cookie or the token query parameter.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	if cookie, err := r.Cookie("session_token"); err == nil {
		return cookie.Value, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrNoToken
}

// RequireToken rejects requests without a valid token and stores the claims
// in the request context.
func RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.AuthWarn("rejected %s %s: %v", r.Method, r.URL.Path, err)
			http.Error(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}
		claims, err := ValidateToken(tokenString)
		if err != nil {
			logger.AuthWarn("rejected %s %s: %v", r.Method, r.URL.Path, err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(AddClaimsToContext(r.Context(), claims)))
	}
}
