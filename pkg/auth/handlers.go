package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/antibyte/espresso/pkg/configuration"
	"github.com/antibyte/espresso/pkg/logger"
)

var (
	// ErrNoAccessKey is returned when [Auth] access_key_hash is empty.
	ErrNoAccessKey = errors.New("no access key configured")
	// ErrWrongAccessKey is returned when the key does not match the hash.
	ErrWrongAccessKey = errors.New("wrong access key")
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Key string `json:"key"`
}

// LoginResponse is returned by HandleLogin.
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// HashAccessKey returns the bcrypt hash to store in [Auth] access_key_hash.
func HashAccessKey(key string) (string, error) {
	cost := configuration.GetInt("Auth", "password_hash_cost", bcrypt.DefaultCost)
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckAccessKey compares key with the configured hash.
func CheckAccessKey(key string) error {
	hash := configuration.GetString("Auth", "access_key_hash", "")
	if hash == "" {
		return ErrNoAccessKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrWrongAccessKey
	}
	return nil
}

// HandleLogin exchanges the access key for a session token.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		logger.AuthWarn("invalid method for login: %s", r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var loginReq LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&loginReq); err != nil {
		logger.AuthWarn("invalid JSON in login request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := CheckAccessKey(loginReq.Key); err != nil {
		logger.SecurityWarn("login from %s refused: %v", getClientIP(r), err)
		if errors.Is(err, ErrNoAccessKey) {
			respondWithError(w, "Login disabled: no access key configured", http.StatusForbidden)
			return
		}
		respondWithError(w, "Invalid access key", http.StatusUnauthorized)
		return
	}

	sessionID := NewSessionID()
	token, err := GenerateToken(sessionID)
	if err != nil {
		logger.Error(logger.AreaAuth, "failed to generate token for session %s: %v", sessionID, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	logger.AuthInfo("login from %s, session %s", getClientIP(r), sessionID)
	json.NewEncoder(w).Encode(LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "Login successful",
	})
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(LoginResponse{
		Success: false,
		Message: message,
	})
}
