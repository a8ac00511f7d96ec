package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/antibyte/espresso/pkg/configuration"
)

// setupConfig loads defaults from an empty temp dir and installs a hashed
// access key.
func setupConfig(t *testing.T, key string) {
	t.Helper()
	if err := configuration.Load(filepath.Join(t.TempDir(), "espresso.cfg")); err != nil {
		t.Fatal(err)
	}
	configuration.SetString("Auth", "password_hash_cost", "4")
	configuration.SetString("JWT", "secret", "test-secret")
	if key == "" {
		return
	}
	hash, err := HashAccessKey(key)
	if err != nil {
		t.Fatal(err)
	}
	configuration.SetString("Auth", "access_key_hash", hash)
}

func TestTokenRoundTrip(t *testing.T) {
	setupConfig(t, "")

	sessionID := NewSessionID()
	token, err := GenerateToken(sessionID)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.SessionID != sessionID {
		t.Errorf("Expected session ID %s, got %s", sessionID, claims.SessionID)
	}
	if claims.Issuer != "espresso" {
		t.Errorf("Expected issuer espresso, got %s", claims.Issuer)
	}
}

func TestExpiredAndForeignTokens(t *testing.T) {
	setupConfig(t, "")

	sign := func(claims SessionClaims, method jwt.SigningMethod, key interface{}) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	expired := SessionClaims{
		SessionID: "old",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	noExpiry := SessionClaims{SessionID: "forever"}

	testCases := map[string]string{
		"empty":          "",
		"garbage":        "invalid.token.here",
		"expired":        sign(expired, jwt.SigningMethodHS256, []byte("test-secret")),
		"wrong secret":   sign(noExpiry, jwt.SigningMethodHS256, []byte("other")),
		"missing expiry": sign(noExpiry, jwt.SigningMethodHS256, []byte("test-secret")),
		"none algorithm": sign(noExpiry, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType),
	}

	for name, token := range testCases {
		if _, err := ValidateToken(token); err == nil {
			t.Errorf("%s: token should be rejected", name)
		}
	}
}

func TestExtractTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *http.Request)
		want    string
		wantErr bool
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc", false},
		{"bad header", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, "", true},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session_token", Value: "c"}) }, "c", false},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=q" }, "q", false},
		{"none", func(r *http.Request) {}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws", nil)
			tt.setup(req)
			got, err := ExtractTokenFromRequest(req)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("got %q, %v; want %q (error %v)", got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func postLogin(key string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(LoginRequest{Key: key})
	req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	HandleLogin(w, req)
	return w
}

func TestLoginHandler(t *testing.T) {
	setupConfig(t, "open sesame")

	w := postLogin("open sesame")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !response.Success || response.Token == "" {
		t.Fatalf("unexpected response %+v", response)
	}
	claims, err := ValidateToken(response.Token)
	if err != nil {
		t.Fatalf("Generated token should be valid: %v", err)
	}
	if claims.SessionID != response.SessionID {
		t.Errorf("Expected session ID %s, got %s", response.SessionID, claims.SessionID)
	}

	if w := postLogin("wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", w.Code)
	}
}

func TestLoginDisabledWithoutKey(t *testing.T) {
	setupConfig(t, "")
	if w := postLogin("anything"); w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestLoginRejectsBadRequests(t *testing.T) {
	setupConfig(t, "k")

	req := httptest.NewRequest("GET", "/api/auth/login", nil)
	w := httptest.NewRecorder()
	HandleLogin(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected 405, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/auth/login", bytes.NewBufferString("{"))
	w = httptest.NewRecorder()
	HandleLogin(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", w.Code)
	}
}

func TestRequireToken(t *testing.T) {
	setupConfig(t, "")

	var seen string
	handler := RequireToken(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
		if _, ok := GetClaimsFromContext(r.Context()); !ok {
			t.Error("claims missing from context")
		}
	})

	req := httptest.NewRequest("GET", "/api/programs", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}

	token, _ := GenerateToken("s-1")
	req = httptest.NewRequest("GET", "/api/programs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK || seen != "s-1" {
		t.Errorf("valid token: status %d, session %q", w.Code, seen)
	}
}
