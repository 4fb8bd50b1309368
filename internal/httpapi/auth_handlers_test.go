package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func testRouter() *Router {
	return &Router{
		cfg: RouterConfig{
			JWTSecret: "test-secret",
			JWTExpiry: time.Hour,
		},
		logger: log.New(os.Stderr, "", 0),
		users:  DefaultUserDirectory(),
		mux:    http.NewServeMux(),
	}
}

func TestAuthenticate(t *testing.T) {
	dir := DefaultUserDirectory()

	tests := []struct {
		name     string
		username string
		password string
		wantOK   bool
		wantRole string
	}{
		{"admin valid", "admin", "admin123", true, RoleAdmin},
		{"manager valid", "manager1", "manager123", true, RoleManager},
		{"agent valid", "agent1", "agent123", true, RoleAgent},
		{"wrong password", "admin", "nope", false, ""},
		{"unknown user", "ghost", "admin123", false, ""},
		{"empty password", "admin", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, ok := dir.Authenticate(tt.username, tt.password)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && user.Role != tt.wantRole {
				t.Errorf("role = %q, want %q", user.Role, tt.wantRole)
			}
		})
	}
}

func TestLoginIssuesValidToken(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest("POST", "/api/v1/auth/login",
		strings.NewReader(`{"username":"manager1","password":"manager123"}`))
	w := httptest.NewRecorder()
	r.handleLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", resp.TokenType)
	}

	claims, err := r.parseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Username != "manager1" || claims.Role != RoleManager {
		t.Errorf("claims = %s/%s, want manager1/manager", claims.Username, claims.Role)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest("POST", "/api/v1/auth/login",
		strings.NewReader(`{"username":"manager1","password":"wrong"}`))
	w := httptest.NewRecorder()
	r.handleLogin(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWithAuth(t *testing.T) {
	r := testRouter()

	token, _, err := r.generateJWT(&User{Username: "agent1", Role: RoleAgent})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var gotUser *AuthUser
	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		gotUser = getAuthUser(req.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid bearer token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = nil
			req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotUser == nil || gotUser.Username != "agent1" {
					t.Errorf("auth user = %+v, want agent1", gotUser)
				}
			}
		})
	}
}

func TestWithAuthRejectsExpiredToken(t *testing.T) {
	r := testRouter()
	r.cfg.JWTExpiry = -time.Hour

	token, _, err := r.generateJWT(&User{Username: "agent1", Role: RoleAgent})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for expired token", w.Code)
	}
}

func TestWithManager(t *testing.T) {
	r := testRouter()

	handler := r.withAuth(r.withManager(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{"manager allowed", RoleManager, http.StatusOK},
		{"admin allowed", RoleAdmin, http.StatusOK},
		{"agent forbidden", RoleAgent, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := r.generateJWT(&User{Username: "u", Role: tt.role})
			if err != nil {
				t.Fatalf("generate token: %v", err)
			}

			req := httptest.NewRequest("POST", "/api/v1/calls", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetMe(t *testing.T) {
	r := testRouter()

	token, _, err := r.generateJWT(&User{Username: "agent1", Role: RoleAgent})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.withAuth(r.handleGetMe)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var user User
	if err := json.NewDecoder(w.Body).Decode(&user); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if user.Username != "agent1" || user.Role != RoleAgent {
		t.Errorf("user = %s/%s, want agent1/agent", user.Username, user.Role)
	}
}

func TestPasswordHashNotSerialized(t *testing.T) {
	user, _ := DefaultUserDirectory().Lookup("admin")
	raw, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	if strings.Contains(string(raw), "$2a$") || strings.Contains(strings.ToLower(string(raw)), "hash") {
		t.Errorf("serialized user leaks password hash: %s", raw)
	}
}
