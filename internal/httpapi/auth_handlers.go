package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Roles in ascending order of privilege. Admin passes every role gate.
const (
	RoleAgent   = "agent"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Context key for user data
type contextKey string

const userContextKey contextKey = "user"

// JWTClaims represents the claims in the JWT token
type JWTClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AuthUser represents the authenticated user in request context
type AuthUser struct {
	Username string
	Role     string
}

// User is an API account. The directory is seeded in memory; there is no
// self-service signup surface.
type User struct {
	Username     string `json:"username"`
	Role         string `json:"role"`
	passwordHash []byte
}

// UserDirectory holds the known API users.
type UserDirectory struct {
	users map[string]User
}

// DefaultUserDirectory seeds the built-in demo accounts.
func DefaultUserDirectory() *UserDirectory {
	d := &UserDirectory{users: make(map[string]User)}
	d.add("admin", "admin123", RoleAdmin)
	d.add("manager1", "manager123", RoleManager)
	d.add("agent1", "agent123", RoleAgent)
	return d
}

func (d *UserDirectory) add(username, password, role string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("hash seed password for %s: %v", username, err))
	}
	d.users[username] = User{Username: username, Role: role, passwordHash: hash}
}

// Authenticate verifies a username/password pair.
func (d *UserDirectory) Authenticate(username, password string) (*User, bool) {
	u, ok := d.users[username]
	if !ok {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return nil, false
	}
	return &u, true
}

// Lookup returns a user by name without checking credentials.
func (d *UserDirectory) Lookup(username string) (*User, bool) {
	u, ok := d.users[username]
	if !ok {
		return nil, false
	}
	return &u, true
}

// parseToken validates a JWT string and returns its claims.
func (r *Router) parseToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(r.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// withAuth is middleware that requires valid JWT authentication
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, `{"error": "invalid authorization format"}`, http.StatusUnauthorized)
			return
		}

		claims, err := r.parseToken(parts[1])
		if err != nil {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}

		user := &AuthUser{Username: claims.Username, Role: claims.Role}
		ctx := context.WithValue(req.Context(), userContextKey, user)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

// withManager requires the manager role. Admin passes too.
func (r *Router) withManager(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		user := getAuthUser(req.Context())
		if user == nil || (user.Role != RoleManager && user.Role != RoleAdmin) {
			http.Error(w, `{"error": "manager role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, req)
	}
}

// getAuthUser extracts the authenticated user from context
func getAuthUser(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(userContextKey).(*AuthUser)
	return user
}

// generateJWT creates a new JWT token for a user
func (r *Router) generateJWT(user *User) (string, time.Time, error) {
	expiresAt := time.Now().Add(r.cfg.JWTExpiry)

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Username: user.Username,
		Role:     user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(r.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// handleLogin verifies credentials and issues a JWT
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if body.Username == "" || body.Password == "" {
		http.Error(w, `{"error": "username and password are required"}`, http.StatusBadRequest)
		return
	}

	user, ok := r.users.Authenticate(body.Username, body.Password)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "incorrect username or password",
		})
		return
	}

	token, expiresAt, err := r.generateJWT(user)
	if err != nil {
		r.logger.Printf("auth: failed to generate JWT: %v", err)
		http.Error(w, `{"error": "failed to create session"}`, http.StatusInternalServerError)
		return
	}

	r.logger.Printf("auth: user %s logged in (role=%s)", user.Username, user.Role)

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   expiresAt.Format(time.RFC3339),
		"user":         user,
	})
}

// handleGetMe returns the current user's data
func (r *Router) handleGetMe(w http.ResponseWriter, req *http.Request) {
	authUser := getAuthUser(req.Context())
	if authUser == nil {
		http.Error(w, `{"error": "not authenticated"}`, http.StatusUnauthorized)
		return
	}

	user, ok := r.users.Lookup(authUser.Username)
	if !ok {
		http.Error(w, `{"error": "user not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
