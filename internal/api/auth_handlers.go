package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"vippanel/internal/auth"
)

type contextKey string

const adminContextKey contextKey = "admin"

func adminFrom(ctx context.Context) (auth.Admin, bool) {
	admin, ok := ctx.Value(adminContextKey).(auth.Admin)
	return admin, ok
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authn := &auth.Authenticator{Tokens: s.tokens, Directory: s.directory}
		admin, err := authn.Authenticate(r)
		if err != nil {
			if errors.Is(err, auth.ErrMissingBearer) {
				fail(w, http.StatusUnauthorized, "Authentication token required")
				return
			}
			fail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminContextKey, admin)))
	})
}

func (s *Server) requireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := adminFrom(r.Context())
		if !ok || admin.Role != auth.RoleSuperAdmin {
			fail(w, http.StatusForbidden, "Super admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func adminView(admin auth.Admin) map[string]any {
	return map[string]any{
		"username":  admin.Username,
		"full_name": admin.FullName,
		"email":     admin.Email,
		"role":      admin.Role,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	admin, err := s.directory.VerifyPassword(req.Username, req.Password)
	if err != nil {
		fail(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := s.tokens.Mint(admin)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Signed in successfully",
		"data": map[string]any{
			"token": token,
			"admin": adminView(admin),
		},
	})
}

// handleLogout exists for the dashboard's sign-out flow; tokens are stateless
// so the client simply discards its copy.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Signed out successfully",
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminFrom(r.Context())
	if !ok {
		fail(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"admin": adminView(admin),
		},
	})
}
