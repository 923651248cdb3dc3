package server

import (
	"context"
	"net/http"
	"strings"

	"RingCut/logger"
)

type contextKey string

const subjectKey contextKey = "subject"

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginHandler exchanges the admin credentials for an API token.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.admin.Verify(req.Username, req.Password); err != nil {
		logger.Warn("[Login] 登录失败", logger.String("username", req.Username), logger.String("remoteAddr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, expires, err := h.tokens.Generate(req.Username)
	if err != nil {
		handleError(w, r, "generate token", err)
		return
	}

	logger.Info("[Login] 登录成功", logger.String("username", req.Username))
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresAt": expires,
	})
}

// AuthMiddleware checks for a valid bearer token. It is a no-op when authentication is disabled.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if h.tokens == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}

		subject, err := h.tokens.Validate(token)
		if err != nil {
			logger.Debug("token rejected", logger.ErrorField(err))
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// bearerToken reads the Authorization header, or the token query parameter
// for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("token")
}

// SubjectFromContext returns the authenticated user name, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok
}
