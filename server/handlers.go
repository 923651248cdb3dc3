package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"RingCut/config"
	"RingCut/core/audio"
	"RingCut/core/auth"
	"RingCut/core/events"
	"RingCut/core/library"
	"RingCut/core/ringtone"
	"RingCut/core/scheduler"
	"RingCut/logger"
	"RingCut/repository"
	"RingCut/storage"

	"github.com/gorilla/websocket"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg       *config.Config
	library   *library.Service
	scheduler *scheduler.Service
	hub       *events.Hub
	tokens    *auth.TokenManager // nil when authentication is disabled
	admin     auth.Admin
	upgrader  websocket.Upgrader
}

// NewAPIHandler 创建新的API处理器. tokens may be nil to serve the API without authentication.
func NewAPIHandler(
	cfg *config.Config,
	lib *library.Service,
	sched *scheduler.Service,
	hub *events.Hub,
	tokens *auth.TokenManager,
	admin auth.Admin,
) *APIHandler {
	return &APIHandler{
		cfg:       cfg,
		library:   lib,
		scheduler: sched,
		hub:       hub,
		tokens:    tokens,
		admin:     admin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

// writeSuccess writes {"success": true} merged with fields.
func writeSuccess(w http.ResponseWriter, status int, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ringtone.ErrInvalidWindow),
		errors.Is(err, ringtone.ErrInvalidSettings),
		errors.Is(err, scheduler.ErrInvalidSchedule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, library.ErrNotFound),
		errors.Is(err, scheduler.ErrNotFound),
		errors.Is(err, library.ErrFormatUnavailable),
		errors.Is(err, storage.ErrObjectNotFound),
		errors.Is(err, storage.ErrHandleReleased):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, audio.ErrUnsupportedFormat),
		errors.Is(err, ringtone.ErrNotRingtone),
		errors.Is(err, ringtone.ErrParentMismatch):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, scheduler.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs server-side failures and writes the mapped status.
func handleError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(action+" failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
		writeError(w, status, "internal server error")
		return
	}
	logger.Debug(action+" rejected",
		logger.String("path", r.URL.Path),
		logger.Int("status", status),
		logger.ErrorField(err))
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// HealthHandler reports the storage layout.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":               "healthy",
		"storage_backend":      h.cfg.StorageBackend,
		"original_folder":      h.cfg.OriginalFolder,
		"wav_ringtones_folder": h.cfg.WAVRingtoneFolder,
		"mp3_ringtones_folder": h.cfg.MP3RingtoneFolder,
		"auth_enabled":         h.tokens != nil,
		"timestamp":            time.Now().Format(time.RFC3339),
	}
	if h.hub != nil {
		body["event_clients"] = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, body)
}
