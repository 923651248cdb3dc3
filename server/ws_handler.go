package server

import (
	"context"
	"net/http"

	"RingCut/logger"
)

// EventsHandler upgrades to a websocket that receives library and scheduler events.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	// the request context ends with this handler; the pumps outlive it
	h.hub.Attach(context.Background(), conn)
	logger.Debug("event client connected", logger.String("remoteAddr", r.RemoteAddr))
}
