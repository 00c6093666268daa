package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// requireWatch writes 503 and reports false when no file watcher is running.
// Push clients only make sense while saves are being watched.
func (h *Handler) requireWatch(w http.ResponseWriter) bool {
	if h.hub.HasActiveWatch() {
		return true
	}
	writeError(w, http.StatusServiceUnavailable, "file watching is not active", "")
	return false
}

// handleEvents streams broadcaster frames as server-sent events.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !h.requireWatch(w) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}
	sub, err := h.hub.Subscribe()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error(), "")
		return
	}
	defer h.hub.Unsubscribe(sub.ID())

	// Streams outlive the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("clearing stream write deadline", zap.Error(err))
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.Frames():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				h.logger.Debug("event stream write failed", zap.String("subscriber", sub.ID()), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) wsHandler() http.Handler {
	ws := websocket.Handler(h.serveWS)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.requireWatch(w) {
			return
		}
		ws.ServeHTTP(w, r)
	})
}

// serveWS relays broadcaster frames as text messages until either side
// closes. Inbound messages are read only to notice the peer going away.
func (h *Handler) serveWS(conn *websocket.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Time{})
	sub, err := h.hub.Subscribe()
	if err != nil {
		h.logger.Warn("websocket subscribe failed", zap.Error(err))
		return
	}
	defer h.hub.Unsubscribe(sub.ID())

	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()
	go func() {
		defer cancel()
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.Frames():
			if !ok {
				return
			}
			if err := websocket.Message.Send(conn, string(frame)); err != nil {
				h.logger.Debug("websocket write failed", zap.String("subscriber", sub.ID()), zap.Error(err))
				return
			}
		}
	}
}
