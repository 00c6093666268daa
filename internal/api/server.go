// Package api exposes the current snapshot, the loader controls and the live
// update stream over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/palworld-lens/internal/broadcast"
	"github.com/cory-johannsen/palworld-lens/internal/loader"
	"github.com/cory-johannsen/palworld-lens/internal/model"
	"github.com/cory-johannsen/palworld-lens/internal/watch"
)

// Loader is the snapshot source and reload trigger.
type Loader interface {
	Snapshot() loader.View
	Reload(ctx context.Context) (*model.Snapshot, error)
}

// Watcher starts and stops file watching.
type Watcher interface {
	Status() watch.Status
	Start() error
	Stop()
}

// Hub hands out live update subscriptions.
type Hub interface {
	Subscribe() (*broadcast.Subscriber, error)
	Unsubscribe(id string)
	SubscriberCount() int
	HasActiveWatch() bool
}

// Handler serves the /api routes.
type Handler struct {
	logger  *zap.Logger
	loader  Loader
	watcher Watcher
	hub     Hub
	mux     *http.ServeMux
	query   queryCache
}

// NewHandler wires every route onto a fresh mux.
//
// Precondition: all arguments must be non-nil.
func NewHandler(logger *zap.Logger, l Loader, w Watcher, hub Hub) *Handler {
	h := &Handler{logger: logger, loader: l, watcher: w, hub: hub, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/status", h.handleStatus)
	h.mux.HandleFunc("GET /api/snapshot", h.handleSnapshot)
	h.mux.HandleFunc("GET /api/players", h.handlePlayers)
	h.mux.HandleFunc("GET /api/players/{uid}", h.handlePlayer)
	h.mux.HandleFunc("GET /api/pals", h.handlePals)
	h.mux.HandleFunc("GET /api/pals/{instanceId}", h.handlePal)
	h.mux.HandleFunc("GET /api/guilds", h.handleGuilds)
	h.mux.HandleFunc("GET /api/guilds/{guildId}/bases", h.handleGuildBases)
	h.mux.HandleFunc("GET /api/map", h.handleMap)
	h.mux.HandleFunc("POST /api/reload", h.handleReload)
	h.mux.HandleFunc("GET /api/watch", h.handleWatchStatus)
	h.mux.HandleFunc("POST /api/watch/start", h.handleWatchStart)
	h.mux.HandleFunc("POST /api/watch/stop", h.handleWatchStop)
	h.mux.HandleFunc("GET /api/events", h.handleEvents)
	h.mux.Handle("GET /api/ws", h.wsHandler())
	h.mux.HandleFunc("GET /api/debug/query", h.handleQuery)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Error string       `json:"error"`
	State loader.State `json:"state,omitempty"`
}

// statusResponse flattens the loader status with snapshot metadata.
type statusResponse struct {
	loader.Status
	WorldName   string            `json:"worldName,omitempty"`
	LoadedAt    *time.Time        `json:"loadedAt,omitempty"`
	Counts      map[string]int    `json:"counts,omitempty"`
	Stats       *model.ParseStats `json:"stats,omitempty"`
	Watch       watch.Status      `json:"watch"`
	Subscribers int               `json:"subscribers"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string, state loader.State) {
	writeJSON(w, status, errorResponse{Error: msg, State: state})
}

func (h *Handler) status(view loader.View) statusResponse {
	resp := statusResponse{
		Status:      view.Status,
		Watch:       h.watcher.Status(),
		Subscribers: h.hub.SubscriberCount(),
	}
	if s := view.Snapshot; s != nil {
		loadedAt := s.LoadedAt
		stats := s.Stats
		resp.WorldName = s.WorldName
		resp.LoadedAt = &loadedAt
		resp.Counts = s.Counts()
		resp.Stats = &stats
	}
	return resp
}

// current returns view's snapshot, or writes 503 and returns nil when none
// has loaded yet. The load state travels in headers so callers can tell a
// stale snapshot from a fresh one. Handlers read the view once and pass it
// here so headers and body describe the same pass.
func (h *Handler) current(w http.ResponseWriter, view loader.View) *model.Snapshot {
	w.Header().Set("X-Lens-State", string(view.Status.State))
	if view.Status.Err != "" {
		w.Header().Set("X-Lens-Error", view.Status.Err)
	}
	if view.Snapshot == nil {
		msg := "no snapshot loaded"
		if view.Status.Err != "" {
			msg = view.Status.Err
		}
		writeError(w, http.StatusServiceUnavailable, msg, view.Status.State)
		return nil
	}
	return view.Snapshot
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status(h.loader.Snapshot()))
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	view := h.loader.Snapshot()
	if h.current(w, view) == nil {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status   statusResponse  `json:"status"`
		Snapshot *model.Snapshot `json:"snapshot"`
	}{h.status(view), view.Snapshot})
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	_, err := h.loader.Reload(r.Context())
	view := h.loader.Snapshot()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.status(view))
	case errors.Is(err, loader.ErrNotConfigured), errors.Is(err, loader.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error(), view.Status.State)
	case errors.Is(err, context.Canceled):
		// The client went away; the pass keeps running.
		h.logger.Debug("reload request abandoned")
	default:
		h.logger.Warn("reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error(), view.Status.State)
	}
}

func (h *Handler) handleWatchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.watcher.Status())
}

func (h *Handler) handleWatchStart(w http.ResponseWriter, r *http.Request) {
	if err := h.watcher.Start(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, watch.ErrWatchNotAllowed) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, h.watcher.Status())
}

func (h *Handler) handleWatchStop(w http.ResponseWriter, r *http.Request) {
	h.watcher.Stop()
	writeJSON(w, http.StatusOK, h.watcher.Status())
}
