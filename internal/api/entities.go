package api

import (
	"net/http"

	"github.com/cory-johannsen/palworld-lens/internal/model"
)

type playerDetail struct {
	Player *model.Player `json:"player"`
	Guild  *model.Guild  `json:"guild,omitempty"`
	Pals   []*model.Pal  `json:"pals"`
}

type baseDetail struct {
	*model.Base
	Pals []*model.Pal `json:"pals"`
}

type playerMarker struct {
	UID      string          `json:"uid"`
	Name     string          `json:"name"`
	GuildID  string          `json:"guildId,omitempty"`
	Location *model.Location `json:"location"`
}

type mapResponse struct {
	Players    []playerMarker     `json:"players"`
	Bases      []*model.Base      `json:"bases"`
	MapObjects []*model.MapObject `json:"mapObjects"`
	MapPoints  []model.MapPoint   `json:"mapPoints"`
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (h *Handler) handlePlayers(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, h.loader.Snapshot())
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.Players))
}

func (h *Handler) handlePlayer(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, h.loader.Snapshot())
	if s == nil {
		return
	}
	p, ok := s.Player(r.PathValue("uid"))
	if !ok {
		writeError(w, http.StatusNotFound, "player not found", "")
		return
	}
	detail := playerDetail{Player: p, Pals: nonNil(s.PalsOwnedBy(p.UID))}
	if g, ok := s.Guild(p.GuildID); ok {
		detail.Guild = g
	}
	writeJSON(w, http.StatusOK, detail)
}

// handlePals lists pals, optionally filtered by the owner, guild, base and
// ownerStatus query parameters.
func (h *Handler) handlePals(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, h.loader.Snapshot())
	if s == nil {
		return
	}
	q := r.URL.Query()
	owner, guild, base := q.Get("owner"), q.Get("guild"), q.Get("base")
	status := model.OwnerStatus(q.Get("ownerStatus"))

	out := make([]*model.Pal, 0, len(s.Pals))
	for _, p := range s.Pals {
		if owner != "" && p.OwnerUID != owner {
			continue
		}
		if guild != "" && p.GuildID != guild {
			continue
		}
		if base != "" && p.BaseID != base {
			continue
		}
		if status != "" && p.OwnerStatus != status {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handlePal(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, h.loader.Snapshot())
	if s == nil {
		return
	}
	p, ok := s.Pal(r.PathValue("instanceId"))
	if !ok {
		writeError(w, http.StatusNotFound, "pal not found", "")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleGuilds(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, h.loader.Snapshot())
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.Guilds))
}

func (h *Handler) handleGuildBases(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, h.loader.Snapshot())
	if s == nil {
		return
	}
	g, ok := s.Guild(r.PathValue("guildId"))
	if !ok {
		writeError(w, http.StatusNotFound, "guild not found", "")
		return
	}
	bases := s.BasesOf(g.GuildID)
	out := make([]baseDetail, 0, len(bases))
	for _, b := range bases {
		out = append(out, baseDetail{Base: b, Pals: nonNil(s.Index.BasePals[b.BaseID])})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleMap(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, h.loader.Snapshot())
	if s == nil {
		return
	}
	resp := mapResponse{
		Players:    []playerMarker{},
		Bases:      nonNil(s.Bases),
		MapObjects: nonNil(s.MapObjects),
		MapPoints:  nonNil(s.MapPoints),
	}
	for _, p := range s.Players {
		if p.Location == nil {
			continue
		}
		resp.Players = append(resp.Players, playerMarker{UID: p.UID, Name: p.Name, GuildID: p.GuildID, Location: p.Location})
	}
	writeJSON(w, http.StatusOK, resp)
}
