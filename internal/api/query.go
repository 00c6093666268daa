package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/cory-johannsen/palworld-lens/internal/model"
)

// queryCache holds the generic form of the most recently queried snapshot.
// Snapshots are immutable, so the pointer identifies the content.
type queryCache struct {
	mu   sync.Mutex
	snap *model.Snapshot
	doc  any
}

func (c *queryCache) document(s *model.Snapshot) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == s {
		return c.doc, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	doc, err := oj.Parse(raw)
	if err != nil {
		return nil, err
	}
	c.snap, c.doc = s, doc
	return doc, nil
}

type queryResponse struct {
	Path    string `json:"path"`
	Count   int    `json:"count"`
	Results []any  `json:"results"`
}

// handleQuery evaluates a JSONPath expression against the snapshot's JSON
// form, for example $.pals[?(@.level > 40)].name.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path parameter", "")
		return
	}
	x, err := jp.ParseString(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid jsonpath: "+err.Error(), "")
		return
	}
	s := h.current(w, h.loader.Snapshot())
	if s == nil {
		return
	}
	doc, err := h.query.document(s)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	results := x.Get(doc)
	writeJSON(w, http.StatusOK, queryResponse{Path: path, Count: len(results), Results: nonNil(results)})
}
