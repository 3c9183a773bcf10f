package api

import (
	"net/http"

	"github.com/mailpilot/mailpilot-api/internal/api/shared"
	"github.com/mailpilot/mailpilot-api/internal/cache"
)

// StatsProvider exposes cache statistics. All cache instances satisfy it
// regardless of their value type.
type StatsProvider interface {
	Stats() cache.Stats
}

// DebugHandler exposes operational introspection endpoints. These are wired
// behind authentication and intended for operators, not end users.
type DebugHandler struct {
	caches map[string]StatsProvider
}

// NewDebugHandler creates a DebugHandler over the given named caches.
func NewDebugHandler(caches map[string]StatsProvider) *DebugHandler {
	return &DebugHandler{caches: caches}
}

// CacheStats handles GET /api/debug/cache requests, reporting size, keys and
// access counts per cache.
func (h *DebugHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]cache.Stats, len(h.caches))
	for name, c := range h.caches {
		stats[name] = c.Stats()
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}
