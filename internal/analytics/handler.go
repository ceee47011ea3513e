package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	aggregator *Aggregator
	store      *Store
	logger     *slog.Logger
}

// NewHandler serves aggregator's live totals. store may be nil, in which
// case Latest answers 404.
func NewHandler(aggregator *Aggregator, store *Store) *Handler {
	return &Handler{
		aggregator: aggregator,
		store:      store,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, h.aggregator.Stats())
}

// Latest serves the most recent persisted snapshot.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "snapshot store not configured"})
		return
	}
	stats, err := h.store.LatestSnapshot(r.Context())
	if err != nil {
		h.logger.Error("loading latest snapshot", "error", err)
		h.write(w, http.StatusInternalServerError, map[string]string{"error": "loading snapshot failed"})
		return
	}
	if stats == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "no snapshot saved yet"})
		return
	}
	h.write(w, http.StatusOK, stats)
}

func (h *Handler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
