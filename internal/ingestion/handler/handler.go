package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
)

// maxBatch bounds the documents accepted by one batch request.
const maxBatch = 1000

// Publisher is implemented by publisher.Publisher.
type Publisher interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
	IngestBatch(ctx context.Context, reqs []ingestion.IngestRequest) ([]*ingestion.IngestResponse, error)
	Delete(ctx context.Context, id string) (*ingestion.IngestResponse, error)
}

type Handler struct {
	publisher Publisher
	schema    *index.Schema
	logger    *slog.Logger
}

func New(pub Publisher, schema *index.Schema) *Handler {
	return &Handler{
		publisher: pub,
		schema:    schema,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest handles POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !h.validate(w, &req) {
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req)
	if err != nil {
		log.Error("ingestion failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "ingestion failed")
		return
	}
	log.Info("document queued",
		"doc_id", resp.DocumentID,
		"shard_id", resp.ShardID,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// IngestBatch handles POST /api/v1/documents/batch. One invalid document
// rejects the whole batch.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ingestion.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Documents) == 0 || len(req.Documents) > maxBatch {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("batch must hold 1 to %d documents", maxBatch))
		return
	}
	for i := range req.Documents {
		if err := validator.ValidateIngestRequest(&req.Documents[i], h.schema); err != nil {
			h.writeValidation(w, err, i)
			return
		}
	}

	resps, err := h.publisher.IngestBatch(ctx, req.Documents)
	if err != nil {
		logger.FromContext(ctx).Error("batch ingestion failed", "documents", len(req.Documents), "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "ingestion failed")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{"documents": resps})
}

// Delete handles DELETE /api/v1/documents/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	resp, err := h.publisher.Delete(r.Context(), id)
	if err != nil {
		logger.FromContext(r.Context()).Error("delete failed", "doc_id", id, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "delete failed")
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) validate(w http.ResponseWriter, req *ingestion.IngestRequest) bool {
	if err := validator.ValidateIngestRequest(req, h.schema); err != nil {
		h.writeValidation(w, err, -1)
		return false
	}
	return true
}

// writeValidation reports err; index >= 0 names the offending batch entry.
func (h *Handler) writeValidation(w http.ResponseWriter, err error, index int) {
	var validationErr *validator.ValidationError
	if !errors.As(err, &validationErr) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body := map[string]any{
		"error":  "validation failed",
		"fields": validationErr.Fields,
	}
	if index >= 0 {
		body["document"] = index
	}
	h.writeJSON(w, http.StatusBadRequest, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
