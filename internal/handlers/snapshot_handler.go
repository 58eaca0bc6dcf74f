package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/identity"
)

// SnapshotStore reads and deletes saved snapshots
type SnapshotStore interface {
	Get(ctx context.Context, snapshotID string) (*models.SnapshotRecord, error)
	LatestPerAsset(ctx context.Context) ([]*models.AnalysisSnapshot, error)
	HistoryForAsset(ctx context.Context, assetID string, limit int) ([]*models.AnalysisSnapshot, error)
	Delete(ctx context.Context, snapshotID string) error
}

// SymbolResolver maps a raw symbol to its canonical id
type SymbolResolver interface {
	Resolve(ctx context.Context, raw string, hints identity.Hints) (models.Resolution, error)
}

// SnapshotHandler serves saved snapshots
type SnapshotHandler struct {
	snapshots SnapshotStore
	resolver  SymbolResolver
	logger    arbor.ILogger
}

// NewSnapshotHandler creates a new SnapshotHandler
func NewSnapshotHandler(snapshots SnapshotStore, resolver SymbolResolver, logger arbor.ILogger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshots: snapshots,
		resolver:  resolver,
		logger:    logger,
	}
}

// ListHandler handles GET /api/snapshots, the latest snapshot per asset
func (h *SnapshotHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	rows, err := h.snapshots.LatestPerAsset(r.Context())
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": nonNil(rows),
		"count":     len(rows),
	})
}

// GetHandler handles GET /api/snapshots/{id}
func (h *SnapshotHandler) GetHandler(w http.ResponseWriter, r *http.Request, id string) {
	record, err := h.snapshots.Get(r.Context(), id)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// DeleteHandler handles DELETE /api/snapshots/{id}
func (h *SnapshotHandler) DeleteHandler(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.snapshots.Delete(r.Context(), id); err != nil {
		WriteErr(w, err)
		return
	}
	h.logger.Info().Str("snapshot_id", id).Msg("Snapshot deleted over HTTP")
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "deleted",
		"snapshot_id": id,
	})
}

// HistoryHandler handles GET /api/assets/{symbol}/history?limit=N
func (h *SnapshotHandler) HistoryHandler(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	res, err := h.resolver.Resolve(r.Context(), symbol, identity.Hints{})
	if err != nil {
		WriteErr(w, err)
		return
	}
	rows, err := h.snapshots.HistoryForAsset(r.Context(), res.CanonicalID, QueryInt(r, "limit", 20))
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"asset_id":  res.CanonicalID,
		"snapshots": nonNil(rows),
		"count":     len(rows),
	})
}

func nonNil(rows []*models.AnalysisSnapshot) []*models.AnalysisSnapshot {
	if rows == nil {
		return []*models.AnalysisSnapshot{}
	}
	return rows
}
