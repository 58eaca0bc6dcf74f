package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/services/analysis"
	"github.com/ternarybob/vera/internal/services/identity"
	"github.com/ternarybob/vera/internal/services/report"
)

// SnapshotRunner runs the analysis pipeline for one symbol
type SnapshotRunner interface {
	RunSnapshot(ctx context.Context, raw string, asOf time.Time, opts analysis.RunOptions) (*models.DashboardData, error)
}

// Renderer renders a dashboard as a report document
type Renderer interface {
	Render(data *models.DashboardData, format report.Format) ([]byte, error)
}

// OptionsFunc builds run options for a profile name; empty means the configured default
type OptionsFunc func(profile string, save bool) (analysis.RunOptions, error)

// AssetHandler serves live dashboards and reports per symbol
type AssetHandler struct {
	runner   SnapshotRunner
	renderer Renderer
	options  OptionsFunc
	logger   arbor.ILogger
}

// NewAssetHandler creates a new AssetHandler
func NewAssetHandler(runner SnapshotRunner, renderer Renderer, options OptionsFunc, logger arbor.ILogger) *AssetHandler {
	return &AssetHandler{
		runner:   runner,
		renderer: renderer,
		options:  options,
		logger:   logger,
	}
}

// run parses the shared query parameters and runs one snapshot.
// Snapshots requested over HTTP are not saved unless save=true.
func (h *AssetHandler) run(w http.ResponseWriter, r *http.Request, symbol string) (*models.DashboardData, bool) {
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required")
		return nil, false
	}
	asOf, err := QueryDate(r, "as_of")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
		return nil, false
	}
	opts, err := h.options(r.URL.Query().Get("profile"), QueryBool(r, "save", false))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	opts.Hints = identity.Hints{
		Market:    strings.ToUpper(r.URL.Query().Get("market")),
		AssetType: strings.ToUpper(r.URL.Query().Get("type")),
	}

	data, err := h.runner.RunSnapshot(r.Context(), symbol, asOf, opts)
	if err != nil {
		h.logger.Warn().Err(err).Str("symbol", symbol).Msg("Dashboard request failed")
		WriteErr(w, err)
		return nil, false
	}
	return data, true
}

// DashboardHandler handles GET /api/assets/{symbol}/dashboard
func (h *AssetHandler) DashboardHandler(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	data, ok := h.run(w, r, symbol)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, data)
}

// ReportHandler handles GET /api/assets/{symbol}/report?format=md|html|pdf
func (h *AssetHandler) ReportHandler(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, ok := h.run(w, r, symbol)
	if !ok {
		return
	}

	body, err := h.renderer.Render(data, format)
	if err != nil {
		h.logger.Error().Err(err).Str("asset_id", data.AssetID).Msg("Report render failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	if format == report.FormatPDF {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q",
			strings.ReplaceAll(data.AssetID, ":", "_")+".pdf"))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func contentType(format report.Format) string {
	switch format {
	case report.FormatHTML:
		return "text/html; charset=utf-8"
	case report.FormatPDF:
		return "application/pdf"
	}
	return "text/markdown; charset=utf-8"
}
