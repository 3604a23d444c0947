package report

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/certprep/internal/auth"
	"github.com/gokatarajesh/certprep/internal/docstore"
	httperrors "github.com/gokatarajesh/certprep/pkg/http/errors"
)

const maxHistoryLimit = 100

// HTTPHandlers exposes result history and the one-time report view.
type HTTPHandlers struct {
	viewer       *Viewer
	tracker      *Tracker
	historyLimit int
	logger       zerolog.Logger
}

func NewHTTPHandlers(viewer *Viewer, tracker *Tracker, historyLimit int, logger zerolog.Logger) *HTTPHandlers {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &HTTPHandlers{
		viewer:       viewer,
		tracker:      tracker,
		historyLimit: historyLimit,
		logger:       logger.With().Str("component", "report_http").Logger(),
	}
}

type historyResponse struct {
	Items      []Summary `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

type openResponse struct {
	Status Status      `json:"status"`
	Result *TestResult `json:"result,omitempty"`
}

// History handles GET /v1/results?limit=&cursor=
func (h *HTTPHandlers) History(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "limit must be a positive integer", "limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	items, next, err := h.viewer.History(r.Context(), userID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		if errors.Is(err, docstore.ErrInvalidCursor) {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "cursor is invalid", "cursor")
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("history fetch failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeHistoryFetchFail, "Failed to load result history")
		return
	}
	if items == nil {
		items = []Summary{}
	}
	httperrors.RespondJSON(w, http.StatusOK, historyResponse{Items: items, NextCursor: next})
}

// Open handles GET /v1/results/{resultID}. A successful open is the
// only one that ever returns the report body.
func (h *HTTPHandlers) Open(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	view := h.viewer.Open(r.Context(), userID, chi.URLParam(r, "resultID"))

	switch view.Status {
	case StatusAvailable:
		h.tracker.Track(view)
		w.Header().Set("Cache-Control", "no-store")
		httperrors.RespondJSON(w, http.StatusOK, openResponse{Status: view.Status, Result: view.Result})
	case StatusAlreadyViewed:
		httperrors.RespondGone(w, httperrors.ErrCodeAlreadyViewed, "This report has already been viewed")
	default:
		httperrors.RespondNotFound(w, httperrors.ErrCodeResultNotFound, "Result not found")
	}
}

// Close handles DELETE /v1/results/{resultID}
func (h *HTTPHandlers) Close(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	resultID := chi.URLParam(r, "resultID")

	_, err := h.tracker.Close(r.Context(), userID, resultID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrNotOpen):
		httperrors.RespondNotFound(w, httperrors.ErrCodeResultNotFound, "No open report view")
	default:
		h.logger.Error().Err(err).Str("result_id", resultID).Msg("report close failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeReportCloseFail, "Failed to close report")
	}
}

// Export handles POST /v1/results/{resultID}/export and always refuses.
func (h *HTTPHandlers) Export(w http.ResponseWriter, r *http.Request) {
	err := h.viewer.Export(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "resultID"))
	if errors.Is(err, ErrExportDisabled) {
		httperrors.RespondForbidden(w, httperrors.ErrCodeExportDisabled, "Reports cannot be saved or exported")
		return
	}
	httperrors.RespondInternalError(w, "Failed to export report")
}
