package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/certprep/internal/auth"
	"github.com/gokatarajesh/certprep/internal/docstore"
	"github.com/gokatarajesh/certprep/internal/question"
	httperrors "github.com/gokatarajesh/certprep/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for test sessions.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for session endpoints.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "session_http").Logger(),
	}
}

type startRequest struct {
	Length int `json:"length"`
}

type answerRequest struct {
	OptionIndex *int `json:"option_index"`
}

type gotoRequest struct {
	Index int `json:"index"`
}

type positionResponse struct {
	CurrentIndex int `json:"currentIndex"`
}

type answerResponse struct {
	QuestionID  string `json:"questionId"`
	OptionIndex int    `json:"optionIndex"`
	Answered    int    `json:"answered"`
}

// Start handles POST /v1/modules/{moduleID}/tests
func (h *HTTPHandlers) Start(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	moduleID := chi.URLParam(r, "moduleID")

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	sess, err := h.service.Start(r.Context(), userID, moduleID, req.Length)
	if err != nil {
		h.respondServiceError(w, err, userID)
		return
	}
	httperrors.RespondJSON(w, http.StatusCreated, sess.Snapshot())
}

// Get handles GET /v1/sessions/{sessionID}
func (h *HTTPHandlers) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	view, err := h.service.View(userID, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err, userID)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, view)
}

// SelectAnswer handles PUT /v1/sessions/{sessionID}/answers/{questionID}
func (h *HTTPHandlers) SelectAnswer(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	questionID := chi.URLParam(r, "questionID")

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OptionIndex == nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "option_index is required", "option_index")
		return
	}

	answered, err := h.service.SelectAnswer(userID, chi.URLParam(r, "sessionID"), questionID, *req.OptionIndex)
	if err != nil {
		h.respondServiceError(w, err, userID)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, answerResponse{
		QuestionID:  questionID,
		OptionIndex: *req.OptionIndex,
		Answered:    answered,
	})
}

// Next handles POST /v1/sessions/{sessionID}/next
func (h *HTTPHandlers) Next(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	h.respondPosition(w, userID)(h.service.Next(userID, chi.URLParam(r, "sessionID")))
}

// Previous handles POST /v1/sessions/{sessionID}/previous
func (h *HTTPHandlers) Previous(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	h.respondPosition(w, userID)(h.service.Previous(userID, chi.URLParam(r, "sessionID")))
}

// GoTo handles POST /v1/sessions/{sessionID}/goto
func (h *HTTPHandlers) GoTo(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req gotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	h.respondPosition(w, userID)(h.service.GoTo(userID, chi.URLParam(r, "sessionID"), req.Index))
}

func (h *HTTPHandlers) respondPosition(w http.ResponseWriter, userID string) func(int, error) {
	return func(index int, err error) {
		if err != nil {
			h.respondServiceError(w, err, userID)
			return
		}
		httperrors.RespondJSON(w, http.StatusOK, positionResponse{CurrentIndex: index})
	}
}

// Submit handles POST /v1/sessions/{sessionID}/submit
func (h *HTTPHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	completion, err := h.service.Submit(r.Context(), userID, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err, userID)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, completion)
}

// Abandon handles DELETE /v1/sessions/{sessionID}
func (h *HTTPHandlers) Abandon(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if err := h.service.Abandon(userID, chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err, userID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandlers) respondServiceError(w http.ResponseWriter, err error, userID string) {
	switch {
	case errors.Is(err, ErrShuttingDown):
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, "Server is shutting down, try again shortly")
	case errors.Is(err, ErrInvalidLength):
		httperrors.RespondValidationError(w, httperrors.ErrCodeInvalidLength, "Test length is not offered", "length")
	case errors.Is(err, question.ErrEmptyPool):
		httperrors.RespondError(w, http.StatusUnprocessableEntity, httperrors.ErrCodeEmptyPool, "This module has no questions yet")
	case errors.Is(err, docstore.ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeModuleNotFound, "Module not found")
	case errors.Is(err, ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeSessionNotFound, "Session not found")
	case errors.Is(err, ErrNotActive):
		httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeSessionFinished, "Session is no longer active")
	case errors.Is(err, ErrUnknownQuestion):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeQuestionUnknown, "Question is not part of this session")
	default:
		h.logger.Error().Err(err).Str("user_id", userID).Msg("session request failed")
		httperrors.RespondInternalError(w, "Failed to process session request")
	}
}
