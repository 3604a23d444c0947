package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/certprep/internal/auth"
	httperrors "github.com/gokatarajesh/certprep/pkg/http/errors"
	"github.com/gokatarajesh/certprep/pkg/http/ws"
)

// WSHandler manages WebSocket connections and routes session commands.
type WSHandler struct {
	service   *Service
	hub       *ws.Hub
	validator auth.TokenValidator
	logger    zerolog.Logger
}

// NewWSHandler creates a session WebSocket handler.
func NewWSHandler(service *Service, hub *ws.Hub, validator auth.TokenValidator, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service:   service,
		hub:       hub,
		validator: validator,
		logger:    logger.With().Str("component", "session_ws").Logger(),
	}
}

// ServeHTTP upgrades GET /ws/sessions?token= and authenticates the user.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Missing token")
		return
	}

	claims, err := h.validator.ValidateAccessToken(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket token validation failed")
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
		return
	}

	conn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsConn := ws.NewConnection(conn, h.logger)
	h.hub.RegisterConnection(claims.UserID, wsConn)

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.HandleMessage(context.Background(), claims.UserID, msg)
	})

	h.hub.UnregisterConnection(claims.UserID, wsConn)
}

// HandleMessage routes one incoming command for userID.
func (h *WSHandler) HandleMessage(ctx context.Context, userID string, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeSelectAnswer:
		return h.handleSelectAnswer(userID, msg)
	case ws.TypeNavigate:
		return h.handleNavigate(userID, msg)
	case ws.TypeSubmitSession:
		return h.handleSubmit(ctx, userID, msg)
	case ws.TypeLeaveSession:
		return h.handleLeave(userID, msg)
	case ws.TypePing:
		return h.reply(userID, msg.RequestID, ws.TypePong, nil)
	default:
		return h.sendError(userID, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *WSHandler) handleSelectAnswer(userID string, msg ws.Message) error {
	var req ws.SelectAnswerPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(userID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid select_answer payload")
	}

	answered, err := h.service.SelectAnswer(userID, req.SessionID, req.QuestionID, req.OptionIndex)
	if err != nil {
		return h.sendServiceError(userID, msg.RequestID, err)
	}
	return h.reply(userID, msg.RequestID, ws.TypeAnswerAck, ws.AnswerAckPayload{
		SessionID:   req.SessionID,
		QuestionID:  req.QuestionID,
		OptionIndex: req.OptionIndex,
		Answered:    answered,
	})
}

func (h *WSHandler) handleNavigate(userID string, msg ws.Message) error {
	var req ws.NavigatePayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(userID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid navigate payload")
	}

	var (
		index int
		err   error
	)
	switch req.Direction {
	case ws.DirectionNext:
		index, err = h.service.Next(userID, req.SessionID)
	case ws.DirectionPrevious:
		index, err = h.service.Previous(userID, req.SessionID)
	case ws.DirectionGoTo:
		index, err = h.service.GoTo(userID, req.SessionID, req.Index)
	default:
		return h.sendError(userID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "direction must be next, previous or goto")
	}
	if err != nil {
		return h.sendServiceError(userID, msg.RequestID, err)
	}

	total := 0
	if sess, gerr := h.service.Get(userID, req.SessionID); gerr == nil {
		total = sess.Len()
	}
	return h.reply(userID, msg.RequestID, ws.TypePositionUpdate, ws.PositionUpdatePayload{
		SessionID:    req.SessionID,
		CurrentIndex: index,
		Total:        total,
	})
}

// handleSubmit relies on the service's completion push for the result.
func (h *WSHandler) handleSubmit(ctx context.Context, userID string, msg ws.Message) error {
	var req ws.SubmitSessionPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(userID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid submit_session payload")
	}
	if _, err := h.service.Submit(ctx, userID, req.SessionID); err != nil {
		return h.sendServiceError(userID, msg.RequestID, err)
	}
	return nil
}

func (h *WSHandler) handleLeave(userID string, msg ws.Message) error {
	var req ws.LeaveSessionPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(userID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid leave_session payload")
	}
	if err := h.service.Abandon(userID, req.SessionID); err != nil {
		return h.sendServiceError(userID, msg.RequestID, err)
	}
	return nil
}

func (h *WSHandler) sendServiceError(userID, requestID string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return h.sendError(userID, requestID, httperrors.ErrCodeSessionNotFound, "Session not found")
	case errors.Is(err, ErrNotActive):
		return h.sendError(userID, requestID, httperrors.ErrCodeSessionFinished, "Session is no longer active")
	case errors.Is(err, ErrUnknownQuestion):
		return h.sendError(userID, requestID, httperrors.ErrCodeQuestionUnknown, "Question is not part of this session")
	default:
		h.logger.Error().Err(err).Str("user_id", userID).Msg("session command failed")
		return h.sendError(userID, requestID, httperrors.ErrCodeInternalError, "Failed to process command")
	}
}

func (h *WSHandler) reply(userID, requestID, msgType string, payload any) error {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return h.hub.SendToUser(userID, msg)
}

func (h *WSHandler) sendError(userID, requestID, code, message string) error {
	return h.reply(userID, requestID, ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
}
