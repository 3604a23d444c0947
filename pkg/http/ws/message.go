package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeSelectAnswer  = "select_answer"
	TypeNavigate      = "navigate"
	TypeSubmitSession = "submit_session"
	TypeLeaveSession  = "leave_session"
	TypePing          = "ping"

	// Server -> Client
	TypeSessionTick     = "session_tick"
	TypeSessionFinished = "session_finished"
	TypeAnswerAck       = "answer_ack"
	TypePositionUpdate  = "position_update"
	TypeError           = "error"
	TypePong            = "pong"
)

// Navigation directions carried by NavigatePayload.
const (
	DirectionNext     = "next"
	DirectionPrevious = "previous"
	DirectionGoTo     = "goto"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = data
	return msg, nil
}

// Client Messages (incoming)

type SelectAnswerPayload struct {
	SessionID   string `json:"session_id"`
	QuestionID  string `json:"question_id"`
	OptionIndex int    `json:"option_index"`
}

type NavigatePayload struct {
	SessionID string `json:"session_id"`
	Direction string `json:"direction"`
	Index     int    `json:"index,omitempty"`
}

type SubmitSessionPayload struct {
	SessionID string `json:"session_id"`
}

type LeaveSessionPayload struct {
	SessionID string `json:"session_id"`
}

// Server Messages (outgoing)

type SessionTickPayload struct {
	SessionID        string `json:"session_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type AnswerAckPayload struct {
	SessionID   string `json:"session_id"`
	QuestionID  string `json:"question_id"`
	OptionIndex int    `json:"option_index"`
	Answered    int    `json:"answered"`
}

type PositionUpdatePayload struct {
	SessionID    string `json:"session_id"`
	CurrentIndex int    `json:"current_index"`
	Total        int    `json:"total"`
}

type SessionFinishedPayload struct {
	SessionID string          `json:"session_id"`
	Reason    string          `json:"reason"`
	ResultID  string          `json:"result_id,omitempty"`
	Summary   json.RawMessage `json:"summary"`
	Warning   string          `json:"warning,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
