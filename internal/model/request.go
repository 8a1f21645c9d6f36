package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrBadRequest marks a chat payload that is missing, not a list, or holds
// a turn without role or content.
var ErrBadRequest = errors.New("bad request")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one message of the conversation.
type ChatTurn struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// NewTurn creates a turn with a time ordered unique id.
func NewTurn(role, content string) ChatTurn {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ChatTurn{ID: id.String(), Role: role, Content: content}
}

// ChatRequestBody is the wrapped request shape clients send.
type ChatRequestBody struct {
	Messages []ChatTurn `json:"messages"`
}

// RequestShape records which of the accepted payload shapes was received.
type RequestShape int

const (
	ShapeBare RequestShape = iota + 1
	ShapeWrapped
)

func (s RequestShape) String() string {
	switch s {
	case ShapeBare:
		return "bare"
	case ShapeWrapped:
		return "wrapped"
	}
	return "unknown"
}

// ChatRequest is the normalized form of either accepted payload.
type ChatRequest struct {
	Shape    RequestShape
	Messages []ChatTurn
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// wireTurn accepts both plain {role, content} turns and UI-message turns
// carrying text parts.
type wireTurn struct {
	ID      string     `json:"id"`
	Role    *string    `json:"role"`
	Content *string    `json:"content"`
	Parts   []textPart `json:"parts"`
}

type wireEnvelope struct {
	Messages json.RawMessage `json:"messages"`
}

var validate = validator.New()

// ParseChatRequest accepts a bare JSON list of turns or an object wrapping
// the list under "messages". Anything else fails with ErrBadRequest.
func ParseChatRequest(body []byte) (*ChatRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrBadRequest)
	}

	var (
		list  json.RawMessage
		shape RequestShape
	)
	switch trimmed[0] {
	case '[':
		list, shape = trimmed, ShapeBare
	case '{':
		var env wireEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		list = bytes.TrimSpace(env.Messages)
		if len(list) == 0 || list[0] != '[' {
			return nil, fmt.Errorf("%w: messages must be a list", ErrBadRequest)
		}
		shape = ShapeWrapped
	default:
		return nil, fmt.Errorf("%w: expected a list or an object", ErrBadRequest)
	}

	var raw []wireTurn
	if err := json.Unmarshal(list, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: messages is empty", ErrBadRequest)
	}

	turns := make([]ChatTurn, 0, len(raw))
	for i, w := range raw {
		turn, err := w.normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: message %d: %v", ErrBadRequest, i, err)
		}
		turns = append(turns, turn)
	}
	return &ChatRequest{Shape: shape, Messages: turns}, nil
}

func (w wireTurn) normalize() (ChatTurn, error) {
	if w.Role == nil {
		return ChatTurn{}, errors.New("role is required")
	}
	role := strings.ToLower(strings.TrimSpace(*w.Role))
	if role == "model" {
		role = RoleAssistant
	}

	var content string
	switch {
	case w.Content != nil:
		content = *w.Content
	case len(w.Parts) > 0:
		var b strings.Builder
		for _, p := range w.Parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		content = b.String()
	default:
		return ChatTurn{}, errors.New("content is required")
	}

	turn := ChatTurn{ID: w.ID, Role: role, Content: content}
	if err := validate.Struct(turn); err != nil {
		return ChatTurn{}, err
	}
	return turn, nil
}
