package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a chat turn.
type Role string

// Role constants (wire-stable).
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known wire values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Frame kind strings as they appear on the wire.
const (
	frameKindHistory = "history"
	frameKindMessage = "message"
	frameKindError   = "error"
)

// Frame is the closed set of inbound websocket frames.
//
// Modeling frames as a sealed union forces every consumer to switch over the
// concrete types; an unknown wire kind surfaces as a decode error instead of
// being silently ignored.
type Frame interface {
	frameKind() string
}

// HistoryFrame carries the server's advisory context replay on connect.
// The REST history endpoint is the authority for backfill, so consumers
// acknowledge and drop it.
type HistoryFrame struct {
	Messages []HistoryFrameEntry
}

// HistoryFrameEntry is one advisory message inside a HistoryFrame.
type HistoryFrameEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageFrame is a live chat turn pushed by the server.
type MessageFrame struct {
	Role    Role
	Content string
}

// ErrorFrame is a failure notice for a turn. No message content accompanies
// it; the failed turn is simply absent.
type ErrorFrame struct {
	Message string
}

func (HistoryFrame) frameKind() string { return frameKindHistory }
func (MessageFrame) frameKind() string { return frameKindMessage }
func (ErrorFrame) frameKind() string   { return frameKindError }

// DecodeFrame parses a raw inbound frame into its typed form.
//
// The kind is probed first so that kind-specific payload shapes (history
// content is a list, message content is a string) do not reject each other.
func DecodeFrame(data []byte) (Frame, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("frame decode: %w", err)
	}

	switch strings.TrimSpace(probe.Type) {
	case frameKindHistory:
		var f struct {
			Messages []HistoryFrameEntry `json:"messages"`
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("history frame decode: %w", err)
		}
		return HistoryFrame{Messages: f.Messages}, nil

	case frameKindMessage:
		var f struct {
			Role    Role   `json:"role"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("message frame decode: %w", err)
		}
		if !f.Role.Valid() {
			return nil, fmt.Errorf("message frame: unknown role: %q", f.Role)
		}
		return MessageFrame{Role: f.Role, Content: f.Content}, nil

	case frameKindError:
		var f struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("error frame decode: %w", err)
		}
		return ErrorFrame{Message: f.Message}, nil

	default:
		return nil, fmt.Errorf("unknown frame type: %q", probe.Type)
	}
}
