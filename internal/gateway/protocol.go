package gateway

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/AIGun-Labs/aigun-backend/internal/errors"
)

// Envelope is the client→server frame shape: {"type": ..., "data": {...}}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Recognized inbound message types. Anything else is routed to the room's
// custom handler.
const (
	msgInit          = "init"
	msgPing          = "ping"
	msgHeartbeat     = "heartbeat"
	msgFollowAgent   = "follow_agent"
	msgUnfollowAgent = "unfollow_agent"
)

type initData struct {
	Authorization string `json:"authorization"`
	Subscriptions string `json:"subscriptions"`
}

type agentData struct {
	AgentID string `json:"agent_id"`
}

// serverFrame is the server→client frame shape.
type serverFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func welcomeFrame(guest bool) serverFrame {
	if guest {
		return serverFrame{Type: "welcome", Message: "Welcome! You are logged in as a guest."}
	}
	return serverFrame{Type: "welcome", Message: "Welcome! Your authentication is successful."}
}

func pongFrame() serverFrame {
	return serverFrame{Type: "pong"}
}

func errorFrame(message string) serverFrame {
	return serverFrame{Type: "error", Message: message}
}

// parseEnvelope validates an inbound text frame. Non-JSON input and frames
// without a type are protocol errors that cost the client its connection.
func parseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, apperrors.ProtocolError("invalid JSON")
	}
	if env.Type == "" {
		return Envelope{}, apperrors.ProtocolError("invalid data format")
	}
	return env, nil
}

// parseSubscriptionIDs splits the '#'-separated id list carried by an init
// message. Empty segments are skipped; a malformed UUID fails the whole list.
func parseSubscriptionIDs(raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, "#") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, apperrors.NotFoundError("subscription set does not exist").WithContext("subscription_set_id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
