package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/session"
)

const (
	actionPlay   = "game:play"
	actionLeave  = "game:leave"
	actionUpdate = "session:update"
	actionError  = "error"

	writeTimeout = 3 * time.Second
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type PlayPayload struct {
	Row    *int `json:"row"`
	Column *int `json:"column"`
}

type ResponsePayload struct {
	View   *session.View `json:"view,omitempty"`
	Action string        `json:"action,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func sendMessage(ctx context.Context, conn *websocket.Conn, action string, payload ResponsePayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	responseBytes, err := json.Marshal(Message{Action: action, Payload: payloadBytes})
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err = conn.Write(writeCtx, websocket.MessageText, responseBytes); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func sendError(ctx context.Context, conn *websocket.Conn, action, errorMsg string) error {
	if err := sendMessage(ctx, conn, actionError, ResponsePayload{Action: action, Error: errorMsg}); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}
