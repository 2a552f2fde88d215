package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/session"
)

var ErrMissingCell = errors.New("row and column are required")

func (that *Server) handlePlay(ctx context.Context, player *session.Session, message *Message) error {
	var payload PlayPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.Row == nil || payload.Column == nil {
		return ErrMissingCell
	}

	return player.Play(ctx, *payload.Row, *payload.Column)
}

func (that *Server) handleLeave(ctx context.Context, player *session.Session, _ *Message) error {
	return player.Leave(ctx)
}
