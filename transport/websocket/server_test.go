package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/config"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/matchmaking"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/repository"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/service"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/session"
	"github.com/rocketscienceinc/tictactoe-matchmaking/testing/suite"
)

const readTimeout = 5 * time.Second

func newTestServer(t *testing.T) (context.Context, *httptest.Server) {
	t.Helper()

	ctx, st := suite.New(t)
	store := service.NewGameService(repository.NewGameRepository(st.Storage))
	coordinator := matchmaking.NewCoordinator(st.Logger, store)

	newSession := func() *session.Session {
		return session.New(st.Logger, store, coordinator,
			session.WithMatchmaking(config.Matchmaking{
				MaxRetries:      3,
				InitialInterval: 5 * time.Millisecond,
				MaxInterval:     20 * time.Millisecond,
				RetryDelay:      50 * time.Millisecond,
				RescanInterval:  20 * time.Millisecond,
			}),
			session.WithCleanupDelay(time.Second, time.Second),
		)
	}

	server := httptest.NewServer(New(st.Logger, newSession).Handler())
	t.Cleanup(server.Close)

	return ctx, server
}

func dial(ctx context.Context, t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})

	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, action string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	data, err := json.Marshal(Message{Action: action, Payload: raw})
	require.NoError(t, err)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// readUntil reads messages until one satisfies match.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(action string, payload ResponsePayload) bool) ResponsePayload {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var message Message
		require.NoError(t, json.Unmarshal(data, &message))

		var payload ResponsePayload
		require.NoError(t, json.Unmarshal(message.Payload, &payload))

		if match(message.Action, payload) {
			return payload
		}
	}
}

func inState(state session.State) func(string, ResponsePayload) bool {
	return func(action string, payload ResponsePayload) bool {
		return action == actionUpdate && payload.View != nil && payload.View.State == state
	}
}

func TestServer_Game(t *testing.T) {
	ctx, server := newTestServer(t)

	// Given: a first client waiting in its own game
	first := dial(ctx, t, server)
	waiting := readUntil(ctx, t, first, inState(session.StateWaiting))
	assert.True(t, waiting.View.IsPending)

	// When: a second client connects
	second := dial(ctx, t, server)

	// Then: both receive an active view of the same game
	firstView := readUntil(ctx, t, first, inState(session.StateActive)).View
	secondView := readUntil(ctx, t, second, inState(session.StateActive)).View
	assert.Equal(t, firstView.GameID, secondView.GameID)
	assert.Equal(t, entity.First, firstView.Mark)
	assert.Equal(t, entity.Second, secondView.Mark)

	mover, rival := first, second
	moverMark := firstView.Mark
	if secondView.IsMyTurn {
		mover, rival = second, first
		moverMark = secondView.Mark
	}

	// When: the turn owner plays the centre
	send(ctx, t, mover, actionPlay, map[string]int{"row": 1, "column": 1})

	// Then: the rival receives the move with the turn
	rivalView := readUntil(ctx, t, rival, func(action string, payload ResponsePayload) bool {
		return action == actionUpdate && payload.View != nil && payload.View.IsMyTurn
	}).View
	assert.Equal(t, moverMark, rivalView.Board[4])
	assert.Equal(t, moverMark, rivalView.Display[1].Cells[1].Content)

	// And: playing the same cell is reported as an error
	send(ctx, t, rival, actionPlay, map[string]int{"row": 1, "column": 1})
	failure := readUntil(ctx, t, rival, func(action string, _ ResponsePayload) bool { return action == actionError })
	assert.Equal(t, actionPlay, failure.Action)
	assert.Contains(t, failure.Error, "occupied")
}

func TestServer_InvalidMessages(t *testing.T) {
	ctx, server := newTestServer(t)
	conn := dial(ctx, t, server)
	readUntil(ctx, t, conn, inState(session.StateWaiting))

	t.Run("Unknown action", func(t *testing.T) {
		send(ctx, t, conn, "game:dance", map[string]string{})

		failure := readUntil(ctx, t, conn, func(action string, _ ResponsePayload) bool { return action == actionError })
		assert.Equal(t, "game:dance", failure.Action)
		assert.Equal(t, "unknown action", failure.Error)
	})

	t.Run("Play without coordinates", func(t *testing.T) {
		send(ctx, t, conn, actionPlay, map[string]int{"row": 0})

		failure := readUntil(ctx, t, conn, func(action string, _ ResponsePayload) bool { return action == actionError })
		assert.Equal(t, ErrMissingCell.Error(), failure.Error)
	})

	t.Run("Play while waiting", func(t *testing.T) {
		send(ctx, t, conn, actionPlay, map[string]int{"row": 0, "column": 0})

		failure := readUntil(ctx, t, conn, func(action string, _ ResponsePayload) bool { return action == actionError })
		assert.Equal(t, session.ErrCannotPlay.Error(), failure.Error)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{")))

		failure := readUntil(ctx, t, conn, func(action string, _ ResponsePayload) bool { return action == actionError })
		assert.Equal(t, "invalid message format", failure.Error)
	})
}

func TestServer_Leave(t *testing.T) {
	ctx, server := newTestServer(t)

	first := dial(ctx, t, server)
	readUntil(ctx, t, first, inState(session.StateWaiting))

	second := dial(ctx, t, server)
	gameID := readUntil(ctx, t, second, inState(session.StateActive)).View.GameID

	// When: the second client leaves the game
	send(ctx, t, second, actionLeave, map[string]string{})

	// Then: the first client is moved to another game
	readUntil(ctx, t, first, func(action string, payload ResponsePayload) bool {
		return action == actionUpdate && payload.View != nil && payload.View.GameID != "" && payload.View.GameID != gameID
	})
}
