package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/session"
	"github.com/rocketscienceinc/tictactoe-matchmaking/transport/rest"
)

type handlerFunc func(ctx context.Context, player *session.Session, message *Message) error

// Server gives every connection its own session. The session lives as long as the connection.
type Server struct {
	logger     *zap.Logger
	newSession func() *session.Session

	handlers map[string]handlerFunc
}

func New(logger *zap.Logger, newSession func() *session.Session) *Server {
	server := &Server{
		logger:     logger,
		newSession: newSession,

		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionPlay] = server.handlePlay
	server.handlers[actionLeave] = server.handleLeave

	return server
}

func (that *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", that.handleConnection).Methods(http.MethodGet)

	return r
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	return rest.Start(ctx, port, that.Handler())
}

func (that *Server) handleConnection(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With(zap.String("method", "handleConnection"))

	conn, err := websocket.Accept(writer, req, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	player := that.newSession()
	defer player.Close()

	log = log.With(zap.String("player_id", player.PlayerID()))
	log.Info("WebSocket connection established")

	updates, stop := player.Listen()
	defer stop()

	go func() {
		if err := player.Run(ctx); err != nil {
			log.Warn("session stopped", zap.Error(err))
		}
	}()

	go that.pushUpdates(ctx, conn, updates)

	that.handleMessages(ctx, conn, player)

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// pushUpdates forwards session views to the client until the session or the connection ends.
func (that *Server) pushUpdates(ctx context.Context, conn *websocket.Conn, updates <-chan session.View) {
	for view := range updates {
		if err := sendMessage(ctx, conn, actionUpdate, ResponsePayload{View: &view}); err != nil {
			that.logger.Debug("failed to push update", zap.Error(err))
			return
		}
	}
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, conn *websocket.Conn, player *session.Session) {
	log := that.logger.With(zap.String("method", "handleMessages"), zap.String("player_id", player.PlayerID()))

	for {
		messageType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				log.Info("WebSocket closed")
			} else {
				log.Warn("error reading message", zap.Error(err))
			}

			return
		}

		if messageType != websocket.MessageText {
			continue
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			_ = sendError(ctx, conn, "", "invalid message format")
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			_ = sendError(ctx, conn, message.Action, "unknown action")
			continue
		}

		if err = handler(ctx, player, &message); err != nil {
			log.Debug("error processing message", zap.String("action", message.Action), zap.Error(err))

			if err = sendError(ctx, conn, message.Action, err.Error()); err != nil {
				log.Warn("failed to report error", zap.Error(err))
			}
		}
	}
}
