package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/config"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/pkg"
)

var (
	ErrCannotPlay           = errors.New("cannot play now")
	ErrMatchmakingExhausted = errors.New("matchmaking retries exhausted")
	ErrClosed               = errors.New("session is closed")
	ErrAlreadyRunning       = errors.New("session is already running")
)

const (
	abandonTimeout        = 5 * time.Second
	defaultRescanInterval = time.Second
)

type gameStore interface {
	Insert(ctx context.Context, game *entity.Game) (string, error)
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	FindPending(ctx context.Context, excludePlayerID string) (*entity.Game, error)
	CommitMove(ctx context.Context, gameID string, move entity.Move) (*entity.Game, error)
	DeleteByID(ctx context.Context, id string) error
	DeletePending(ctx context.Context, id string) (bool, error)
	Subscribe(ctx context.Context, id string) (entity.Feed, error)
}

type joiner interface {
	TryJoin(ctx context.Context, gameID, playerID string) (bool, error)
}

type command func(ctx context.Context)

type commitResult struct {
	gameID string
	err    error
}

// Session drives one player through matchmaking, play and rematch.
//
// Every field below the channels is owned by the goroutine running Run. Other
// goroutines talk to it through commands and read it through published views.
type Session struct {
	logger *zap.Logger
	store  gameStore
	joiner joiner

	newID    func() string
	rand     *rand.Rand
	playerID string

	matchmaking config.Matchmaking
	cleanupMin  time.Duration
	cleanupMax  time.Duration

	views    *listeners
	commands chan command
	commits  chan commitResult
	closing  chan struct{}
	done     chan struct{}

	started   atomic.Bool
	closeOnce sync.Once

	state         State
	gameID        string
	mark          entity.Mark
	rival         entity.Mark
	isFirstPlayer bool
	isMyTurn      bool
	isPending     bool
	winner        entity.Mark
	draw          bool
	board         entity.Board
	progress      int

	feed    entity.Feed
	cleanup *time.Timer
	retry   *time.Timer
	rescan  *time.Timer
}

type Option func(*Session)

func WithPlayerID(id string) Option {
	return func(that *Session) {
		that.playerID = id
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(that *Session) {
		that.newID = newID
	}
}

func WithRand(source *rand.Rand) Option {
	return func(that *Session) {
		that.rand = source
	}
}

func WithMatchmaking(conf config.Matchmaking) Option {
	return func(that *Session) {
		that.matchmaking = conf
	}
}

// WithCleanupDelay sets the window the post-game deletion delay is drawn from.
func WithCleanupDelay(minDelay, maxDelay time.Duration) Option {
	return func(that *Session) {
		that.cleanupMin = minDelay
		that.cleanupMax = maxDelay
	}
}

func New(logger *zap.Logger, store gameStore, joiner joiner, opts ...Option) *Session {
	that := &Session{
		store:  store,
		joiner: joiner,
		newID:  pkg.NewID,
		matchmaking: config.Matchmaking{
			MaxRetries:      8,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			RetryDelay:      5 * time.Second,
			RescanInterval:  defaultRescanInterval,
		},
		cleanupMax: 5 * time.Second,
		commands:   make(chan command),
		commits:    make(chan commitResult),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(that)
	}

	if that.matchmaking.RescanInterval <= 0 {
		that.matchmaking.RescanInterval = defaultRescanInterval
	}

	if that.rand == nil {
		that.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint: gosec // it's ok
	}

	if that.playerID == "" {
		that.playerID = that.newID()
	}

	that.logger = logger.With(zap.String("component", "session"), zap.String("player_id", that.playerID))

	that.clear()
	that.views = newListeners(that.snapshot())

	return that
}

func (that *Session) PlayerID() string {
	return that.playerID
}

// View returns the latest published state.
func (that *Session) View() View {
	return that.views.current()
}

// Listen subscribes to state changes. The current view is delivered first.
// The channel is closed by the returned cancel function or when the session closes.
func (that *Session) Listen() (<-chan View, func()) {
	return that.views.add()
}

// Run starts matchmaking and processes events until ctx is done or Close is called.
func (that *Session) Run(ctx context.Context) error {
	select {
	case <-that.closing:
		return ErrClosed
	default:
	}

	if !that.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer close(that.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-that.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer that.shutdown()

	that.find(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-that.commands:
			cmd(ctx)
		case event, ok := <-that.events():
			if !ok {
				that.onFeedClosed(ctx)
				continue
			}

			that.onEvent(ctx, event)
		case result := <-that.commits:
			that.onCommitResult(ctx, result)
		case <-timerC(that.cleanup):
			that.cleanup = nil
			that.removeConcludedGame(ctx)
		case <-timerC(that.retry):
			that.retry = nil
			that.find(ctx)
		case <-timerC(that.rescan):
			that.rescan = nil
			that.rescanPending(ctx)
		}
	}
}

// Close stops the session. A game that is still waiting for an opponent or not
// finished yet is deleted so the other side goes back to matchmaking.
func (that *Session) Close() error {
	that.closeOnce.Do(func() {
		close(that.closing)
	})

	if that.started.Load() {
		<-that.done
	} else {
		that.views.close()
	}

	return nil
}

// Play places the own mark at row/column and passes the turn.
func (that *Session) Play(ctx context.Context, row, column int) error {
	if !that.View().CanPlay() {
		return ErrCannotPlay
	}

	return that.do(ctx, func(loopCtx context.Context) error {
		return that.play(loopCtx, row, column)
	})
}

// Leave abandons the current game and starts looking for a new one.
func (that *Session) Leave(ctx context.Context) error {
	return that.do(ctx, func(loopCtx context.Context) error {
		that.abandon()
		that.find(loopCtx)
		return nil
	})
}

func (that *Session) do(ctx context.Context, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)

	select {
	case that.commands <- func(loopCtx context.Context) { reply <- fn(loopCtx) }:
	case <-that.done:
		return ErrClosed
	case <-that.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clear resets the per-game fields to their neutral values.
func (that *Session) clear() {
	if that.feed != nil {
		_ = that.feed.Close()
		that.feed = nil
	}

	stopTimer(that.cleanup)
	that.cleanup = nil

	stopTimer(that.retry)
	that.retry = nil

	stopTimer(that.rescan)
	that.rescan = nil

	that.state = StateIdle
	that.gameID = ""
	that.mark = entity.Empty
	that.rival = entity.Empty
	that.isFirstPlayer = false
	that.isMyTurn = false
	that.isPending = true
	that.winner = entity.Empty
	that.draw = false
	that.board = entity.Board{}
	that.progress = 0
}

// abandon drops the current game. A game that cannot finish anymore is deleted.
func (that *Session) abandon() {
	gameID := that.gameID
	unfinished := gameID != "" && !that.board.Concluded()

	that.clear()

	if !unfinished {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
	defer cancel()

	if err := that.store.DeleteByID(ctx, gameID); err != nil {
		that.logger.Warn("failed to delete abandoned game", zap.String("game_id", gameID), zap.Error(err))
	}
}

func (that *Session) shutdown() {
	that.abandon()
	that.state = StateClosed
	that.publish()
	that.views.close()
}

func (that *Session) snapshot() View {
	return View{
		PlayerID:      that.playerID,
		GameID:        that.gameID,
		State:         that.state,
		Mark:          that.mark,
		Rival:         that.rival,
		IsFirstPlayer: that.isFirstPlayer,
		IsMyTurn:      that.isMyTurn,
		IsPending:     that.isPending,
		Winner:        that.winner,
		Draw:          that.draw,
		Board:         that.board,
		Display:       that.board.DisplayModel(),
	}
}

func (that *Session) publish() {
	that.views.publish(that.snapshot())
}

func (that *Session) setState(state State) {
	that.state = state
	that.publish()
}

func (that *Session) events() <-chan entity.ChangeEvent {
	if that.feed == nil {
		return nil
	}

	return that.feed.Events()
}

func timerC(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}

	return timer.C
}

func stopTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}
