package session

import (
	"sync"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateJoining   State = "joining"
	StateCreating  State = "creating"
	StateWaiting   State = "waiting_for_opponent"
	StateActive    State = "active"
	StateConcluded State = "concluded"
	StateClosed    State = "closed"
)

// View is a snapshot of a session published to its listeners.
type View struct {
	PlayerID      string               `json:"player_id"`
	GameID        string               `json:"game_id"`
	State         State                `json:"state"`
	Mark          entity.Mark          `json:"mark"`
	Rival         entity.Mark          `json:"rival"`
	IsFirstPlayer bool                 `json:"is_first_player"`
	IsMyTurn      bool                 `json:"is_my_turn"`
	IsPending     bool                 `json:"is_pending"`
	Winner        entity.Mark          `json:"winner"`
	Draw          bool                 `json:"draw"`
	Board         entity.Board         `json:"board"`
	Display       [3]entity.DisplayRow `json:"display"`
}

// CanPlay reports whether the owner of this view may place a mark now.
func (that View) CanPlay() bool {
	return that.GameID != "" && that.IsMyTurn && !that.IsPending && !that.Board.HasWinner()
}

// listeners fans views out to subscribers. Each subscriber holds at most one
// unread view: a newer view replaces an unread older one.
type listeners struct {
	mu     sync.Mutex
	last   View
	subs   map[int]chan View
	nextID int
	closed bool
}

func newListeners(initial View) *listeners {
	return &listeners{
		last: initial,
		subs: make(map[int]chan View),
	}
}

func (that *listeners) current() View {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.last
}

func (that *listeners) add() (<-chan View, func()) {
	that.mu.Lock()
	defer that.mu.Unlock()

	ch := make(chan View, 1)
	if that.closed {
		ch <- that.last
		close(ch)
		return ch, func() {}
	}

	id := that.nextID
	that.nextID++
	that.subs[id] = ch
	ch <- that.last

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			that.mu.Lock()
			defer that.mu.Unlock()

			if sub, ok := that.subs[id]; ok {
				delete(that.subs, id)
				close(sub)
			}
		})
	}
}

func (that *listeners) publish(view View) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.last = view

	for _, ch := range that.subs {
		select {
		case ch <- view:
			continue
		default:
		}

		select {
		case <-ch:
		default:
		}

		select {
		case ch <- view:
		default:
		}
	}
}

func (that *listeners) close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.closed = true
	for id, ch := range that.subs {
		delete(that.subs, id)
		close(ch)
	}
}
