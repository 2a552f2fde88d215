package repository

import (
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

const feedBufferSize = 16

// Feed turns the pub/sub messages of one game channel into change events.
type Feed struct {
	pubsub *redis.PubSub
	events chan entity.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

func newFeed(pubsub *redis.PubSub) *Feed {
	feed := &Feed{
		pubsub: pubsub,
		events: make(chan entity.ChangeEvent, feedBufferSize),
		done:   make(chan struct{}),
	}

	go feed.run(pubsub.Channel())

	return feed
}

func (that *Feed) Events() <-chan entity.ChangeEvent {
	return that.events
}

func (that *Feed) Close() error {
	var err error

	that.once.Do(func() {
		close(that.done)
		err = that.pubsub.Close()
	})

	return err
}

func (that *Feed) run(messages <-chan *redis.Message) {
	defer close(that.events)

	for {
		select {
		case <-that.done:
			return
		case message, ok := <-messages:
			if !ok {
				return
			}

			var event entity.ChangeEvent
			if err := json.Unmarshal([]byte(message.Payload), &event); err != nil || event.Game == nil {
				continue
			}

			select {
			case that.events <- event:
			case <-that.done:
				return
			}
		}
	}
}
