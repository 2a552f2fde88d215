package mongodb

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

const feedBufferSize = 16

type changeDocument struct {
	OperationType string       `bson:"operationType"`
	FullDocument  *entity.Game `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// toEvent maps a change stream document to a feed event. Deletes carry only the id.
func (that changeDocument) toEvent() (entity.ChangeEvent, bool) {
	switch that.OperationType {
	case "delete":
		return entity.ChangeEvent{Kind: entity.Removed, Game: &entity.Game{ID: that.DocumentKey.ID}}, true
	case "insert", "update", "replace":
		if that.FullDocument == nil {
			return entity.ChangeEvent{}, false
		}

		return entity.ChangeEvent{Kind: entity.Changed, Game: that.FullDocument}, true
	default:
		return entity.ChangeEvent{}, false
	}
}

type Feed struct {
	stream *mongo.ChangeStream
	events chan entity.ChangeEvent
	cancel context.CancelFunc
	once   sync.Once
}

func newFeed(stream *mongo.ChangeStream) *Feed {
	ctx, cancel := context.WithCancel(context.Background())

	feed := &Feed{
		stream: stream,
		events: make(chan entity.ChangeEvent, feedBufferSize),
		cancel: cancel,
	}

	go feed.run(ctx)

	return feed
}

func (that *Feed) Events() <-chan entity.ChangeEvent {
	return that.events
}

func (that *Feed) Close() error {
	that.once.Do(that.cancel)

	return nil
}

func (that *Feed) run(ctx context.Context) {
	defer close(that.events)
	defer that.stream.Close(context.Background())

	for that.stream.Next(ctx) {
		var change changeDocument
		if err := that.stream.Decode(&change); err != nil {
			continue
		}

		event, ok := change.toEvent()
		if !ok {
			continue
		}

		select {
		case that.events <- event:
		case <-ctx.Done():
			return
		}
	}
}
