package mongodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

const namespace = "tictactoe.games"

func toDocument(t *testing.T, game *entity.Game) bson.D {
	t.Helper()

	raw, err := bson.Marshal(game)
	require.NoError(t, err)

	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))

	return doc
}

func updated(count int) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: count},
		bson.E{Key: "nModified", Value: count},
	)
}

func TestGameRepository_Insert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("Insert assigns an id", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		gameRepo.newID = func() string { return "generated" }
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		id, err := gameRepo.Insert(context.Background(), entity.NewGame("", "p1", entity.First))

		require.NoError(mt, err)
		assert.Equal(mt, "generated", id)
	})

	mt.Run("Duplicate insert by the same creator succeeds", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		game := entity.NewGame("g1", "p1", entity.First)

		// Given: the record already landed during a previous attempt
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}),
			mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch, toDocument(mt.T, game)),
		)

		// When: the insert is retried
		id, err := gameRepo.Insert(context.Background(), game)

		// Then: the retry is accepted
		require.NoError(mt, err)
		assert.Equal(mt, "g1", id)
	})

	mt.Run("Duplicate insert by another creator fails", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)

		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}),
			mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch, toDocument(mt.T, entity.NewGame("g1", "p1", entity.First))),
		)

		_, err := gameRepo.Insert(context.Background(), entity.NewGame("g1", "p2", entity.First))

		require.ErrorIs(mt, err, apperror.ErrGameAlreadyExists)
	})
}

func TestGameRepository_GetByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("GetByID_Success", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		game := entity.NewGame("g1", "p1", entity.Second)
		game.SecondPlayerID = "p2"
		game.Board[4] = entity.First

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch, toDocument(mt.T, game)))

		retrieved, err := gameRepo.GetByID(context.Background(), "g1")

		require.NoError(mt, err)
		assert.Equal(mt, game, retrieved)
	})

	mt.Run("GetByID_NotFound", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch))

		_, err := gameRepo.GetByID(context.Background(), "missing")

		require.ErrorIs(mt, err, apperror.ErrGameNotFound)
	})
}

func TestGameRepository_FindPending(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("No pending games", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch))

		_, err := gameRepo.FindPending(context.Background(), "p1")

		require.ErrorIs(mt, err, apperror.ErrNoPendingGames)
	})

	mt.Run("Pending game is returned", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		game := entity.NewGame("g1", "p1", entity.First)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch, toDocument(mt.T, game)))

		found, err := gameRepo.FindPending(context.Background(), "p2")

		require.NoError(mt, err)
		assert.True(mt, found.IsPending())
	})
}

func TestGameRepository_ClaimSecondSlot(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("Matched update claims the slot", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(updated(1))

		claimed, err := gameRepo.ClaimSecondSlot(context.Background(), "g1", "p2")

		require.NoError(mt, err)
		assert.True(mt, claimed)
	})

	mt.Run("Unmatched update loses the race", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(updated(0))

		claimed, err := gameRepo.ClaimSecondSlot(context.Background(), "g1", "p3")

		require.NoError(mt, err)
		assert.False(mt, claimed)
	})
}

func TestGameRepository_CommitMove(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	active := func() *entity.Game {
		game := entity.NewGame("g1", "p1", entity.First)
		game.SecondPlayerID = "p2"

		return game
	}

	mt.Run("Valid move is written", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch, toDocument(mt.T, active())),
			updated(1),
		)

		game, err := gameRepo.CommitMove(context.Background(), "g1", entity.Move{PlayerID: "p1", Row: 0, Column: 2})

		require.NoError(mt, err)
		assert.Equal(mt, entity.First, game.Board[2])
		assert.Equal(mt, entity.Second, game.TurnMark)
	})

	mt.Run("Move is retried after a concurrent write", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch, toDocument(mt.T, active())),
			updated(0),
			mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch, toDocument(mt.T, active())),
			updated(1),
		)

		game, err := gameRepo.CommitMove(context.Background(), "g1", entity.Move{PlayerID: "p1", Row: 2, Column: 2})

		require.NoError(mt, err)
		assert.Equal(mt, entity.First, game.Board[8])
	})

	mt.Run("Invalid move is rejected without writing", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace, mtest.FirstBatch, toDocument(mt.T, active())))

		_, err := gameRepo.CommitMove(context.Background(), "g1", entity.Move{PlayerID: "p2", Row: 0, Column: 0})

		require.ErrorIs(mt, err, apperror.ErrNotYourTurn)
	})
}

func TestGameRepository_DeleteByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("Delete is idempotent", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		require.NoError(mt, gameRepo.DeleteByID(context.Background(), "g1"))
		require.NoError(mt, gameRepo.DeleteByID(context.Background(), "g1"))
	})
}

func TestGameRepository_DeletePending(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("Pending game is deleted", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		deleted, err := gameRepo.DeletePending(context.Background(), "g1")

		require.NoError(mt, err)
		assert.True(mt, deleted)
	})

	mt.Run("Joined game is kept", func(mt *mtest.T) {
		gameRepo := NewGameRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		deleted, err := gameRepo.DeletePending(context.Background(), "g1")

		require.NoError(mt, err)
		assert.False(mt, deleted)
	})
}

func TestChangeDocument_ToEvent(t *testing.T) {
	game := entity.NewGame("g1", "p1", entity.First)

	event, ok := changeDocument{OperationType: "update", FullDocument: game}.toEvent()
	require.True(t, ok)
	assert.Equal(t, entity.Changed, event.Kind)
	assert.Equal(t, game, event.Game)

	removed := changeDocument{OperationType: "delete"}
	removed.DocumentKey.ID = "g1"
	event, ok = removed.toEvent()
	require.True(t, ok)
	assert.Equal(t, entity.Removed, event.Kind)
	assert.Equal(t, "g1", event.Game.ID)

	_, ok = changeDocument{OperationType: "invalidate"}.toEvent()
	assert.False(t, ok)
}
