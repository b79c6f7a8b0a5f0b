package state

import (
	"context"
	"testing"

	"Trendline/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func storedDoc(t *mtest.T, st *models.EntityState) bson.D {
	raw, err := bson.Marshal(entityDocument{Key: st.Ref.Key(), State: *st})
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func found(t *mtest.T, st *models.EntityState) bson.D {
	ns := t.DB.Name() + "." + t.Coll.Name()
	if st == nil {
		return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch)
	}
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, storedDoc(t, st))
}

func matched(n int) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: n}, bson.E{Key: "nModified", Value: n})
}

func stateAt(version int64, ids ...string) *models.EntityState {
	st := models.NewEntityState(userRef)
	st.Version = version
	st.Summary.ContributingIDs = append(st.Summary.ContributingIDs, ids...)
	return st
}

// replaceFilters returns the version each update command was conditioned on.
func replaceFilters(t *mtest.T) []int64 {
	var out []int64
	for e := t.GetStartedEvent(); e != nil; e = t.GetStartedEvent() {
		if e.CommandName != "update" {
			continue
		}
		q := e.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("q")
		out = append(out, q.Document().Lookup("version").AsInt64())
	}
	return out
}

func TestMongoStoreUpdate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("retries after a concurrent writer wins", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, mt.Coll.Name())
		mt.AddMockResponses(
			found(mt, stateAt(2, "a")),
			matched(0),
			found(mt, stateAt(3, "a", "b")),
			matched(1),
		)

		calls := 0
		st, err := s.Update(ctx, userRef, func(cur *models.EntityState) (*models.EntityState, error) {
			calls++
			return addID("c")(cur)
		})
		require.NoError(mt, err)
		assert.Equal(mt, 2, calls)
		assert.Equal(mt, int64(4), st.Version)
		assert.Equal(mt, []string{"a", "b", "c"}, st.Summary.ContributingIDs)
		assert.Equal(mt, []int64{2, 3}, replaceFilters(mt))
	})

	mt.Run("gives up with ErrConflict", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, mt.Coll.Name())
		for i := 0; i < s.maxRetries; i++ {
			mt.AddMockResponses(found(mt, stateAt(int64(i+1))), matched(0))
		}

		_, err := s.Update(ctx, userRef, addID("x"))
		assert.ErrorIs(mt, err, ErrConflict)
		assert.Len(mt, replaceFilters(mt), s.maxRetries)
	})

	mt.Run("first write inserts", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, mt.Coll.Name())
		mt.AddMockResponses(found(mt, nil), mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		st, err := s.Update(ctx, userRef, addID("a"))
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), st.Version)
		assert.Equal(mt, []string{"a"}, st.Summary.ContributingIDs)
	})

	mt.Run("insert race falls back to replace", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, mt.Coll.Name())
		mt.AddMockResponses(
			found(mt, nil),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
			found(mt, stateAt(1, "other")),
			matched(1),
		)

		st, err := s.Update(ctx, userRef, addID("a"))
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), st.Version)
		assert.Equal(mt, []string{"other", "a"}, st.Summary.ContributingIDs)
	})

	mt.Run("no change skips the write", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, mt.Coll.Name())
		mt.AddMockResponses(found(mt, stateAt(5, "a")))

		st, err := s.Update(ctx, userRef, func(*models.EntityState) (*models.EntityState, error) {
			return nil, ErrNoChange
		})
		require.NoError(mt, err)
		assert.Equal(mt, int64(5), st.Version)
		assert.Empty(mt, replaceFilters(mt))
	})

	mt.Run("read of a missing entity", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, mt.Coll.Name())
		mt.AddMockResponses(found(mt, nil))

		_, err := s.Read(ctx, userRef)
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}
