package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Trendline/backend/go/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type storeFactory func(t *testing.T, init Initializer) Store

func backends(t *testing.T) map[string]storeFactory {
	out := map[string]storeFactory{
		"memory": func(t *testing.T, init Initializer) Store {
			return NewMemoryStore(WithMemoryInitializer(init))
		},
		"redis": func(t *testing.T, init Initializer) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, WithRedisInitializer(init))
		},
	}
	if uri := os.Getenv("TRENDLINE_MONGO_URI"); uri != "" {
		out["mongo"] = func(t *testing.T, init Initializer) Store {
			ctx := context.Background()
			client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
			require.NoError(t, err)
			db := client.Database(fmt.Sprintf("trendline_test_%d", time.Now().UnixNano()))
			t.Cleanup(func() {
				_ = db.Drop(ctx)
				_ = client.Disconnect(ctx)
			})
			return NewMongoStore(db, "entities", WithMongoInitializer(init))
		}
	}
	return out
}

var userRef = models.EntityRef{Kind: models.KindUser, ID: "u1"}

func addID(id string) Mutator {
	return func(cur *models.EntityState) (*models.EntityState, error) {
		cur.Summary.ContributingIDs = append(cur.Summary.ContributingIDs, id)
		cur.Summary.Text += id + ";"
		return cur, nil
	}
}

func TestStoreContract(t *testing.T) {
	for name, factory := range backends(t) {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Run("read missing", func(t *testing.T) {
				s := factory(t, DefaultInitializer)
				_, err := s.Read(context.Background(), userRef)
				require.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("update creates and registers", func(t *testing.T) {
				s := factory(t, DefaultInitializer)
				ctx := context.Background()

				got, err := s.Update(ctx, userRef, addID("a"))
				require.NoError(t, err)
				assert.Equal(t, int64(1), got.Version)
				assert.Equal(t, []string{"a"}, got.Summary.ContributingIDs)

				read, err := s.Read(ctx, userRef)
				require.NoError(t, err)
				assert.Equal(t, got.Summary.Text, read.Summary.Text)
				assert.Equal(t, userRef, read.Ref)

				ids, err := s.ListEntities(ctx, models.KindUser)
				require.NoError(t, err)
				assert.Equal(t, []string{"u1"}, ids)

				ids, err = s.ListEntities(ctx, models.KindGlobal)
				require.NoError(t, err)
				assert.Empty(t, ids)
			})

			t.Run("no change does not write", func(t *testing.T) {
				s := factory(t, DefaultInitializer)
				ctx := context.Background()
				noChange := func(*models.EntityState) (*models.EntityState, error) { return nil, ErrNoChange }

				_, err := s.Update(ctx, userRef, noChange)
				require.NoError(t, err)
				_, err = s.Read(ctx, userRef)
				require.ErrorIs(t, err, ErrNotFound)

				_, err = s.Update(ctx, userRef, addID("a"))
				require.NoError(t, err)
				got, err := s.Update(ctx, userRef, noChange)
				require.NoError(t, err)
				assert.Equal(t, int64(1), got.Version)
			})

			t.Run("mutator error leaves state untouched", func(t *testing.T) {
				s := factory(t, DefaultInitializer)
				ctx := context.Background()
				_, err := s.Update(ctx, userRef, addID("a"))
				require.NoError(t, err)
				before, err := s.Read(ctx, userRef)
				require.NoError(t, err)

				boom := errors.New("boom")
				_, err = s.Update(ctx, userRef, func(cur *models.EntityState) (*models.EntityState, error) {
					cur.Summary.Text = "half written"
					return nil, boom
				})
				require.ErrorIs(t, err, boom)

				after, err := s.Read(ctx, userRef)
				require.NoError(t, err)
				assert.Equal(t, before.Summary.Text, after.Summary.Text)
				assert.Equal(t, before.Version, after.Version)
			})

			t.Run("same entity updates are serialized", func(t *testing.T) {
				s := factory(t, DefaultInitializer)
				ctx := context.Background()
				var inFlight, maxInFlight int32

				var wg sync.WaitGroup
				for i := 0; i < 10; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := s.Update(ctx, userRef, func(cur *models.EntityState) (*models.EntityState, error) {
							n := atomic.AddInt32(&inFlight, 1)
							for {
								m := atomic.LoadInt32(&maxInFlight)
								if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
									break
								}
							}
							time.Sleep(2 * time.Millisecond)
							atomic.AddInt32(&inFlight, -1)
							return addID(fmt.Sprintf("id-%d", i))(cur)
						})
						assert.NoError(t, err)
					}(i)
				}
				wg.Wait()

				got, err := s.Read(ctx, userRef)
				require.NoError(t, err)
				assert.Len(t, got.Summary.ContributingIDs, 10)
				assert.Equal(t, int64(10), got.Version)
				assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
			})

			t.Run("initializer seeds new entities", func(t *testing.T) {
				s := factory(t, func(ref models.EntityRef) *models.EntityState {
					st := models.NewEntityState(ref)
					st.Profile = map[string]string{"source": "init"}
					return st
				})
				got, err := s.Update(context.Background(), userRef, addID("a"))
				require.NoError(t, err)
				assert.Equal(t, "init", got.Profile["source"])
			})
		})
	}
}

func TestMemoryStoreDistinctEntitiesRunInParallel(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, models.EntityRef{Kind: models.KindUser, ID: "a"}, func(cur *models.EntityState) (*models.EntityState, error) {
			close(entered)
			<-release
			return cur, nil
		})
		done <- err
	}()
	<-entered

	// b must not wait for a
	_, err := s.Update(ctx, models.EntityRef{Kind: models.KindUser, ID: "b"}, addID("x"))
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)
}

func TestMemoryStoreReadReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Update(ctx, userRef, addID("a"))
	require.NoError(t, err)

	got, err := s.Read(ctx, userRef)
	require.NoError(t, err)
	got.Summary.ContributingIDs[0] = "tampered"

	again, err := s.Read(ctx, userRef)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Summary.ContributingIDs)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, WithRedisPrefix("tl"))

	_, err := s.Update(context.Background(), userRef, addID("a"))
	require.NoError(t, err)

	assert.True(t, mr.Exists("tl:state:user:u1"))
	members, err := mr.Members("tl:entities:user")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, members)
	assert.False(t, mr.Exists("tl:lock:user:u1"), "lock must be released after update")
}

func TestRedisStoreLockTimeout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client)

	// another process holds the lock
	require.NoError(t, mr.Set("trendline:lock:user:u1", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	called := false
	_, err := s.Update(ctx, userRef, func(cur *models.EntityState) (*models.EntityState, error) {
		called = true
		return cur, nil
	})
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)

	v, err := mr.Get("trendline:lock:user:u1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRedisStoreRejectsWriteAfterLockLoss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client)

	_, err := s.Update(context.Background(), userRef, func(cur *models.EntityState) (*models.EntityState, error) {
		// lock expired and was taken over while the mutator ran
		mr.Set("trendline:lock:user:u1", "intruder")
		return addID("late")(cur)
	})
	require.ErrorIs(t, err, ErrConflict)

	_, err = s.Read(context.Background(), userRef)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeyedMutex(t *testing.T) {
	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := km.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()

	unlock()
	again, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, km.size())
}
