package state

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"Trendline/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// entityDocument is the stored form: the state inlined next to its key.
type entityDocument struct {
	Key   string             `bson:"_id"`
	State models.EntityState `bson:",inline"`
}

// MongoStore keeps one document per entity and serializes writers with an optimistic
// compare-and-swap on the version field. The in-process KeyedMutex keeps local writers
// from racing each other; the version check covers writers in other processes.
type MongoStore struct {
	collection *mongo.Collection
	init       Initializer
	locks      *KeyedMutex
	maxRetries int
}

// MongoOption configures a MongoStore.
type MongoOption func(*MongoStore)

// WithMongoInitializer sets the starting state for new entities.
func WithMongoInitializer(init Initializer) MongoOption {
	return func(s *MongoStore) { s.init = init }
}

// NewMongoStore creates a MongoStore on the given collection.
func NewMongoStore(db *mongo.Database, collectionName string, opts ...MongoOption) *MongoStore {
	s := &MongoStore{
		collection: db.Collection(collectionName),
		init:       DefaultInitializer,
		locks:      NewKeyedMutex(),
		maxRetries: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the kind index used by ListEntities.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ref.kind", Value: 1}, {Key: "ref.id", Value: 1}},
	})
	return err
}

func (s *MongoStore) Read(ctx context.Context, ref models.EntityRef) (*models.EntityState, error) {
	var doc entityDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": ref.Key()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("read %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	st := doc.State
	return &st, nil
}

func (s *MongoStore) ListEntities(ctx context.Context, kind models.EntityKind) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"ref": 1})
	cursor, err := s.collection.Find(ctx, bson.M{"ref.kind": kind}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s entities: %w", kind, err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Ref models.EntityRef `bson:"ref"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list %s entities: %w", kind, err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.Ref.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MongoStore) Update(ctx context.Context, ref models.EntityRef, fn Mutator) (*models.EntityState, error) {
	unlock, err := s.locks.Lock(ctx, ref.Key())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w: %w", ref, ErrLockTimeout, err)
	}
	defer unlock()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		current, err := s.Read(ctx, ref)
		exists := err == nil
		if errors.Is(err, ErrNotFound) {
			current = s.init(ref)
		} else if err != nil {
			return nil, err
		}

		next, changed, err := apply(ref, current, fn)
		if err != nil {
			return nil, err
		}
		if !changed {
			return next.Clone(), nil
		}

		ok, err := s.swap(ctx, ref, exists, current.Version, next)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
	}
	return nil, fmt.Errorf("update %s: %w", ref, ErrConflict)
}

// swap writes next only if the stored version is still prevVersion.
// It reports false when another writer got there first.
func (s *MongoStore) swap(ctx context.Context, ref models.EntityRef, exists bool, prevVersion int64, next *models.EntityState) (bool, error) {
	doc := entityDocument{Key: ref.Key(), State: *next}
	if !exists {
		_, err := s.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("insert %s: %w", ref, err)
		}
		return true, nil
	}

	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": ref.Key(), "version": prevVersion}, doc)
	if err != nil {
		return false, fmt.Errorf("replace %s: %w", ref, err)
	}
	return res.MatchedCount == 1, nil
}
