package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"Trendline/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var errLockLost = errors.New("entity lock lost before commit")

// RedisStore keeps one JSON document per entity and a set of ids per kind.
//
// Keys:
//
//	<prefix>:state:<kind>:<id>   entity state (JSON)
//	<prefix>:entities:<kind>     registry set of ids
//	<prefix>:lock:<kind>:<id>    per-entity lock holding a random token
//
// Update takes the in-process KeyedMutex first, then the Redis lock, and commits with
// WATCH/MULTI on the lock key so a write after lock expiry is rejected.
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	lockTTL  time.Duration
	pollWait time.Duration
	init     Initializer
	locks    *KeyedMutex
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Default "trendline".
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithRedisLockTTL sets how long a lock survives a crashed holder. Default 2m.
func WithRedisLockTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.lockTTL = ttl }
}

// WithRedisInitializer sets the starting state for new entities.
func WithRedisInitializer(init Initializer) RedisOption {
	return func(s *RedisStore) { s.init = init }
}

// NewRedisStore creates a RedisStore on an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:   client,
		prefix:   "trendline",
		lockTTL:  2 * time.Minute,
		pollWait: 50 * time.Millisecond,
		init:     DefaultInitializer,
		locks:    NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) stateKey(ref models.EntityRef) string {
	return fmt.Sprintf("%s:state:%s:%s", s.prefix, ref.Kind, ref.ID)
}

func (s *RedisStore) registryKey(kind models.EntityKind) string {
	return fmt.Sprintf("%s:entities:%s", s.prefix, kind)
}

func (s *RedisStore) lockKey(ref models.EntityRef) string {
	return fmt.Sprintf("%s:lock:%s:%s", s.prefix, ref.Kind, ref.ID)
}

func (s *RedisStore) Read(ctx context.Context, ref models.EntityRef) (*models.EntityState, error) {
	raw, err := s.client.Get(ctx, s.stateKey(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	var st models.EntityState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return &st, nil
}

func (s *RedisStore) ListEntities(ctx context.Context, kind models.EntityKind) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.registryKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s entities: %w", kind, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) Update(ctx context.Context, ref models.EntityRef, fn Mutator) (*models.EntityState, error) {
	unlock, err := s.locks.Lock(ctx, ref.Key())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w: %w", ref, ErrLockTimeout, err)
	}
	defer unlock()

	token, err := s.acquire(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer s.release(ref, token)

	current, err := s.Read(ctx, ref)
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

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ref, err)
	}
	if err := s.commit(ctx, ref, token, data); err != nil {
		return nil, err
	}
	return next, nil
}

// acquire polls SET NX PX until it wins or ctx is done.
func (s *RedisStore) acquire(ctx context.Context, ref models.EntityRef) (string, error) {
	token := uuid.NewString()
	key := s.lockKey(ref)
	ticker := time.NewTicker(s.pollWait)
	defer ticker.Stop()
	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil && ctx.Err() == nil {
			return "", fmt.Errorf("lock %s: %w", ref, err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("lock %s: %w: %w", ref, ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *RedisStore) release(ref models.EntityRef, token string) {
	// 调用方的 ctx 可能已经过期，释放锁用独立的短超时
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, s.client, []string{s.lockKey(ref)}, token).Err()
}

func (s *RedisStore) commit(ctx context.Context, ref models.EntityRef, token string, data []byte) error {
	lockKey := s.lockKey(ref)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, lockKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if holder != token {
			return errLockLost
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.stateKey(ref), data, 0)
			pipe.SAdd(ctx, s.registryKey(ref.Kind), ref.ID)
			return nil
		})
		return err
	}, lockKey)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, errLockLost) {
		return fmt.Errorf("commit %s: %w", ref, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("commit %s: %w", ref, err)
	}
	return nil
}
