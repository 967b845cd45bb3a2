package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout per proposal. The :fields key doubles as the cache-presence
// witness; all four keys share one TTL.
func keyFields(pid string) string   { return "loan:" + pid + ":fields" }
func keyEntities(pid string) string { return "loan:" + pid + ":entities" }
func keyAnswered(pid string) string { return "loan:" + pid + ":answered" }
func keyMeta(pid string) string     { return "loan:" + pid + ":meta" }

// StoredState is one proposal's raw split values as read from the store.
// A nil Fields, Entities, or Meta marks the entry incomplete; Answered may
// legitimately be empty.
type StoredState struct {
	Fields   []byte
	Entities []byte
	Meta     []byte
	Answered []string
}

// Complete reports whether all three binary keys were present.
func (s *StoredState) Complete() bool {
	return s.Fields != nil && s.Entities != nil && s.Meta != nil
}

// StateWrite is one proposal's full split-key rewrite.
type StateWrite struct {
	Fields   []byte
	Entities []byte
	Meta     []byte
	Answered []string
	TTL      time.Duration
}

// Store is the narrow remote-store surface the cache needs. ReadState is a
// single round trip. WriteState is atomic per proposal: concurrent readers
// observe either the old or the new version, never a mix.
type Store interface {
	ReadState(ctx context.Context, proposalPid string) (*StoredState, error)
	WriteState(ctx context.Context, proposalPid string, w StateWrite) error
	Delete(ctx context.Context, proposalPid string) error
	Exists(ctx context.Context, proposalPid string) (bool, error)
}

// RedisStore adapts a go-redis client to the Store interface.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a connected Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)

// ReadState fetches all four split keys in one pipelined round trip.
func (s *RedisStore) ReadState(ctx context.Context, pid string) (*StoredState, error) {
	pipe := s.client.Pipeline()
	mget := pipe.MGet(ctx, keyFields(pid), keyEntities(pid), keyMeta(pid))
	smembers := pipe.SMembers(ctx, keyAnswered(pid))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read state %s: %w", pid, err)
	}

	raw, err := mget.Result()
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", pid, err)
	}
	stored := &StoredState{
		Fields:   blob(raw[0]),
		Entities: blob(raw[1]),
		Meta:     blob(raw[2]),
	}
	if stored.Answered, err = smembers.Result(); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read answered %s: %w", pid, err)
	}
	return stored, nil
}

// WriteState rewrites the four split keys in a single transactional
// pipeline so readers never see a partial update.
func (s *RedisStore) WriteState(ctx context.Context, pid string, w StateWrite) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyFields(pid), w.Fields, w.TTL)
	pipe.Set(ctx, keyEntities(pid), w.Entities, w.TTL)
	pipe.Set(ctx, keyMeta(pid), w.Meta, w.TTL)
	pipe.Del(ctx, keyAnswered(pid))
	if len(w.Answered) > 0 {
		members := make([]interface{}, len(w.Answered))
		for i, id := range w.Answered {
			members[i] = id
		}
		pipe.SAdd(ctx, keyAnswered(pid), members...)
		pipe.Expire(ctx, keyAnswered(pid), w.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write state %s: %w", pid, err)
	}
	return nil
}

// Delete drops all four split keys.
func (s *RedisStore) Delete(ctx context.Context, pid string) error {
	if err := s.client.Del(ctx, keyFields(pid), keyEntities(pid), keyAnswered(pid), keyMeta(pid)).Err(); err != nil {
		return fmt.Errorf("delete state %s: %w", pid, err)
	}
	return nil
}

// Exists checks the cache-presence witness key.
func (s *RedisStore) Exists(ctx context.Context, pid string) (bool, error) {
	n, err := s.client.Exists(ctx, keyFields(pid)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", pid, err)
	}
	return n > 0, nil
}

func blob(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return nil
	}
}
