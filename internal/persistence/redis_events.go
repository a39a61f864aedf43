package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/skein/pkg/api"
)

// RedisEventStore is an EventStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>events:<engine>:<fiber>  => LIST of gob-encoded events, oldest first
//	<prefix>fibers:<engine>          => SET of fiber ids with history
//
// When a TTL is set every write refreshes it, so the history of a fiber
// expires TTL after its last event.
type RedisEventStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ EventStore = (*RedisEventStore)(nil)

// NewRedisEventStore creates a RedisEventStore.
// prefix is optional but recommended (e.g. "skein:").
func NewRedisEventStore(client *redis.Client, prefix string) *RedisEventStore {
	if prefix == "" {
		prefix = "skein:"
	}
	return &RedisEventStore{
		client: client,
		prefix: prefix,
	}
}

// WithTTL expires fiber histories ttl after their last event. Zero keeps
// them forever.
func (s *RedisEventStore) WithTTL(ttl time.Duration) *RedisEventStore {
	s.ttl = ttl
	return s
}

func (s *RedisEventStore) keyEvents(engineID string, fiberID int64) string {
	return s.prefix + "events:" + engineID + ":" + strconv.FormatInt(fiberID, 10)
}

func (s *RedisEventStore) keyFibers(engineID string) string {
	return s.prefix + "fibers:" + engineID
}

func (s *RedisEventStore) AppendEvent(ctx context.Context, ev api.FiberEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	key := s.keyEvents(ev.EngineID, ev.FiberID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.SAdd(ctx, s.keyFibers(ev.EngineID), ev.FiberID)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisEventStore) ListEvents(ctx context.Context, engineID string, fiberID int64) ([]api.FiberEvent, error) {
	raw, err := s.client.LRange(ctx, s.keyEvents(engineID, fiberID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]api.FiberEvent, 0, len(raw))
	for _, data := range raw {
		ev, err := decodeEvent([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// ListFibers returns the ids of every fiber of engineID with recorded
// history, in no particular order. Ids whose history expired may remain.
func (s *RedisEventStore) ListFibers(ctx context.Context, engineID string) ([]int64, error) {
	members, err := s.client.SMembers(ctx, s.keyFibers(engineID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []int64{}, nil
		}
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
