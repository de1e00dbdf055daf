package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// RedisStore keeps decisions as JSON strings in Redis.  Every write resets
// the key's TTL, so a record disappears once the session has been idle for
// longer than ttl.
type RedisStore struct {
	rdb       redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisStore returns a store writing under namespace.  A non-positive
// ttl falls back to 30 minutes.
func NewRedisStore(rdb redis.UniversalClient, namespace string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{rdb: rdb, namespace: namespace, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, bookingID string) (*model.CreditDecision, error) {
	raw, err := s.rdb.Get(ctx, Key(s.namespace, bookingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d model.CreditDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &d, nil
}

func (s *RedisStore) Save(ctx context.Context, bookingID string, d model.CreditDecision) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, Key(s.namespace, bookingID), body, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, bookingID string) error {
	return s.rdb.Del(ctx, Key(s.namespace, bookingID)).Err()
}
