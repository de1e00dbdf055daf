// Package floorcache keeps the price floor table in Redis so that building
// a floor hint does not hit MySQL for every checkout session.
package floorcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/checkout-credits/internal/model"
	"github.com/iliyamo/checkout-credits/internal/pricing"
	"github.com/iliyamo/checkout-credits/internal/repository"
)

// Source loads the floor table from its system of record.
type Source interface {
	List(ctx context.Context) ([]model.FloorRule, error)
}

// Cache is a cache-aside wrapper around Source.  A nil Redis client makes
// every call go to Source.
type Cache struct {
	rdb    redis.UniversalClient
	source Source
	key    string
	ttl    time.Duration
	log    logrus.FieldLogger
}

// New builds a cache storing the table under "<prefix>:floors".
func New(rdb redis.UniversalClient, source Source, prefix string, ttl time.Duration, log logrus.FieldLogger) *Cache {
	if prefix == "" {
		prefix = "cache"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{rdb: rdb, source: source, key: prefix + ":floors", ttl: ttl, log: log}
}

// Rules returns the floor table, from Redis when possible.
func (c *Cache) Rules(ctx context.Context) ([]model.FloorRule, error) {
	if c.rdb != nil {
		bs, err := c.rdb.Get(ctx, c.key).Bytes()
		switch {
		case err == nil:
			var rules []model.FloorRule
			if jerr := json.Unmarshal(bs, &rules); jerr == nil {
				return rules, nil
			}
			c.log.WithField("key", c.key).Warn("dropping unreadable floor cache entry")
		case !errors.Is(err, redis.Nil):
			c.log.WithError(err).Warn("floor cache read failed")
		}
	}

	rules, err := c.source.List(ctx)
	if err != nil {
		return nil, err
	}
	if c.rdb != nil {
		if payload, err := json.Marshal(rules); err == nil {
			if err := c.rdb.SetEx(ctx, c.key, payload, c.ttl).Err(); err != nil {
				c.log.WithError(err).Warn("floor cache write failed")
			}
		}
	}
	return rules, nil
}

// Advisor builds a floor advisor from the current table.  When the table
// cannot be read the advisor is nil and every hint is unknown.
func (c *Cache) Advisor(ctx context.Context) *pricing.Advisor {
	rules, err := c.Rules(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNoFloorRules) {
			c.log.WithError(err).Warn("floor table unavailable, hints disabled")
		}
		return nil
	}
	return pricing.NewAdvisor(rules)
}

// Invalidate drops the cached table.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key).Err()
}
