package config

import "time"

// FloorCacheConfig controls the Redis copy of the price floor table.  When
// Enabled is false or Redis is unavailable the table is read from MySQL on
// every session start.
type FloorCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

func LoadFloorCacheConfig() FloorCacheConfig {
	LoadDotenv()
	cfg := FloorCacheConfig{
		Enabled: envBool("FLOOR_CACHE_ENABLED", true),
		TTL:     envDur("FLOOR_CACHE_TTL", 10*time.Minute),
		Prefix:  envStr("FLOOR_CACHE_PREFIX", "cache"),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return cfg
}
