package config

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient builds a client from the environment:
//
//	REDIS_ADDR                host:port (REDIS_HOST and REDIS_PORT take precedence)
//	REDIS_PASSWORD            optional
//	REDIS_DB                  database number, default 0
//	REDIS_TLS                 "true" or "1" enables TLS
//
// It returns nil when the server does not answer a ping; callers then keep
// decisions in memory and skip rate limiting and the floor cache.
func NewRedisClient(log logrus.FieldLogger) *redis.Client {
	LoadDotenv()
	addr := os.Getenv("REDIS_ADDR")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	dbNum := 0
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		dbNum = n
	}
	var tlsConf *tls.Config
	if v := os.Getenv("REDIS_TLS"); strings.EqualFold(v, "true") || v == "1" {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        dbNum,
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if log != nil {
			log.WithError(err).WithField("addr", addr).Warn("redis unavailable, falling back to in-memory state")
		}
		_ = client.Close()
		return nil
	}
	return client
}
