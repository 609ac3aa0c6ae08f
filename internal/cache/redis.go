package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"crashfair/internal/config"
	"crashfair/internal/logger"
)

type Service interface {
	GetClient() *redis.Client
	Health() map[string]string
	Close() error
}

type service struct {
	client *redis.Client
	log    *logger.Logger
}

func Options(cfg config.Config) *redis.Options {
	return &redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// New connects and pings Redis. It returns an error when Redis is unreachable;
// the wallet cannot run without it.
func New(cfg config.Config, log *logger.Logger) (Service, error) {
	if log == nil {
		log = logger.Nop()
	}
	client := redis.NewClient(Options(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Info().Str("addr", cfg.RedisAddr).Msg("[CACHE] Redis connected successfully")
	return &service{client: client, log: log}, nil
}

func (s *service) GetClient() *redis.Client {
	return s.client
}

// Health pings Redis and reports connection pool counters.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	started := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return map[string]string{
			"status": "down",
			"error":  fmt.Sprintf("redis down: %v", err),
		}
	}

	pool := s.client.PoolStats()
	return map[string]string{
		"status":      "up",
		"message":     "Redis is healthy",
		"latency":     time.Since(started).String(),
		"hits":        strconv.FormatUint(uint64(pool.Hits), 10),
		"misses":      strconv.FormatUint(uint64(pool.Misses), 10),
		"timeouts":    strconv.FormatUint(uint64(pool.Timeouts), 10),
		"total_conns": strconv.FormatUint(uint64(pool.TotalConns), 10),
		"idle_conns":  strconv.FormatUint(uint64(pool.IdleConns), 10),
	}
}

func (s *service) Close() error {
	s.log.Info().Msg("[CACHE] Disconnecting from Redis")
	return s.client.Close()
}
