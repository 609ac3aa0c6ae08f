package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"crashfair/internal/config"
)

type Service interface {
	Pool() *pgxpool.Pool
	Health() map[string]string
	Close() error
}

type service struct {
	pool *pgxpool.Pool
}

var (
	defaults   = config.Load().DB
	database   = defaults.Name
	password   = defaults.Password
	username   = defaults.Username
	port       = defaults.Port
	host       = defaults.Host
	schema     = defaults.Schema
	dbInstance *service
)

// Settings returns the connection settings New will use.
func Settings() config.Database {
	return config.Database{
		Host:     host,
		Port:     port,
		Name:     database,
		Username: username,
		Password: password,
		Schema:   schema,
	}
}

// Configure overrides the package connection settings before the first New.
func Configure(db config.Database) {
	database, password, username = db.Name, db.Password, db.Username
	port, host, schema = db.Port, db.Host, db.Schema
}

func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	cfg, err := pgxpool.ParseConfig(Settings().URL())
	if err != nil {
		log.Fatal().Err(err).Msg("[DB] invalid connection settings")
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("[DB] cannot create pool")
	}

	dbInstance = &service{pool: pool}
	return dbInstance
}

func (s *service) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	poolStats := s.pool.Stat()
	stats["total_conns"] = strconv.Itoa(int(poolStats.TotalConns()))
	stats["idle_conns"] = strconv.Itoa(int(poolStats.IdleConns()))
	stats["acquired_conns"] = strconv.Itoa(int(poolStats.AcquiredConns()))
	stats["acquire_count"] = strconv.FormatInt(poolStats.AcquireCount(), 10)
	stats["empty_acquire_count"] = strconv.FormatInt(poolStats.EmptyAcquireCount(), 10)

	if poolStats.AcquiredConns() > poolStats.MaxConns()*8/10 {
		stats["message"] = "The database is experiencing heavy load."
	}

	return stats
}

func (s *service) Close() error {
	log.Info().Str("database", database).Msg("[DB] disconnected")
	s.pool.Close()
	dbInstance = nil
	return nil
}
