// internal/common/database/clients.go

// Package database opens the portal's backing stores: Postgres for
// application records and Redis for artifact version stamps.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"citizen-portal/internal/common/config"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const clientName = "citizen-portal"

// Postgres is the record database pool.
type Postgres struct {
	DB     *sql.DB
	target string
}

// OpenPostgres configures the pool. It does not dial until Ping or first use.
func OpenPostgres(cfg config.PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	target := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)) + "/" + cfg.Database
	return &Postgres{DB: db, target: target}, nil
}

// Target is host:port/dbname, for logs.
func (p *Postgres) Target() string { return p.target }

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres %s: %w", p.target, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.DB == nil {
		return nil
	}
	return p.DB.Close()
}

// Redis holds artifact version stamps.
type Redis struct {
	Client *redis.Client
}

// OpenRedis builds a client; the first command dials.
func OpenRedis(cfg config.RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	return &Redis{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", r.Client.Options().Addr, err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
