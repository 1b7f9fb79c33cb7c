// Package redis publishes pair snapshots so dashboards and other
// consumers can read the latest state without touching SQLite.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"pairwatch/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	snapshotKeyPrefix = "pairwatch:snapshot:"
	snapshotChannel   = "pairwatch:snapshot"
	defaultSnapTTL    = 30 * time.Minute
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes pair snapshots to Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a new Redis Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishSnapshot writes the snapshot in a single pipeline:
// SET latest keyed by pair (with TTL) + PUBLISH for live subscribers.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap model.Snapshot) error {
	jsonData := string(snap.JSON())
	latestKey := snapshotKeyPrefix + snap.PairKey

	pipe := p.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultSnapTTL)
	pipe.Publish(ctx, snapshotChannel, jsonData)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] snapshot pipeline error for %s: %v", snap.PairKey, err)
		return fmt.Errorf("redis snapshot publish: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
