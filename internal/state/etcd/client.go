// Package etcd backs the coordination store interfaces with etcd.
// Watermarks and markers live in the flat keyspace; each lock rides
// its own session lease so a crashed holder releases within the TTL.
package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Config carries the etcd connection settings.
type Config struct {
	Endpoints      []string
	DialTimeout    time.Duration
	SessionTTLSecs int
	LockWait       time.Duration
	Username       string
	Password       string
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.SessionTTLSecs <= 0 {
		c.SessionTTLSecs = 60
	}
	if c.LockWait <= 0 {
		c.LockWait = 30 * time.Second
	}
	return c
}

// Connect dials etcd and returns a Store and Locker sharing one client.
// Lock sessions ride on that client, so close the Locker before the
// Store.
func Connect(ctx context.Context, cfg Config) (*Store, *Locker, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Endpoints) == 0 {
		return nil, nil, fmt.Errorf("etcd endpoints are required")
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Context:     ctx,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial etcd: %w", err)
	}

	return &Store{client: client},
		&Locker{client: client, ttlSecs: cfg.SessionTTLSecs, wait: cfg.LockWait},
		nil
}
