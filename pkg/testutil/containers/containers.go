//go:build integration

// Package containers provides testcontainers-based fixtures for integration
// tests. Each container starts on first use and is shared by every suite in
// the test binary; a container that failed to start is reported to every
// later caller instead of being retried.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"
)

const startupTimeout = 3 * time.Minute

type lazy[T any] struct {
	once  sync.Once
	value T
	err   error
}

func (l *lazy[T]) get(t *testing.T, name string, start func(context.Context) (T, error)) T {
	t.Helper()
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		l.value, l.err = start(ctx)
	})
	if l.err != nil {
		t.Fatalf("%s container unavailable: %v", name, l.err)
	}
	return l.value
}

// Manager hands out the shared containers. Ryuk removes them when the test
// process exits.
type Manager struct {
	postgres lazy[*PostgresContainer]
	redis    lazy[*RedisContainer]
	kafka    lazy[*KafkaContainer]
}

var manager = &Manager{}

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, "postgres", startPostgres)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, "redis", startRedis)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, "redpanda", startKafka)
}
