package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Well-known keys persisted per workflow instance. TaskID and Generating are
// what makes an in-flight job survive a restart.
const (
	KeyTaskID        = "taskId"
	KeyGenerating    = "generating"
	KeyStage         = "step"
	KeyResourceDraft = "newResource"
)

// Store is a durable key-value session store. Get reports a missing key via
// the bool, never an error, so callers can treat "absent" as ordinary state.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Namespaced returns a view of s where every key is prefixed with ns.
// Used to give each workflow instance (and each task family within it)
// its own keyspace.
func Namespaced(s Store, ns string) Store {
	return &namespacedStore{base: s, ns: ns}
}

type namespacedStore struct {
	base Store
	ns   string
}

func (n *namespacedStore) key(key string) string {
	return n.ns + ":" + key
}

func (n *namespacedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return n.base.Get(ctx, n.key(key))
}

func (n *namespacedStore) Set(ctx context.Context, key, value string) error {
	return n.base.Set(ctx, n.key(key), value)
}

func (n *namespacedStore) Remove(ctx context.Context, key string) error {
	return n.base.Remove(ctx, n.key(key))
}

// RedisStore is the production Store backed by Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedis(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "session:"}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get session key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session key %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove session key %q: %w", key, err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and single-node dev mode.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemory() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
