package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Persister stores whole snapshots under a key. Save overwrites; Load returns
// ErrSnapshotNotFound for a key that was never saved. Deleting a missing key
// is not an error.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

type MemoryPersister struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{data: make(map[string][]byte)}
}

func (m *MemoryPersister) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryPersister) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryPersister) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// FilePersister keeps one JSON file per key inside Dir.
type FilePersister struct {
	Dir string
}

func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FilePersister{Dir: dir}, nil
}

var fileNameReplacer = strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_")

func (f *FilePersister) path(key string) string {
	return filepath.Join(f.Dir, fileNameReplacer.Replace(key)+".json")
}

func (f *FilePersister) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return data, nil
}

func (f *FilePersister) Save(_ context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(f.Dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", key, err)
	}
	return nil
}

func (f *FilePersister) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot %s: %w", key, err)
	}
	return nil
}

// RedisPersister stores snapshots as plain string values. A zero TTL keeps
// them forever.
type RedisPersister struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisPersister(client *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{Client: client, Prefix: "storefront:", TTL: ttl}
}

func (r *RedisPersister) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisPersister) Save(ctx context.Context, key string, data []byte) error {
	if err := r.Client.Set(ctx, r.Prefix+key, data, r.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisPersister) Delete(ctx context.Context, key string) error {
	if err := r.Client.Del(ctx, r.Prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

type RedisOption func(*redis.Options)

func WithPassword(password string) RedisOption {
	return func(o *redis.Options) {
		o.Password = password
	}
}

func WithDB(db int) RedisOption {
	return func(o *redis.Options) {
		o.DB = db
	}
}

func NewRedisClient(address string, options ...RedisOption) *redis.Client {
	opts := &redis.Options{Addr: address}
	for _, option := range options {
		option(opts)
	}
	return redis.NewClient(opts)
}
