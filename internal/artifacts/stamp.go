// internal/artifacts/stamp.go
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"citizen-portal/internal/models"

	"github.com/redis/go-redis/v9"
)

// VersionStamp fingerprints everything that affects a rendered artifact.
// Any change to the record yields a different stamp.
func VersionStamp(rec *models.ApplicationRecord) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(string(rec.Kind))
	write(rec.ID)
	write(rec.Status)
	write(rec.Title)

	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k)
		write(rec.Fields[k])
	}
	write(rec.UpdatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano))

	return hex.EncodeToString(h.Sum(nil))
}

// StampKey identifies one cached artifact.
func StampKey(kind models.Kind, resourceID string, format models.Format) string {
	return fmt.Sprintf("%s:%s:%s", kind.Slug(), resourceID, format)
}

// StampStore remembers which record version each artifact was built from.
type StampStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, stamp string) error
	Delete(ctx context.Context, keys ...string) error
}

type MemoryStampStore struct {
	mu     sync.RWMutex
	stamps map[string]string
}

func NewMemoryStampStore() *MemoryStampStore {
	return &MemoryStampStore{stamps: make(map[string]string)}
}

func (m *MemoryStampStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stamps[key]
	return s, ok, nil
}

func (m *MemoryStampStore) Set(_ context.Context, key, stamp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stamps[key] = stamp
	return nil
}

func (m *MemoryStampStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.stamps, k)
	}
	return nil
}

// RedisStampStore shares stamps between portal instances that mount the
// same artifact directory.
type RedisStampStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStampStore(client *redis.Client, prefix string) *RedisStampStore {
	if prefix == "" {
		prefix = "artifact:stamp:"
	}
	return &RedisStampStore{client: client, prefix: prefix}
}

func (r *RedisStampStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisStampStore) Set(ctx context.Context, key, stamp string) error {
	return r.client.Set(ctx, r.prefix+key, stamp, 0).Err()
}

func (r *RedisStampStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, r.prefix+k)
	}
	return r.client.Del(ctx, full...).Err()
}
