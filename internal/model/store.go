package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// RedisParamStore reads serialized model parameters from redis, where the
// training export pipeline publishes them.
type RedisParamStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisParamStore creates a redis-backed parameter store.
func NewRedisParamStore(client *redis.Client, keyPrefix string) *RedisParamStore {
	if keyPrefix == "" {
		keyPrefix = "marketpulse:model:"
	}
	return &RedisParamStore{client: client, keyPrefix: keyPrefix}
}

// Get implements ParamStore. A missing key is not an error.
func (s *RedisParamStore) Get(ctx context.Context, modelKey string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+modelKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read model %s: %w", modelKey, err)
	}
	return raw, true, nil
}

// FileParamStore reads model parameters from <dir>/<modelKey>.json. Used for
// offline runs with bundled parameter exports.
type FileParamStore struct {
	dir string
}

// NewFileParamStore creates a file-backed parameter store rooted at dir.
func NewFileParamStore(dir string) *FileParamStore {
	return &FileParamStore{dir: dir}
}

// Get implements ParamStore. A missing file is not an error.
func (s *FileParamStore) Get(_ context.Context, modelKey string) ([]byte, bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, modelKey+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read model %s: %w", modelKey, err)
	}
	return raw, true, nil
}

// StaticParamStore serves models from a fixed in-memory map. Used for tests
// and offline runs with bundled parameters.
type StaticParamStore struct {
	Models map[string][]byte
}

// Get implements ParamStore.
func (s *StaticParamStore) Get(_ context.Context, modelKey string) ([]byte, bool, error) {
	raw, ok := s.Models[modelKey]
	return raw, ok, nil
}
