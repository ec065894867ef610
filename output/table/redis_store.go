package table

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/netpublish/errors"
)

// RedisStore keeps the table in Redis strings.
type RedisStore struct {
	client       redis.UniversalClient
	prefix       string
	pollInterval time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithPollInterval sets how often Watch reads the watched key.
func WithPollInterval(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, pollInterval: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key converts a table path to a Redis key.
func (s *RedisStore) Key(path string) string {
	return s.prefix + path
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, path string, value []byte) error {
	if err := s.client.Set(ctx, s.Key(path), value, 0).Err(); err != nil {
		return errors.WrapTransient(err, "RedisStore", "Put", "set "+path)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	if err := s.client.Del(ctx, s.Key(path)).Err(); err != nil {
		return errors.WrapTransient(err, "RedisStore", "Delete", "delete "+path)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.Key(path)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, path),
				"RedisStore", "Get", "get "+path)
		}
		return nil, errors.WrapTransient(err, "RedisStore", "Get", "get "+path)
	}
	return value, nil
}

// Watch implements Watcher by polling the key. Deletes are not reported.
func (s *RedisStore) Watch(ctx context.Context, path string, fn func(value []byte)) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last []byte
	for {
		value, err := s.Get(ctx, path)
		switch {
		case err == nil:
			if last == nil || !bytes.Equal(value, last) {
				last = value
				fn(value)
			}
		case errors.IsInvalid(err):
			last = nil
		case ctx.Err() == nil:
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
