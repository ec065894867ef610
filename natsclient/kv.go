package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/netpublish/errors"
)

// KVEntry is a value with the revision it was written at.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KV operations behavior
type KVOptions struct {
	Timeout      time.Duration // per-operation timeout, zero for none
	MaxValueSize int           // values above this size are rejected
}

// DefaultKVOptions returns sensible defaults
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:      5 * time.Second,
		MaxValueSize: 1024 * 1024,
	}
}

// KVStore wraps a JetStream KV bucket with timeouts and classified errors.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore creates a KV store over bucket.
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  c.logger,
	}
}

// Bucket returns the bucket name.
func (kv *KVStore) Bucket() string {
	return kv.bucket.Bucket()
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get returns the current entry for key.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		return nil, kvError(err, "Get", key)
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put writes value under key, last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if kv.options.MaxValueSize > 0 && len(value) > kv.options.MaxValueSize {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrInvalidData, len(value), kv.options.MaxValueSize),
			"KVStore", "Put", "check value size")
	}

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, kvError(err, "Put", key)
	}
	kv.logger.Debug("kv put", "bucket", kv.Bucket(), "key", key, "revision", rev)
	return rev, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return kvError(err, "Delete", key)
	}
	kv.logger.Debug("kv delete", "bucket", kv.Bucket(), "key", key)
	return nil
}

// Watch streams updates for keys matching pattern. The watcher lives until ctx is
// done or it is stopped.
func (kv *KVStore) Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error) {
	watcher, err := kv.bucket.Watch(ctx, pattern)
	if err != nil {
		return nil, kvError(err, "Watch", pattern)
	}
	return watcher, nil
}

func kvError(err error, method, key string) error {
	action := fmt.Sprintf("%s %q", method, key)
	switch {
	case stderrors.Is(err, jetstream.ErrKeyNotFound):
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "KVStore", method, action)
	case stderrors.Is(err, jetstream.ErrInvalidKey):
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidData, err), "KVStore", method, action)
	default:
		return errors.WrapTransient(err, "KVStore", method, action)
	}
}
