package table

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/natsclient"
)

var validKey = regexp.MustCompile(`^[-_=a-zA-Z0-9]+(\.[-_=a-zA-Z0-9]+)*$`)

// NATSStore keeps the table in a JetStream KV bucket.
type NATSStore struct {
	kv *natsclient.KVStore
}

// NewNATSStore creates a store over kv.
func NewNATSStore(kv *natsclient.KVStore) *NATSStore {
	return &NATSStore{kv: kv}
}

// Key converts a table path to a KV key.
func (s *NATSStore) Key(path string) string {
	return strings.ReplaceAll(path, "/", ".")
}

// ValidatePath implements PathValidator. Every segment must be a valid KV token.
func (s *NATSStore) ValidatePath(path string) error {
	if !validKey.MatchString(s.Key(path)) {
		return errors.WrapInvalid(fmt.Errorf("%w: %q is not a valid KV key", errors.ErrInvalidData, path),
			"NATSStore", "ValidatePath", "validate path")
	}
	return nil
}

// Put implements Store.
func (s *NATSStore) Put(ctx context.Context, path string, value []byte) error {
	_, err := s.kv.Put(ctx, s.Key(path), value)
	return err
}

// Delete implements Store.
func (s *NATSStore) Delete(ctx context.Context, path string) error {
	return s.kv.Delete(ctx, s.Key(path))
}

// Get implements Store.
func (s *NATSStore) Get(ctx context.Context, path string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, s.Key(path))
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// Watch implements Watcher with a KV watcher on the path's key.
func (s *NATSStore) Watch(ctx context.Context, path string, fn func(value []byte)) error {
	watcher, err := s.kv.Watch(ctx, s.Key(path))
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-watcher.Updates():
			if !ok {
				return errors.WrapTransient(errors.ErrConnectionLost, "NATSStore", "Watch", "watch "+path)
			}
			// nil marks the end of the initial values.
			if entry == nil || entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			fn(entry.Value())
		}
	}
}
