//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/errors"
)

func TestKVStore_Integration(t *testing.T) {
	tc := NewTestClient(t, WithKVBuckets("netpublish-test"))
	ctx := context.Background()

	bucket, err := tc.Client.GetKeyValueBucket(ctx, "netpublish-test")
	require.NoError(t, err)
	kv := tc.Client.NewKVStore(bucket)
	assert.Equal(t, "netpublish-test", kv.Bucket())

	rev, err := kv.Put(ctx, "GRIP.target.x", []byte("3"))
	require.NoError(t, err)
	assert.NotZero(t, rev)

	entry, err := kv.Get(ctx, "GRIP.target.x")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), entry.Value)

	require.NoError(t, kv.Delete(ctx, "GRIP.target.x"))
	_, err = kv.Get(ctx, "GRIP.target.x")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)

	_, err = kv.Put(ctx, "has space", []byte("1"))
	assert.True(t, errors.IsInvalid(err))
}

func TestKVStore_Watch(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "watch-test"})
	require.NoError(t, err)
	kv := tc.Client.NewKVStore(bucket)

	watcher, err := kv.Watch(ctx, "GRIP.run")
	require.NoError(t, err)
	defer watcher.Stop()

	_, err = kv.Put(ctx, "GRIP.run", []byte("true"))
	require.NoError(t, err)

	for entry := range watcher.Updates() {
		if entry == nil {
			continue
		}
		assert.Equal(t, "true", string(entry.Value()))
		return
	}
	t.Fatal("watcher closed without an update")
}

func TestClient_PublishSubscribe_Integration(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	got := make(chan []byte, 1)
	require.NoError(t, tc.Client.Subscribe(ctx, "GRIP.publisher.target", func(_ context.Context, data []byte) {
		got <- data
	}))
	require.NoError(t, tc.Client.Publish(ctx, "GRIP.publisher.target", []byte("hello")))

	select {
	case data := <-got:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}
