//go:build integration

package table

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/natsclient"
	"github.com/c360/netpublish/pipeline"
	"github.com/c360/netpublish/publish"
)

func newNATSStore(t *testing.T) *NATSStore {
	t.Helper()
	tc := natsclient.NewTestClient(t, natsclient.WithKVBuckets("netpublish"))
	bucket, err := tc.Client.GetKeyValueBucket(context.Background(), "netpublish")
	require.NoError(t, err)
	return NewNATSStore(tc.Client.NewKVStore(bucket))
}

func TestNATSStore_PublishLayout(t *testing.T) {
	store := newNATSStore(t)
	m := startManager(t, store)
	ctx := context.Background()

	p, err := m.CreatePublisher("publishable.Vector2D", publish.NewKeys("x", "y"))
	require.NoError(t, err)
	require.NoError(t, p.SetName("target"))
	require.NoError(t, p.Publish(map[string]publish.Value{"x": 3.0, "y": 4.0}))

	assert.Eventually(t, func() bool {
		v, err := store.Get(ctx, "GRIP/target/y")
		return err == nil && string(v) == "4"
	}, 5*time.Second, 10*time.Millisecond)

	p.Close()
	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, "GRIP/target/x")
		return errors.IsInvalid(err)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNATSStore_InvalidNameIsReported(t *testing.T) {
	store := newNATSStore(t)
	m := startManager(t, store)

	p, err := m.CreatePublisher("publishable.NumberPublishable", publish.NewKeys())
	require.NoError(t, err)
	require.NoError(t, p.SetName("has space"))

	err = p.Publish(map[string]publish.Value{"": 1.0})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Zero(t, m.Stats().Submitted)
}

func TestNATSStore_RunControl(t *testing.T) {
	store := newNATSStore(t)
	runner := pipeline.NewRunner(pipeline.New(), 10*time.Millisecond)
	rc := NewRunControl(store, runner, WithHeadless(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rc.Run(ctx) }()

	require.NoError(t, store.Put(ctx, RunKey, []byte("true")))
	assert.Eventually(t, runner.Running, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, store.Put(ctx, RunKey, []byte("false")))
	assert.Eventually(t, func() bool { return !runner.Running() }, 5*time.Second, 10*time.Millisecond)
}
