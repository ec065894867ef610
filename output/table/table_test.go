package table

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
	"github.com/c360/netpublish/pkg/retry"
	"github.com/c360/netpublish/publish"
)

const waitFor = 2 * time.Second

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func startManager(t *testing.T, store Store, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(store, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() {
		_ = m.Stop(time.Second)
		cancel()
	})
	return m
}

func hasValue(mr *miniredis.Miniredis, key, want string) func() bool {
	return func() bool {
		got, err := mr.Get(key)
		return err == nil && got == want
	}
}

func TestManager_Protocol(t *testing.T) {
	_, store := newRedis(t)
	m := NewManager(store)
	assert.Equal(t, "nt", m.Protocol().ID)
	assert.Equal(t, "NT", m.Protocol().Acronym)
}

func TestPublisher_MapLayout(t *testing.T) {
	mr, store := newRedis(t)
	m := startManager(t, store, WithMetrics(metric.NewMetricsRegistry()))

	p, err := m.CreatePublisher("publishable.Vector2D", publish.NewKeys("x", "y"))
	require.NoError(t, err)
	require.NoError(t, p.SetName("target"))
	require.NoError(t, p.Publish(map[string]publish.Value{"x": 3.0, "y": 4.0}))

	assert.Eventually(t, hasValue(mr, "GRIP/target/x", "3"), waitFor, 5*time.Millisecond)
	assert.Eventually(t, hasValue(mr, "GRIP/target/y", "4"), waitFor, 5*time.Millisecond)

	require.NoError(t, p.Publish(map[string]publish.Value{"x": 5.0}))
	assert.Eventually(t, func() bool { return !mr.Exists("GRIP/target/y") }, waitFor, 5*time.Millisecond,
		"keys left out of a publish are deleted")
	assert.True(t, hasValue(mr, "GRIP/target/x", "5")())
}

func TestPublisher_RenameDeletesOldSubtable(t *testing.T) {
	mr, store := newRedis(t)
	m := startManager(t, store)

	p, err := m.CreatePublisher("publishable.Vector2D", publish.NewKeys("x", "y"))
	require.NoError(t, err)
	require.NoError(t, p.SetName("a"))
	require.NoError(t, p.Publish(map[string]publish.Value{"x": 1.0, "y": 2.0}))
	require.NoError(t, p.SetName("b"))
	require.NoError(t, p.Publish(map[string]publish.Value{"x": 1.0, "y": 2.0}))

	assert.Eventually(t, hasValue(mr, "GRIP/b/y", "2"), waitFor, 5*time.Millisecond)
	assert.False(t, mr.Exists("GRIP/a/x"))
	assert.False(t, mr.Exists("GRIP/a/y"))
}

func TestPublisher_NothingAndClose(t *testing.T) {
	mr, store := newRedis(t)
	m := startManager(t, store)

	p, err := m.CreatePublisher("publishable.Vector2D", publish.NewKeys("x", "y"))
	require.NoError(t, err)
	require.NoError(t, p.SetName("target"))
	require.NoError(t, p.Publish(map[string]publish.Value{"x": 1.0, "y": 2.0}))
	assert.Eventually(t, hasValue(mr, "GRIP/target/x", "1"), waitFor, 5*time.Millisecond)

	require.NoError(t, p.Publish(map[string]publish.Value{}))
	assert.Eventually(t, func() bool {
		return !mr.Exists("GRIP/target/x") && !mr.Exists("GRIP/target/y")
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, p.Publish(map[string]publish.Value{"y": 7.0}))
	assert.Eventually(t, hasValue(mr, "GRIP/target/y", "7"), waitFor, 5*time.Millisecond)

	p.Close()
	assert.Eventually(t, func() bool { return !mr.Exists("GRIP/target/y") }, waitFor, 5*time.Millisecond)
}

func TestPublisher_SingleValue(t *testing.T) {
	mr, store := newRedis(t)
	m := startManager(t, store)

	p, err := m.CreatePublisher("publishable.NumberPublishable", publish.NewKeys())
	require.NoError(t, err)
	require.NoError(t, p.SetName("distance"))
	require.NoError(t, p.Publish(map[string]publish.Value{"": 2.5}))
	assert.Eventually(t, hasValue(mr, "GRIP/distance", "2.5"), waitFor, 5*time.Millisecond)

	require.NoError(t, p.Publish(map[string]publish.Value{"": []float64{1, 2}}))
	assert.Eventually(t, hasValue(mr, "GRIP/distance", "[1,2]"), waitFor, 5*time.Millisecond)

	p.Close()
	assert.Eventually(t, func() bool { return !mr.Exists("GRIP/distance") }, waitFor, 5*time.Millisecond)
}

func TestPublisher_NonFiniteValues(t *testing.T) {
	mr, store := newRedis(t)
	m := startManager(t, store)

	p, err := m.CreatePublisher("publishable.NumberPublishable", publish.NewKeys())
	require.NoError(t, err)
	require.NoError(t, p.SetName("distance"))

	require.NoError(t, p.Publish(map[string]publish.Value{"": math.NaN()}))
	assert.Eventually(t, hasValue(mr, "GRIP/distance", "null"), waitFor, 5*time.Millisecond)

	require.NoError(t, p.Publish(map[string]publish.Value{"": []float64{1, math.Inf(-1)}}))
	assert.Eventually(t, hasValue(mr, "GRIP/distance", "[1,null]"), waitFor, 5*time.Millisecond)

	require.NoError(t, p.Publish(map[string]publish.Value{"": math.Inf(1)}))
	assert.Eventually(t, hasValue(mr, "GRIP/distance", "null"), waitFor, 5*time.Millisecond)

	err = p.Publish(map[string]publish.Value{"": make(chan int)})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

// flakyStore fails the first failures writes with err, then records writes.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	values   map[string][]byte
	block    chan struct{}
	entered  chan struct{}
}

func (s *flakyStore) Put(_ context.Context, path string, value []byte) error {
	if s.block != nil {
		s.entered <- struct{}{}
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return s.err
	}
	if s.values == nil {
		s.values = map[string][]byte{}
	}
	s.values[path] = value
	return nil
}

func (s *flakyStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, path)
	return nil
}

func (s *flakyStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[path]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return v, nil
}

func (s *flakyStore) snapshot() (int, map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return s.calls, out
}

var fastRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestManager_RetriesTransientStoreErrors(t *testing.T) {
	store := &flakyStore{failures: 2, err: errors.WrapTransient(errors.ErrStorageUnavailable, "test", "Put", "put")}
	m := startManager(t, store, WithRetry(fastRetry))

	p, _ := m.CreatePublisher("publishable.NumberPublishable", publish.NewKeys())
	require.NoError(t, p.SetName("distance"))
	require.NoError(t, p.Publish(map[string]publish.Value{"": 1.0}))

	assert.Eventually(t, func() bool {
		_, values := store.snapshot()
		return string(values["GRIP/distance"]) == "1"
	}, waitFor, 5*time.Millisecond)
	calls, _ := store.snapshot()
	assert.Equal(t, 3, calls)
}

func TestManager_InvalidStoreErrorsAreNotRetried(t *testing.T) {
	store := &flakyStore{failures: 5, err: errors.WrapInvalid(errors.ErrInvalidData, "test", "Put", "put")}
	m := startManager(t, store, WithRetry(fastRetry))

	p, _ := m.CreatePublisher("publishable.NumberPublishable", publish.NewKeys())
	require.NoError(t, p.SetName("bad key"))
	require.NoError(t, p.Publish(map[string]publish.Value{"": 1.0}), "store errors surface asynchronously")

	assert.Eventually(t, func() bool { return m.Stats().Failed == 1 }, waitFor, 5*time.Millisecond)
	calls, _ := store.snapshot()
	assert.Equal(t, 1, calls)
}

func TestManager_FullQueueIsTransient(t *testing.T) {
	store := &flakyStore{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	m := startManager(t, store, WithQueueSize(1))
	defer close(store.block)

	p, _ := m.CreatePublisher("publishable.NumberPublishable", publish.NewKeys())
	require.NoError(t, p.SetName("distance"))

	require.NoError(t, p.Publish(map[string]publish.Value{"": 1.0}))
	<-store.entered
	require.NoError(t, p.Publish(map[string]publish.Value{"": 2.0}))

	err := p.Publish(map[string]publish.Value{"": 3.0})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrQueueFull)
}

func TestNewFactory(t *testing.T) {
	_, store := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := publish.NewManagerRegistry()
	require.NoError(t, registry.Register(Protocol.ID, NewFactory(ctx, store)))

	m, err := registry.Manager("nt", publish.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, Protocol, m.Protocol())
	require.NoError(t, m.(*Manager).Stop(time.Second))
}

type validatingStore struct {
	flakyStore
}

func (*validatingStore) ValidatePath(path string) error {
	return (&NATSStore{}).ValidatePath(path)
}

func TestManager_InvalidPathFailsPublish(t *testing.T) {
	store := &validatingStore{}
	m := startManager(t, store)

	p, _ := m.CreatePublisher("publishable.NumberPublishable", publish.NewKeys())
	require.NoError(t, p.SetName("has space"))

	err := p.Publish(map[string]publish.Value{"": 1.0})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Zero(t, m.Stats().Submitted)

	p.Close()
}
