package rosbus

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
	"github.com/c360/netpublish/publish"
)

// GraphRoot is the graph name every publisher node lives under.
const GraphRoot = "GRIP/publisher"

// node republishes the latest value of each of its keys until it is stopped.
type node struct {
	graph     string
	transport Transport
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *metric.Metrics

	mu     sync.Mutex
	values map[string]publish.Value

	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the run goroutine.
	active map[string]Type
	seq    uint64
}

func startNode(ctx context.Context, graph string, m *Manager) *node {
	ctx, cancel := context.WithCancel(ctx)
	n := &node{
		graph:     graph,
		transport: m.transport,
		limiter:   rate.NewLimiter(m.rate, 1),
		logger:    m.logger.With("node", graph),
		metrics:   m.metrics,
		values:    make(map[string]publish.Value),
		cancel:    cancel,
		done:      make(chan struct{}),
		active:    make(map[string]Type),
	}
	go n.run(ctx)
	return n
}

func (n *node) topic(key string) string {
	return n.graph + "/" + key
}

// set replaces the published values.
func (n *node) set(values map[string]publish.Value) {
	n.mu.Lock()
	n.values = maps.Clone(values)
	n.mu.Unlock()
}

func (n *node) stop() {
	n.cancel()
	<-n.done
}

func (n *node) run(ctx context.Context) {
	defer close(n.done)
	n.logger.Debug("node started")
	for {
		if err := n.limiter.Wait(ctx); err != nil {
			n.retire(nil)
			n.logger.Debug("node stopped")
			return
		}
		n.publishAll(ctx)
	}
}

func (n *node) publishAll(ctx context.Context) {
	n.mu.Lock()
	values := maps.Clone(n.values)
	n.mu.Unlock()

	used := make(map[string]struct{}, len(values))
	stamp := time.Now()
	n.seq++
	for _, key := range slices.Sorted(maps.Keys(values)) {
		value := values[key]
		typ, err := ResolveType(value)
		if err != nil {
			continue
		}
		topic := n.topic(key)
		used[topic] = struct{}{}
		if prev, ok := n.active[topic]; !ok || prev != typ {
			n.active[topic] = typ
			n.logger.Debug("topic advertised", "topic", topic, "type", typ)
		}

		data, err := Encode(Message{Type: typ, Topic: topic, Seq: n.seq, Stamp: stamp, Data: value})
		if err != nil {
			n.metrics.RecordPublishError(Protocol.ID, errors.Classify(err).String())
			continue
		}
		if err := n.transport.Publish(ctx, Subject(topic), data); err != nil {
			if ctx.Err() != nil {
				return
			}
			n.metrics.RecordPublishError(Protocol.ID, errors.Classify(err).String())
			n.logger.Debug("topic publish failed", "topic", topic, "error", err)
		}
	}
	n.retire(used)
}

// retire forgets every active topic not in used.
func (n *node) retire(used map[string]struct{}) {
	for topic := range n.active {
		if _, ok := used[topic]; ok {
			continue
		}
		delete(n.active, topic)
		n.logger.Info("topic retired", "topic", topic)
	}
}
