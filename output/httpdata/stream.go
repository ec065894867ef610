package httpdata

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
	"github.com/c360/netpublish/pipeline"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Envelope is the message written to stream clients.
type Envelope struct {
	Type      string         `json:"type"`
	Seq       uint64         `json:"seq"`
	Timestamp int64          `json:"timestamp"` // Unix milliseconds
	Data      map[string]any `json:"data"`
}

// Stream pushes data snapshots to websocket clients after every pipeline run.
type Stream struct {
	source       *DataHandler
	limiter      *rate.Limiter
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	metrics      *streamMetrics

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client

	notify chan struct{}
	seq    atomic.Uint64

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

var _ pipeline.RunListener = (*Stream)(nil)

type client struct {
	conn        *websocket.Conn
	connectedAt time.Time
	closed      atomic.Bool
	closeOnce   sync.Once
	writeMu     sync.Mutex
}

type streamMetrics struct {
	clientsConnected  prometheus.Gauge
	snapshotsSent     prometheus.Counter
	sendErrors        prometheus.Counter
	broadcastDuration prometheus.Histogram
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithRate limits broadcasts to limit per second with the given burst.
func WithRate(limit rate.Limit, burst int) StreamOption {
	return func(s *Stream) {
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithPingInterval sets how often idle clients are pinged.
func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithStreamLogger sets the stream logger.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger.With("component", "http-stream")
		}
	}
}

// WithStreamMetrics registers stream metrics in registry.
func WithStreamMetrics(registry *metric.MetricsRegistry) StreamOption {
	return func(s *Stream) {
		if registry != nil {
			s.metrics = newStreamMetrics(registry, s.logger)
		}
	}
}

// NewStream creates a stream over the snapshots of source. The default rate is ten
// snapshots per second.
func NewStream(source *DataHandler, opts ...StreamOption) *Stream {
	s := &Stream{
		source:       source,
		limiter:      rate.NewLimiter(rate.Limit(10), 1),
		pingInterval: 30 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger:  slog.Default().With("component", "http-stream"),
		clients: make(map[*websocket.Conn]*client),
		notify:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newStreamMetrics(registry *metric.MetricsRegistry, logger *slog.Logger) *streamMetrics {
	m := &streamMetrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netpublish",
			Subsystem: "http_stream",
			Name:      "clients_connected",
			Help:      "Number of connected stream clients",
		}),
		snapshotsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netpublish",
			Subsystem: "http_stream",
			Name:      "snapshots_sent_total",
			Help:      "Snapshots written to stream clients",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netpublish",
			Subsystem: "http_stream",
			Name:      "send_errors_total",
			Help:      "Failed writes to stream clients",
		}),
		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netpublish",
			Subsystem: "http_stream",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to send one snapshot to every client",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}

	const service = "http_stream"
	for name, err := range map[string]error{
		"clients_connected":  registry.RegisterGauge(service, "clients_connected", m.clientsConnected),
		"snapshots_sent":     registry.RegisterCounter(service, "snapshots_sent_total", m.snapshotsSent),
		"send_errors":        registry.RegisterCounter(service, "send_errors_total", m.sendErrors),
		"broadcast_duration": registry.RegisterHistogram(service, "broadcast_duration_seconds", m.broadcastDuration),
	} {
		if err != nil {
			logger.Debug("stream metric not registered", "metric", name, "error", err)
		}
	}
	return m
}

// Start starts the broadcast and ping loops. They stop with ctx or Stop.
func (s *Stream) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.cancel != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Stream", "Start", "start stream")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.broadcastLoop(s.ctx)
	go s.pingLoop(s.ctx)
	return nil
}

// Stop disconnects every client and waits up to timeout for the loops to exit.
func (s *Stream) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	if s.cancel == nil {
		s.lifecycleMu.Unlock()
		return nil
	}
	s.cancel()
	s.cancel = nil
	s.lifecycleMu.Unlock()

	s.closeAllClients()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Stream", "Stop", "wait for stream goroutines")
	}
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// OnRunStarted implements pipeline.RunListener.
func (s *Stream) OnRunStarted() {}

// OnRunStopped implements pipeline.RunListener. Runs that finish while a
// broadcast is pending share that broadcast.
func (s *Stream) OnRunStopped() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// ServeHTTP upgrades the request and registers the client. The client receives
// the current snapshot right away.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.lifecycleMu.Lock()
	ctx := s.ctx
	running := s.cancel != nil
	s.lifecycleMu.Unlock()
	if !running {
		http.Error(w, "stream not started", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		s.recordSendError()
		return
	}

	// Registration and wg.Add happen under lifecycleMu so a concurrent Stop
	// either sees the client or makes us drop it.
	c := &client{conn: conn, connectedAt: time.Now()}
	s.lifecycleMu.Lock()
	if s.cancel == nil || s.ctx != ctx {
		s.lifecycleMu.Unlock()
		_ = conn.Close()
		return
	}
	s.clientsMu.Lock()
	s.clients[conn] = c
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.wg.Add(1)
	s.lifecycleMu.Unlock()

	if s.metrics != nil {
		s.metrics.clientsConnected.Set(float64(count))
	}
	s.logger.Debug("stream client connected", "remote", r.RemoteAddr, "clients", count)

	if !s.source.Stale() {
		if msg, err := s.encode(); err == nil {
			s.send(c, msg)
		}
	}
	go s.readLoop(ctx, c)
}

// readLoop discards client messages and detects disconnects.
func (s *Stream) readLoop(ctx context.Context, c *client) {
	defer s.wg.Done()
	defer s.removeClient(c)

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for ctx.Err() == nil {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) removeClient(c *client) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		s.clientsMu.Lock()
		delete(s.clients, c.conn)
		count := len(s.clients)
		s.clientsMu.Unlock()

		if s.metrics != nil {
			s.metrics.clientsConnected.Set(float64(count))
		}
		_ = c.conn.Close()
	})
}

func (s *Stream) closeAllClients() {
	for _, c := range s.snapshotClients() {
		s.removeClient(c)
	}
}

func (s *Stream) snapshotClients() []*client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	list := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if !c.closed.Load() {
			list = append(list, c)
		}
	}
	return list
}

func (s *Stream) broadcastLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		s.broadcast()
	}
}

func (s *Stream) broadcast() {
	// A newer run is already updating values; its stop will trigger the next send.
	if s.source.Stale() {
		return
	}
	clients := s.snapshotClients()
	if len(clients) == 0 {
		return
	}

	start := time.Now()
	msg, err := s.encode()
	if err != nil {
		s.logger.Error("encode stream snapshot", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			s.send(c, msg)
		}(c)
	}
	wg.Wait()

	if s.metrics != nil {
		s.metrics.broadcastDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Stream) encode() ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      "data",
		Seq:       s.seq.Add(1),
		Timestamp: time.Now().UnixMilli(),
		Data:      s.source.Snapshot(nil),
	})
}

func (s *Stream) send(c *client, msg []byte) {
	if c.closed.Load() {
		return
	}
	if err := s.write(c, websocket.TextMessage, msg); err != nil {
		s.logger.Debug("stream write failed", "error", err)
		s.recordSendError()
		s.removeClient(c)
		return
	}
	if s.metrics != nil {
		s.metrics.snapshotsSent.Inc()
	}
}

// write serializes writes on one connection, which gorilla/websocket requires.
func (s *Stream) write(c *client, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (s *Stream) recordSendError() {
	if s.metrics != nil {
		s.metrics.sendErrors.Inc()
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range s.snapshotClients() {
				if err := s.write(c, websocket.PingMessage, nil); err != nil {
					s.removeClient(c)
				}
			}
		}
	}
}
