package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/netpublish/config"
	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/health"
	"github.com/c360/netpublish/metric"
	"github.com/c360/netpublish/natsclient"
	"github.com/c360/netpublish/operations"
	"github.com/c360/netpublish/output/httpdata"
	"github.com/c360/netpublish/output/rosbus"
	"github.com/c360/netpublish/output/table"
	"github.com/c360/netpublish/pipeline"
	"github.com/c360/netpublish/pkg/retry"
	"github.com/c360/netpublish/pkg/tlsutil"
	"github.com/c360/netpublish/publish"
)

const stopTimeout = 5 * time.Second

type tableStore interface {
	table.Store
	table.Watcher
}

// app owns every long-lived part of a serve run.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	// workCtx runs the back-end workers. close cancels it after the managers
	// have stopped.
	workCtx  context.Context
	stopWork context.CancelFunc

	metrics  *metric.MetricsRegistry
	backends *health.Monitor
	managers *publish.ManagerRegistry
	catalog  *operations.Catalog
	pipeline *pipeline.Pipeline
	runner   *pipeline.Runner

	nats  *natsclient.Client
	redis redis.UniversalClient
	store tableStore

	data          *httpdata.DataHandler
	stream        *httpdata.Stream
	server        *httpdata.Server
	metricsServer *metric.Server
}

// newApp connects the configured back ends and builds the catalog over them.
// ctx bounds the connection attempts.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metric.NewMetricsRegistry(),
		backends: health.NewMonitor(),
		managers: publish.NewManagerRegistry(),
	}
	a.workCtx, a.stopWork = context.WithCancel(context.WithoutCancel(ctx))
	// Error returns hand back nil, so the partly built app is closed here.
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	pipeOpts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithMetrics(a.metrics.CoreMetrics())}
	a.pipeline = pipeline.New(pipeOpts...)
	a.runner = pipeline.NewRunner(a.pipeline, cfg.Pipeline.Interval, pipeOpts...)

	if cfg.UsesNATS() {
		if err := a.connectNATS(ctx); err != nil {
			return nil, err
		}
	}

	var protocols []publish.Protocol
	if cfg.Table.Enabled {
		if err := a.openTable(ctx); err != nil {
			return nil, err
		}
		factory := table.NewFactory(a.workCtx, a.store, table.WithQueueSize(cfg.Table.QueueSize))
		if err := a.managers.Register(table.Protocol.ID, factory); err != nil {
			return nil, err
		}
		protocols = append(protocols, table.Protocol)
	}

	if cfg.HTTP.Enabled {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(cfg.HTTP.TLS)
		if err != nil {
			return nil, err
		}
		a.data = httpdata.NewDataHandler(logger)
		a.stream = httpdata.NewStream(a.data,
			httpdata.WithRate(rate.Limit(cfg.HTTP.StreamRate), 1),
			httpdata.WithStreamLogger(logger),
			httpdata.WithStreamMetrics(a.metrics))
		a.server = httpdata.NewServer(httpdata.ServerConfig{
			Addr:            cfg.HTTP.Addr,
			AllowedOrigins:  cfg.HTTP.AllowedOrigins,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
			Health:          health.Handler(a.healthStatus),
			TLS:             tlsConfig,
		}, a.data, a.stream, logger)
		a.pipeline.AddRunListener(a.data)
		a.pipeline.AddRunListener(a.stream)
		if err := a.managers.Register(httpdata.Protocol.ID, httpdata.NewFactory(a.data)); err != nil {
			return nil, err
		}
		protocols = append(protocols, httpdata.Protocol)
	}

	if cfg.ROS.Enabled {
		factory := rosbus.NewFactory(a.workCtx, a.nats, rosbus.WithRate(rate.Limit(cfg.ROS.Rate)))
		if err := a.managers.Register(rosbus.Protocol.ID, factory); err != nil {
			return nil, err
		}
		protocols = append(protocols, rosbus.Protocol)
	}

	if cfg.Metrics.Enabled {
		a.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.metrics)
	}

	deps := publish.Dependencies{Logger: logger, Metrics: a.metrics}
	a.catalog, err = operations.NewStandardCatalog(func(id string) (publish.Manager, error) {
		return a.managers.Manager(id, deps)
	}, protocols...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) connectNATS(ctx context.Context) error {
	client, err := connectNATS(ctx, a.cfg.NATS, a.logger,
		natsclient.WithMetrics(a.metrics.CoreMetrics()),
		natsclient.WithHealthChangeCallback(func(up bool) {
			if up {
				a.backends.UpdateHealthy("nats", "connected")
			} else {
				a.backends.UpdateUnhealthy("nats", "reconnecting")
			}
		}))
	if err != nil {
		return err
	}
	a.nats = client
	return nil
}

// connectNATS dials the configured servers. extra options are applied last.
func connectNATS(ctx context.Context, c config.NATSConfig, logger *slog.Logger, extra ...natsclient.ClientOption) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMaxReconnects(c.MaxReconnects),
		natsclient.WithReconnectWait(c.ReconnectWait),
		natsclient.WithTimeout(c.Timeout),
	}
	if c.Name != "" {
		opts = append(opts, natsclient.WithName(c.Name))
	}
	if c.Username != "" {
		opts = append(opts, natsclient.WithCredentials(c.Username, c.Password))
	}
	if c.Token != "" {
		opts = append(opts, natsclient.WithToken(c.Token))
	}
	tlsConfig, err := tlsutil.LoadClientTLSConfig(c.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLS(tlsConfig))
	}
	opts = append(opts, extra...)

	client, err := natsclient.NewClient(strings.Join(c.URLs, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "app", "connectNATS", "create NATS client")
	}
	if err := client.ConnectWithRetry(ctx, retry.DefaultConfig()); err != nil {
		return nil, errors.Wrap(err, "app", "connectNATS", "connect to NATS")
	}
	logger.Info("connected to NATS", "url", client.URL())
	return client, nil
}

func (a *app) openTable(ctx context.Context) error {
	switch a.cfg.Table.Backend {
	case config.BackendNATS:
		bucket, err := a.nats.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      a.cfg.Table.Bucket,
			Description: "netpublish table",
			History:     1,
		})
		if err != nil {
			return errors.Wrap(err, "app", "openTable", "open bucket "+a.cfg.Table.Bucket)
		}
		a.store = table.NewNATSStore(a.nats.NewKVStore(bucket))

	case config.BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{a.cfg.Redis.Addr},
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.redis = client
		err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			return client.Ping(ctx).Err()
		})
		if err != nil {
			return errors.WrapTransient(err, "app", "openTable", "ping redis at "+a.cfg.Redis.Addr)
		}
		a.backends.UpdateHealthy("redis", "connected")
		a.store = table.NewRedisStore(client,
			table.WithPrefix(a.cfg.Table.Prefix),
			table.WithPollInterval(a.cfg.Table.PollInterval))

	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "app", "openTable", "select backend "+a.cfg.Table.Backend)
	}
	a.logger.Info("table ready", "backend", a.cfg.Table.Backend)
	return nil
}

// healthStatus reports the back-end connections and every publish step.
func (a *app) healthStatus() health.Status {
	if a.nats != nil && a.nats.IsHealthy() {
		if rtt, err := a.nats.RTT(); err == nil {
			a.backends.UpdateHealthy("nats", "connected, rtt "+rtt.Round(time.Microsecond).String())
		}
	}
	return health.Aggregate(appName, []health.Status{
		a.backends.AggregateHealth("backends"),
		health.FromPipeline("pipeline", a.pipeline),
	})
}

// run serves until ctx is done or a server fails, then shuts everything down.
// In headless mode the runner is driven by the table run entry. Otherwise it
// starts right away.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.stream != nil {
		if err := a.stream.Start(ctx); err != nil {
			return err
		}
	}
	if a.server != nil {
		g.Go(a.server.Start)
		g.Go(func() error {
			<-ctx.Done()
			return a.server.Stop(context.Background())
		})
	}
	if a.metricsServer != nil {
		g.Go(a.metricsServer.Start)
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return a.metricsServer.Stop(stopCtx)
		})
	}

	if a.cfg.Pipeline.Headless && a.store != nil {
		rc := table.NewRunControl(a.store, a.runner,
			table.WithHeadless(true),
			table.WithRunControlLogger(a.logger))
		g.Go(func() error { return rc.Run(ctx) })
		a.logger.Info("headless mode, waiting for the table run entry", "key", table.RunKey)
	} else {
		if a.cfg.Pipeline.Headless {
			a.logger.Warn("headless mode needs the table back end, starting the pipeline now")
		}
		if err := a.runner.Start(ctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	a.close()
	if err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// close stops the runner, cleans up every step so publishers remove their data,
// then stops the back ends.
func (a *app) close() {
	if a.runner != nil && a.runner.Running() {
		_ = a.runner.Stop()
	}
	if a.pipeline != nil {
		a.pipeline.Close()
	}

	for _, m := range a.managers.Managers() {
		switch s := m.(type) {
		case interface{ Stop(time.Duration) error }:
			if err := s.Stop(stopTimeout); err != nil {
				a.logger.Warn("manager stop incomplete", "protocol", m.Protocol().ID, "error", err)
			}
		case interface{ Stop() }:
			s.Stop()
		}
	}

	a.stopWork()

	if a.stream != nil {
		if err := a.stream.Stop(stopTimeout); err != nil {
			a.logger.Warn("stream stop incomplete", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.nats != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = a.nats.Close(stopCtx)
		a.nats = nil
	}
}
