// Package metric provides the Prometheus registry and HTTP server for netpublish.
//
// MetricsRegistry owns a private prometheus.Registry with the core publishing
// metrics (Metrics) already registered: values handed to back ends, back end
// failures by error class, active publishers per protocol, pipeline runs and step
// errors, and the NATS connection state. Components register their own collectors
// through the MetricsRegistrar methods, keyed "service.metric" so a duplicate
// registration is reported as an invalid error instead of a panic.
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordPublish("nt", "map")
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	go server.Start()
//	defer server.Stop(ctx)
//
// All Metrics record methods accept a nil receiver, so components can be built
// without metrics in tests.
package metric
