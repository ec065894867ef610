// Package natsclient wraps a NATS connection with a circuit breaker, classified
// errors and a small KV store abstraction over JetStream buckets.
//
// The table publisher stores values in a KV bucket and the bus publisher sends
// encoded messages on plain subjects, so both share one Client:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("netpublish"),
//	    natsclient.WithMetrics(registry.CoreMetrics()),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.ConnectWithRetry(ctx, retry.Persistent()); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "netpublish"})
//	kv := client.NewKVStore(bucket)
//
// # Circuit breaker
//
// Every failed Connect or bucket operation counts against a threshold (5 by
// default). Reaching it opens the circuit: calls fail fast with ErrCircuitOpen until
// the backoff elapses, then the circuit half-opens and the next Connect is tried.
// The backoff doubles on every opening up to the configured maximum. A success
// resets it.
//
// # Errors
//
// Connection errors wrap errors.ErrNoConnection and errors.ErrCircuitOpen and are
// classified transient. KV key errors are classified invalid, so a bad key is not
// retried.
//
// # Testing
//
// NewTestClient starts a NATS server in a container through testcontainers. Tests
// that use it carry the integration build tag.
package natsclient
