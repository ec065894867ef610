// Package rosbus publishes values as typed messages on a robotics message bus.
//
// Each publisher runs a node. A publisher of a multi-key type named "target" runs
// the node GRIP/publisher/target and publishes one topic per key, such as
// GRIP/publisher/target/x. A single-value publisher runs at GRIP/publisher and its
// name is the topic.
//
// Topics are latched: the node republishes the latest value of every topic on each
// loop iteration, so late subscribers receive a value without waiting for the next
// pipeline run. A topic whose key is no longer published is retired.
//
// Messages are msgpack encoded Message values. The transport subject of a topic is
// the topic with "/" replaced by ".", so a NATS connection can carry the bus:
//
//	client, _ := natsclient.NewClient(url)
//	_ = client.Connect(ctx)
//	mgr := rosbus.NewManager(ctx, client)
package rosbus
