// Package netpublish publishes the results of a vision pipeline over the network.
//
// A pipeline runs publish steps on a fixed interval. Each step reads its
// inputs (a name, a value, and one toggle per key) and hands the value to a
// publisher bound to a network protocol:
//
//   - output/table writes keys into a NATS KV bucket or Redis, the network
//     table, under "GRIP/<name>/<key>".
//   - output/httpdata serves the latest values as JSON at /GRIP/data and
//     streams them over a websocket at /GRIP/stream.
//   - output/rosbus publishes typed messages on a ROS-style bus carried by
//     NATS subjects.
//
// # Layout
//
//	pipeline     steps, sockets, witnesses and the interval runner
//	publish      the publisher and manager contracts, key discovery, the publish step
//	publishable  report types that describe their own keys
//	operations   the operation catalog ("NTPublish Point", "HTTPPublish Boolean", ...)
//	config       layered service configuration and project files
//	health       step and back-end health served at /health
//	metric       Prometheus metrics
//	natsclient   the NATS connection with reconnect and KV helpers
//	cmd/netpublish the command line entry point
//
// # Quick start
//
//	netpublish serve --config netpublish.yaml --project project.yaml
//
// where project.yaml lists the steps:
//
//	steps:
//	  - operation: NTPublish Point
//	    name: target
//	    value: {x: 3, y: 4}
//	    publish: {y: false}
package netpublish
