// Package config loads the netpublish process configuration and project files.
//
// A configuration is built from DefaultConfig, then file layers merged key by key,
// then NETPUBLISH_* environment overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("netpublish.yaml")
//	loader.AddLayer("site.toml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// The file type is chosen by extension (.json, .yaml, .yml, .toml). Durations are
// written as Go duration strings ("250ms") or nanoseconds. The http.tls and
// nats.tls sections take certificate file paths, loaded by pkg/tlsutil.
//
// A project lists the publish steps to run:
//
//	steps:
//	  - operation: NTPublish Point
//	    name: target
//	    value: {x: 3, y: 4}
//	    publish: {y: false}
//
// Projects are checked against an embedded JSON Schema before decoding, and
// Project.Apply builds the steps from an operations.Catalog.
package config
