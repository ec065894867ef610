// Package httpdata publishes values over HTTP.
//
// Every named publisher registers a data supplier with a DataHandler. A GET on
// /GRIP/data returns one JSON object holding the latest value of every supplier:
//
//	curl 'http://localhost:2084/GRIP/data'
//	{
//	  "target": {"x": 3, "y": 4},
//	  "speed": 1.5
//	}
//
// Query parameter names select suppliers, so /GRIP/data?speed returns only the
// "speed" entry. While a pipeline run is in progress the handler answers 503 so
// clients never read a half-updated snapshot.
//
// Clients that want updates without polling connect a websocket to /GRIP/stream.
// The Stream sends the full snapshot after each pipeline run, at most as often as
// its rate limit allows.
//
// The DataHandler and the Stream both implement pipeline.RunListener and must be
// registered with the pipeline that runs the publish steps.
//
// Server mounts both on a chi router with CORS. ServerConfig.TLS switches it to
// HTTPS and ServerConfig.Health replaces the plain /health answer.
package httpdata
