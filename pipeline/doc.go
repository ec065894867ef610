// Package pipeline is the minimal execution engine that hosts publish steps.
//
// A Pipeline holds an ordered list of steps. Tick runs every step once, in order,
// on the calling goroutine. A failing or panicking step is recorded on its handle's
// Witness and does not stop the remaining steps or later ticks. RemoveStep waits for
// an in-flight tick and calls CleanUp exactly once.
//
// Steps expose their configuration as Sockets. A socket is read and written under its
// own lock, so a UI or configuration goroutine may change a value while a tick is
// running; every read sees one complete value.
//
// Runner ticks a pipeline on an interval and reports its running state. Run
// listeners are told when each tick starts and stops, which lets the HTTP back end
// refuse to serve half-updated data.
package pipeline
