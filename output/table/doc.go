// Package table publishes values into a hierarchical key/value table, the way a
// NetworkTables client lays them out.
//
// Every publisher writes under the root table "GRIP". A single-value publisher
// named "distance" writes GRIP/distance. A multi-key publisher named "target" with
// keys x and y writes GRIP/target/x and GRIP/target/y, and deletes the keys of its
// key set that a publish leaves out. Renaming, publishing nothing and closing
// delete the whole subtable.
//
// The table lives in a Store. NATSStore keeps it in a JetStream KV bucket, with
// "/" mapped to "." because KV keys cannot contain slashes. RedisStore keeps it in
// Redis under an optional prefix. Values are JSON encoded, with NaN and
// infinities written as null.
//
// Writes never happen on the pipeline goroutine: each publish is queued as one
// batch on the manager's single-worker pool, so batches reach the store in the order
// they were published.
//
// RunControl watches GRIP/run and starts or stops the pipeline runner when a
// boolean is written there, which lets a robot program drive a headless process.
package table
