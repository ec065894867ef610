// Package retry provides exponential backoff retry for transient failures.
//
// Back ends use it in two places: connecting to a broker at startup (Persistent) and
// writing queued values to a store (Quick). A publish tick never waits on a retry;
// retries only run inside worker goroutines.
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return store.Put(ctx, key, value)
//	})
//
// Errors wrapped with NonRetryable stop the loop at once. Config.RetryIf narrows
// retries further, typically to errors.IsTransient.
package retry
