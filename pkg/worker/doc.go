// Package worker provides a generic, bounded worker pool.
//
// Publishers must return promptly from Publish, so back ends that talk to a store
// hand each write to a Pool and return. Submit never blocks: when the queue is full
// it returns ErrQueueFull, which is classified as transient and reported on the
// publishing step's witness instead of stalling the pipeline.
//
// A pool created with one worker processes items strictly in submission order. The
// table back end relies on this so that a delete queued after a put is applied after
// it.
//
//	pool := worker.NewPool(1, 256, func(ctx context.Context, w write) error {
//	    return w.apply(ctx)
//	}, worker.WithErrorHandler(onWriteError))
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Statistics are always tracked (Stats); Prometheus metrics are registered when
// WithMetricsRegistry is supplied.
package worker
