package table

import (
	"context"
	"strings"
)

// Root is the table every publisher writes under.
const Root = "GRIP"

// RunKey is the table path that controls the pipeline runner.
const RunKey = Root + "/run"

// Store is a flat key/value view of the table. Paths use "/" as the separator.
type Store interface {
	Put(ctx context.Context, path string, value []byte) error
	// Delete removes path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error
	// Get returns errors.ErrKeyNotFound for a missing path.
	Get(ctx context.Context, path string) ([]byte, error)
}

// Watcher is implemented by stores that can report changes of a single path.
type Watcher interface {
	// Watch calls fn with every new value written to path until ctx is done. The
	// current value, if any, is reported first.
	Watch(ctx context.Context, path string, fn func(value []byte)) error
}

// PathValidator is implemented by stores that restrict path characters. Paths are
// checked before a write is queued so a bad name fails the publish itself.
type PathValidator interface {
	ValidatePath(path string) error
}

// Path joins table path segments.
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}
