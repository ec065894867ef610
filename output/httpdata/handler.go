package httpdata

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/pipeline"
)

// Paths served by the HTTP back end.
const (
	DataPath   = "/GRIP/data"
	StreamPath = "/GRIP/stream"
)

// Supplier produces the current value of one data entry.
type Supplier func() any

// supplierEntry remembers which publisher registered a supplier. Entries added
// through AddDataSupplier have a nil owner.
type supplierEntry struct {
	fn    Supplier
	owner any
}

// DataHandler serves the values of registered suppliers as JSON.
type DataHandler struct {
	mu        sync.RWMutex
	suppliers map[string]supplierEntry

	// stale is set while a pipeline run is updating the suppliers.
	stale atomic.Bool

	logger *slog.Logger
}

var _ pipeline.RunListener = (*DataHandler)(nil)

// NewDataHandler creates a handler without suppliers.
func NewDataHandler(logger *slog.Logger) *DataHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataHandler{
		suppliers: make(map[string]supplierEntry),
		logger:    logger.With("component", "http-data"),
	}
}

// AddDataSupplier publishes the values of fn under name, replacing any supplier
// already using that name.
func (h *DataHandler) AddDataSupplier(name string, fn Supplier) error {
	return h.addSupplier(name, fn, nil)
}

func (h *DataHandler) addSupplier(name string, fn Supplier, owner any) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrEmptyName, "DataHandler", "AddDataSupplier", "add data supplier")
	}
	if fn == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil supplier for %q", errors.ErrInvalidData, name),
			"DataHandler", "AddDataSupplier", "add data supplier")
	}
	h.mu.Lock()
	h.suppliers[name] = supplierEntry{fn: fn, owner: owner}
	h.mu.Unlock()
	return nil
}

// RemoveDataSupplier removes the supplier for name. Unknown names are ignored.
func (h *DataHandler) RemoveDataSupplier(name string) {
	h.mu.Lock()
	delete(h.suppliers, name)
	h.mu.Unlock()
}

// removeSupplier removes the supplier for name only while owner still holds it.
func (h *DataHandler) removeSupplier(name string, owner any) {
	h.mu.Lock()
	if e, ok := h.suppliers[name]; ok && e.owner == owner {
		delete(h.suppliers, name)
	}
	h.mu.Unlock()
}

// Names returns the names of the registered suppliers.
func (h *DataHandler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.suppliers))
	for name := range h.suppliers {
		names = append(names, name)
	}
	return names
}

// OnRunStarted implements pipeline.RunListener.
func (h *DataHandler) OnRunStarted() {
	h.stale.Store(true)
}

// OnRunStopped implements pipeline.RunListener.
func (h *DataHandler) OnRunStopped() {
	h.stale.Store(false)
}

// Stale reports whether a pipeline run is in progress.
func (h *DataHandler) Stale() bool {
	return h.stale.Load()
}

// Snapshot calls the suppliers selected by filter. An empty filter selects every
// supplier. Non-finite numbers are replaced with nil.
func (h *DataHandler) Snapshot(filter url.Values) map[string]any {
	h.mu.RLock()
	selected := make(map[string]Supplier, len(h.suppliers))
	for name, e := range h.suppliers {
		if len(filter) == 0 || filter.Has(name) {
			selected[name] = e.fn
		}
	}
	h.mu.RUnlock()

	out := make(map[string]any, len(selected))
	for name, fn := range selected {
		out[name] = sanitize(fn())
	}
	return out
}

// ServeHTTP implements http.Handler.
func (h *DataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.stale.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	body, err := json.MarshalIndent(h.Snapshot(r.URL.Query()), "", "  ")
	if err != nil {
		h.logger.Error("encode data snapshot", "error", err)
		http.Error(w, "cannot encode data", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Debug("write data response", "remote", r.RemoteAddr, "error", err)
	}
}

// sanitize replaces NaN and infinities, which JSON cannot carry, with nil.
func sanitize(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		return sanitize(float64(t))
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = sanitize(f)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitize(e)
		}
		return out
	case map[string]any:
		out := maps.Clone(t)
		for k, e := range out {
			out[k] = sanitize(e)
		}
		return out
	default:
		return v
	}
}
