// Package health reports the state of publish steps and back-end connections.
package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/netpublish/pipeline"
)

// Status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?|redis)://[^\s]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{2,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of a component, optionally made of sub-statuses.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics are the counters attached to a step status.
type Metrics struct {
	ErrorCount   int       `json:"error_count"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// IsHealthy reports whether the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded reports whether the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// IsUnhealthy reports whether the status is unhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// sanitizeErrorMessage strips addresses and credentials from step errors before
// they are served.
func sanitizeErrorMessage(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") || strings.Contains(lower, "credential") {
		msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}

// FromStep converts a step witness snapshot. A failing step is degraded.
func FromStep(name string, h pipeline.Health) Status {
	s := NewHealthy(name, "publishing")
	if !h.Healthy {
		s = NewDegraded(name, sanitizeErrorMessage(h.LastError))
	}
	s.Metrics = &Metrics{ErrorCount: h.ErrorCount, LastActivity: h.LastCheck}
	return s
}

// FromPipeline aggregates the health of every step of p.
func FromPipeline(name string, p *pipeline.Pipeline) Status {
	handles := p.Steps()
	subs := make([]Status, 0, len(handles))
	for _, h := range handles {
		subs = append(subs, FromStep(h.Step.Name()+" "+h.ID, h.Witness.Health()))
	}
	return Aggregate(name, subs)
}
