package health

import "time"

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return Status{Component: component, Healthy: true, Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{Component: component, Status: StatusUnhealthy, Message: message, Timestamp: time.Now()}
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return Status{Component: component, Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Aggregate combines sub-statuses. Any unhealthy sub-status makes the result
// unhealthy. Otherwise any degraded one makes it degraded.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "nothing to report")
	}

	var unhealthy, degraded bool
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy = true
		case sub.IsDegraded():
			degraded = true
		}
	}

	var s Status
	switch {
	case unhealthy:
		s = NewUnhealthy(component, "one or more parts are unhealthy")
	case degraded:
		s = NewDegraded(component, "one or more parts are degraded")
	default:
		s = NewHealthy(component, "all parts are healthy")
	}
	s.SubStatuses = append([]Status(nil), subs...)
	return s
}
