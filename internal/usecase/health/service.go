// Package health aggregates availability checks for the store and the
// embedding provider.
package health

import (
	"context"
	"time"
)

// pinger is the consumer interface for store liveness (ISP).
type pinger interface {
	Ping(ctx context.Context) error
}

// checker is the consumer interface for provider liveness (ISP).
type checker interface {
	HealthCheck(ctx context.Context) error
}

// Status is one health report.
type Status struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
}

// Service runs health checks. embedder may be nil when the provider exposes
// no health endpoint.
type Service struct {
	store    pinger
	embedder checker
	timeout  time.Duration
}

// New creates a health service.
func New(store pinger, embedder checker) *Service {
	return &Service{store: store, embedder: embedder, timeout: 5 * time.Second}
}

// Check pings every dependency and reports per-check results.
func (s *Service) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	st := Status{Healthy: true, Checks: map[string]string{}}

	if err := s.store.Ping(ctx); err != nil {
		st.Healthy = false
		st.Checks["store"] = err.Error()
	} else {
		st.Checks["store"] = "ok"
	}

	if s.embedder != nil {
		if err := s.embedder.HealthCheck(ctx); err != nil {
			st.Healthy = false
			st.Checks["embedding"] = err.Error()
		} else {
			st.Checks["embedding"] = "ok"
		}
	}

	return st
}
