package api

import (
	"context"

	"github.com/persistorai/storygraph/internal/domain"
)

// GraphService is the graph cache facade the handlers call.
type GraphService = domain.GraphService

// Warmer queues background book builds.
type Warmer = domain.Warmer

// Pinger checks the durable cache tier for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
