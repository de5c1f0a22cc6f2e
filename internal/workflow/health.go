package workflow

import (
	"context"

	"streamlapse/internal/stage"
)

// Health runs every configured stage's health check and returns the
// results in pipeline order.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	results := make([]stage.Health, 0, len(m.stages))
	for _, stg := range m.stages {
		if stg.handler == nil {
			results = append(results, stage.Unhealthy(stg.name, "stage handler not configured"))
			continue
		}
		results = append(results, stg.handler.HealthCheck(ctx))
	}
	return results
}

// Ready reports whether every stage passed its health check.
func Ready(checks []stage.Health) bool {
	for _, check := range checks {
		if !check.Ready {
			return false
		}
	}
	return len(checks) > 0
}
