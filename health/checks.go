package health

import (
	"context"

	"github.com/saiset-co/sai-trade-client/types"
)

// CacheCheck reports every enabled backend that failed to open or count.
func CacheCheck(stats func() types.CacheStats, enabled map[types.Backend]bool) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		current := stats()
		details := make(map[string]interface{}, len(current.Backends))
		status := types.StatusHealthy
		message := ""

		for _, backend := range current.Backends {
			if !enabled[backend.Backend] {
				details[backend.Backend.String()] = "disabled"
				continue
			}
			if !backend.Available {
				details[backend.Backend.String()] = "unavailable"
				status = types.StatusUnhealthy
				message = "cache backend unavailable"
				continue
			}
			details[backend.Backend.String()] = backend.Entries
		}

		return types.HealthCheck{Status: status, Message: message, Details: details}
	}
}

// ConnectionCheck is unknown while the channel is down but polling covers
// for it, and unhealthy when nothing does.
func ConnectionCheck(state func() types.ConnectionState, polling func() bool) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		snapshot := state()
		details := map[string]interface{}{
			"status":        snapshot.Status.String(),
			"subscriptions": snapshot.Subscriptions,
		}

		switch snapshot.Status {
		case types.StatusConnected:
			return types.HealthCheck{Status: types.StatusHealthy, Details: details}
		case types.StatusDisconnected:
			if polling() {
				return types.HealthCheck{Status: types.StatusUnknown, Message: "channel down, polling", Details: details}
			}
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "channel down", Details: details}
		default:
			return types.HealthCheck{Status: types.StatusUnknown, Message: "channel connecting", Details: details}
		}
	}
}

// BreakerCheck flags services whose breaker is open (unhealthy) or probing
// (unknown).
func BreakerCheck(states func() map[string]string) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		current := states()
		details := make(map[string]interface{}, len(current))
		status := types.StatusHealthy
		message := ""

		for service, state := range current {
			details[service] = state
			switch state {
			case "open":
				status = types.StatusUnhealthy
				message = "circuit open"
			case "half-open":
				if status == types.StatusHealthy {
					status = types.StatusUnknown
					message = "circuit probing"
				}
			}
		}

		return types.HealthCheck{Status: status, Message: message, Details: details}
	}
}
