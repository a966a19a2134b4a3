package observability

import (
	"context"
	"log/slog"
	"sync/atomic"
)

var eventLogger atomic.Pointer[slog.Logger]

// SetEventLogger installs the logger used for operational event records.
// Falls back to slog.Default until the composition root calls it.
func SetEventLogger(logger *slog.Logger) {
	eventLogger.Store(logger)
}

func events() *slog.Logger {
	if l := eventLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// RecordRepositoryOperation emits one record per repository call outcome.
// Outcomes are low-cardinality labels: success, error, not_found, mismatch.
func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	events().LogAttrs(ctx, slog.LevelDebug, "repository.operation",
		slog.String("entity", entity),
		slog.String("operation", operation),
		slog.String("outcome", outcome),
	)
}

// RecordAuthEvent tracks authentication state-machine transitions.
func RecordAuthEvent(ctx context.Context, flow, outcome string) {
	events().LogAttrs(ctx, slog.LevelDebug, "auth.event",
		slog.String("flow", flow),
		slog.String("outcome", outcome),
	)
}

// RecordTenantResolution tracks directory lookups by method (reference or
// hostname).
func RecordTenantResolution(ctx context.Context, method, outcome string) {
	events().LogAttrs(ctx, slog.LevelDebug, "tenant.resolution",
		slog.String("method", method),
		slog.String("outcome", outcome),
	)
}

// RecordRateLimitDecision tracks limiter verdicts per scope.
func RecordRateLimitDecision(ctx context.Context, scope string, allowed bool) {
	events().LogAttrs(ctx, slog.LevelDebug, "ratelimit.decision",
		slog.String("scope", scope),
		slog.Bool("allowed", allowed),
	)
}
