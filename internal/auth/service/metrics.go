package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the service's instruments.
const MeterName = "github.com/aussiebroadwan/bookshelf/internal/auth/service"

// Metrics holds the authentication counters. A nil *Metrics records nothing.
type Metrics struct {
	loginAttempts   metric.Int64Counter
	lockouts        metric.Int64Counter
	refreshAttempts metric.Int64Counter
	invalidated     metric.Int64Counter
	reaped          metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.loginAttempts, err = meter.Int64Counter("auth.login.attempts",
		metric.WithDescription("Login attempts by outcome.")); err != nil {
		return nil, err
	}
	if m.lockouts, err = meter.Int64Counter("auth.account.lockouts",
		metric.WithDescription("Accounts that crossed the failed-attempt threshold.")); err != nil {
		return nil, err
	}
	if m.refreshAttempts, err = meter.Int64Counter("auth.refresh.attempts",
		metric.WithDescription("Refresh-token rotations by outcome.")); err != nil {
		return nil, err
	}
	if m.invalidated, err = meter.Int64Counter("auth.sessions.invalidated",
		metric.WithDescription("Sessions ended, by reason.")); err != nil {
		return nil, err
	}
	if m.reaped, err = meter.Int64Counter("auth.housekeeping.sessions_reaped",
		metric.WithDescription("Stale session rows deleted by housekeeping.")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) login(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) lockout(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockouts.Add(ctx, 1)
}

func (m *Metrics) refresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) sessionsInvalidated(ctx context.Context, reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidated.Add(ctx, n, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) sessionsReaped(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(ctx, n)
}
