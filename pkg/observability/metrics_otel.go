package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/session"
)

// OTelMetrics mirrors the session counters as OpenTelemetry instruments for export over
// OTLP. It implements session.Metrics.
type OTelMetrics struct {
	loginAttempts  metric.Int64Counter
	loginDuration  metric.Float64Histogram
	activeSessions metric.Int64UpDownCounter
	forcedLogouts  metric.Int64Counter
	reconciles     metric.Int64Counter

	active atomic.Bool
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return newOTelMetrics(otel.Meter("github.com/platinummonkey/cura"))
}

func newOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.loginAttempts, err = meter.Int64Counter(
		"cura.login.attempts",
		metric.WithDescription("Login attempts by strategy and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create login attempts counter: %w", err)
	}

	m.loginDuration, err = meter.Float64Histogram(
		"cura.login.duration",
		metric.WithDescription("Time spent authenticating a login attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create login duration histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"cura.session.active",
		metric.WithDescription("Signed-in sessions on this agent"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active sessions counter: %w", err)
	}

	m.forcedLogouts, err = meter.Int64Counter(
		"cura.session.forced_logouts",
		metric.WithDescription("Sessions ended without the user asking"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forced logouts counter: %w", err)
	}

	m.reconciles, err = meter.Int64Counter(
		"cura.session.reconciles",
		metric.WithDescription("Backend reconciliations by outcome"),
		metric.WithUnit("{reconcile}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciles counter: %w", err)
	}

	return m, nil
}

// ObserveLogin records a login attempt
func (m *OTelMetrics) ObserveLogin(strategy string, outcome auth.Outcome, elapsed time.Duration) {
	ctx := context.Background()
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", string(outcome)),
	))
	if outcome != auth.OutcomeInProgress {
		m.loginDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("strategy", strategy)))
	}
}

// SetActive adjusts the active session counter on transitions only
func (m *OTelMetrics) SetActive(active bool) {
	if m.active.Swap(active) == active {
		return
	}
	delta := int64(1)
	if !active {
		delta = -1
	}
	m.activeSessions.Add(context.Background(), delta)
}

// ForcedLogout counts a session ended for reason
func (m *OTelMetrics) ForcedLogout(reason string) {
	m.forcedLogouts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ObserveReconcile counts a reconciliation outcome
func (m *OTelMetrics) ObserveReconcile(outcome string) {
	m.reconciles.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// MultiMetrics fans session metrics out to several sinks
type MultiMetrics []session.Metrics

func (mm MultiMetrics) ObserveLogin(strategy string, outcome auth.Outcome, elapsed time.Duration) {
	for _, m := range mm {
		m.ObserveLogin(strategy, outcome, elapsed)
	}
}

func (mm MultiMetrics) SetActive(active bool) {
	for _, m := range mm {
		m.SetActive(active)
	}
}

func (mm MultiMetrics) ForcedLogout(reason string) {
	for _, m := range mm {
		m.ForcedLogout(reason)
	}
}

func (mm MultiMetrics) ObserveReconcile(outcome string) {
	for _, m := range mm {
		m.ObserveReconcile(outcome)
	}
}
