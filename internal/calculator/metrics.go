package calculator

import (
	"context"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

const (
	outcomeOK   = "ok"
	meterPrefix = "calculator/"
)

// Meters records orchestrator activity. A nil *Meters records nothing.
type Meters struct {
	app         commoncfg.Application
	actions     metric.Int64Counter
	duration    metric.Int64Histogram
	storedValue metric.Int64Gauge
}

// NewMeters creates the orchestrator instruments on the global meter
// provider, scoped to the application name.
func NewMeters(ctx context.Context, app commoncfg.Application) (*Meters, error) {
	meter := otel.Meter(
		meterPrefix+app.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(app)...),
	)

	m := &Meters{app: app}

	var err error

	m.actions, err = meter.Int64Counter(
		"calculator.action_count",
		metric.WithDescription("Orchestrator actions by outcome"),
		metric.WithUnit("action"),
	)
	if err != nil {
		return nil, oops.In("Calculator").
			WithContext(ctx).
			Wrapf(err, "creating action_count meter")
	}

	m.duration, err = meter.Int64Histogram(
		"calculator.action_duration",
		metric.WithDescription("End to end duration of orchestrator actions, including wallet and confirmation waits"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, oops.In("Calculator").
			WithContext(ctx).
			Wrapf(err, "creating action_duration meter")
	}

	m.storedValue, err = meter.Int64Gauge(
		"calculator.stored_value",
		metric.WithDescription("Last stored value read from the contract, when it fits into int64"),
	)
	if err != nil {
		return nil, oops.In("Calculator").
			WithContext(ctx).
			Wrapf(err, "creating stored_value meter")
	}

	return m, nil
}

func (m *Meters) record(ctx context.Context, action PendingAction, started time.Time, err error) {
	if m == nil {
		return
	}

	outcome := outcomeOK
	if err != nil {
		outcome = string(serviceerr.KindOf(err))
	}

	attrs := metric.WithAttributes(
		otlp.CreateAttributesFrom(m.app,
			attribute.String(commoncfg.AttrOperation, string(action)),
			attribute.String("outcome", outcome),
		)...,
	)

	m.actions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, time.Since(started).Milliseconds(), attrs)
}

func (m *Meters) recordStoredValue(ctx context.Context, state ContractState) {
	if m == nil || state.StoredValue == nil || !state.StoredValue.IsInt64() {
		return
	}

	m.storedValue.Record(ctx, state.StoredValue.Int64(),
		metric.WithAttributes(attribute.String("contract", state.Address)))
}
