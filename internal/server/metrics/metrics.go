// Package metrics records save outcomes with the OpenTelemetry metric API.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "intakekeeper"

// Scope attribute values.
const (
	ScopeDraft   = "draft"
	ScopeSection = "section"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	saves        metric.Int64Counter
	conflicts    metric.Int64Counter
	auditDropped metric.Int64Counter
}

// NewRecorder registers the counters on mp. A nil mp means the global
// provider.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	r := &Recorder{}
	var err error

	r.saves, err = meter.Int64Counter("intake.saves",
		metric.WithDescription("Committed versioned saves"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, err
	}

	r.conflicts, err = meter.Int64Counter("intake.conflicts",
		metric.WithDescription("Saves rejected because of a stale version"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, err
	}

	r.auditDropped, err = meter.Int64Counter("intake.audit.dropped",
		metric.WithDescription("Audit events that could not be written"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Recorder) SaveCommitted(ctx context.Context, scope string) {
	if r == nil {
		return
	}
	r.saves.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

func (r *Recorder) Conflict(ctx context.Context, scope string) {
	if r == nil {
		return
	}
	r.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

func (r *Recorder) AuditDropped(ctx context.Context, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.auditDropped.Add(ctx, int64(n))
}
