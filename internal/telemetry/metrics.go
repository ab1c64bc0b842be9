// Package telemetry records orderkeeper metrics through the global
// OpenTelemetry meter provider. Nothing is exported unless the host
// application installs a provider.
package telemetry

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dmitrijs2005/orderkeeper"

var (
	instrumentsOnce sync.Once
	savesCounter    metric.Int64Counter
	rowWrites       metric.Int64Counter
	registrations   metric.Int64Counter
	queryDuration   metric.Float64Histogram
)

func initInstruments() {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(meterName)
		if c, err := meter.Int64Counter("orderkeeper_saves_total",
			metric.WithDescription("Order saves by result"),
			metric.WithUnit("{save}")); err == nil {
			savesCounter = c
		}
		if c, err := meter.Int64Counter("orderkeeper_row_writes_total",
			metric.WithDescription("Row records and row-field values written or deleted by saves"),
			metric.WithUnit("{row}")); err == nil {
			rowWrites = c
		}
		if c, err := meter.Int64Counter("orderkeeper_field_registrations_total",
			metric.WithDescription("Field names registered on first use"),
			metric.WithUnit("{field}")); err == nil {
			registrations = c
		}
		if h, err := meter.Float64Histogram("orderkeeper_query_duration_seconds",
			metric.WithDescription("Order query latency including enrichment"),
			metric.WithUnit("s")); err == nil {
			queryDuration = h
		}
	})
}

// RecordSave counts one save attempt; result is "ok" or "failed".
func RecordSave(ctx context.Context, result string) {
	initInstruments()
	if savesCounter == nil {
		return
	}
	savesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRowWrites counts row level writes of a save by kind: "inserted",
// "changed" or "removed".
func RecordRowWrites(ctx context.Context, kind string, n int) {
	if n <= 0 {
		return
	}
	initInstruments()
	if rowWrites == nil {
		return
	}
	rowWrites.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRegistration counts a field name newly seen in a namespace.
func RecordRegistration(ctx context.Context, namespace string) {
	initInstruments()
	if registrations == nil {
		return
	}
	registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}

// RecordQuery observes the duration of an order query since start.
func RecordQuery(ctx context.Context, start time.Time, failed bool) {
	initInstruments()
	if queryDuration == nil {
		return
	}
	queryDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Bool("failed", failed)))
}

// ObserveDBStats registers observable gauges reporting database/sql pool
// usage for db.
func ObserveDBStats(db *sql.DB, dialect string) error {
	if db == nil {
		return nil
	}
	attrs := metric.WithAttributes(attribute.String("db_dialect", dialect))
	meter := otel.Meter(meterName)
	open, err := meter.Int64ObservableGauge("orderkeeper_db_connections_open",
		metric.WithDescription("Established connections, in use and idle"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	inUse, err := meter.Int64ObservableGauge("orderkeeper_db_connections_in_use",
		metric.WithDescription("Connections currently in use"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := db.Stats()
		o.ObserveInt64(open, int64(stats.OpenConnections), attrs)
		o.ObserveInt64(inUse, int64(stats.InUse), attrs)
		return nil
	}, open, inUse)
	return err
}
