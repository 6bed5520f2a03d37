package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *goFactor.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() goFactor.MetricsSnapshot
	AuditDropped() uint64
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithAttributes adds attrs to every observation, for example the
// deployment or region of this engine.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(e *Exporter) { e.common = append(e.common, attrs...) }
}

type counterInstrument struct {
	id  goFactor.MetricID
	ins metric.Int64ObservableCounter
}

// histogramInstrument carries one cumulative gauge whose le attribute names
// the bucket, plus a total count gauge.
type histogramInstrument struct {
	id      goFactor.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine metrics through OpenTelemetry observable
// instruments. Values are read from the Source only when the SDK collects.
type Exporter struct {
	source       Source
	common       []attribute.KeyValue
	counters     []counterInstrument
	histograms   []histogramInstrument
	auditDropped metric.Int64ObservableCounter
	registration metric.Registration
}

// New registers the engine's instruments on meter.
func New(meter metric.Meter, engine *goFactor.Engine, opts ...Option) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine, opts...)
}

func NewFromSource(meter metric.Meter, source Source, opts ...Option) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	for _, opt := range opts {
		opt(e)
	}

	var observables []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, ins: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per le bucket."))
		if err != nil {
			return nil, fmt.Errorf("histogram buckets %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("histogram count %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramInstrument{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	common := metric.WithAttributes(e.common...)

	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snap.Counters[c.id]), common)
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, total := range cumulative {
			attrs := append(e.common[:len(e.common):len(e.common)], attribute.String("le", internaldefs.HistogramBoundLabels[i]))
			o.ObserveInt64(h.buckets, int64(total), metric.WithAttributes(attrs...))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]), common)
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()), common)
	return nil
}

// Close unregisters the collection callback. The instruments stay on the
// meter but report nothing further.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
