package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/zuauth"
	"github.com/MrEthical07/zuauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() zuauth.MetricsSnapshot
	AuditDropped() uint64
}

// postureSource is implemented by [zuauth.Engine].
type postureSource interface {
	SecurityReport() zuauth.SecurityReport
}

type histogramInstruments struct {
	id      zuauth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter observes engine snapshots on every collection cycle.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[zuauth.MetricID]metric.Int64ObservableCounter
	histograms   []histogramInstruments
	auditDropped metric.Int64ObservableCounter

	// nil unless source implements postureSource.
	posture      metric.Int64ObservableGauge
	lintWarnings metric.Int64ObservableGauge
}

func NewOTelExporter(meter metric.Meter, engine *zuauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[zuauth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	counter := func(name, help string) (metric.Int64ObservableCounter, error) {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", name, err)
		}
		observables = append(observables, ins)
		return ins, nil
	}
	gauge := func(name, help string) (metric.Int64ObservableGauge, error) {
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("create observable gauge %s: %w", name, err)
		}
		observables = append(observables, ins)
		return ins, nil
	}

	for _, def := range internaldefs.CounterDefs {
		ins, err := counter(def.Name, def.Help)
		if err != nil {
			return nil, err
		}
		e.counters[def.ID] = ins
	}

	for _, def := range internaldefs.HistogramDefs {
		h := histogramInstruments{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			ins, err := gauge(def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.")
			if err != nil {
				return nil, err
			}
			h.buckets[i] = ins
		}
		ins, err := gauge(def.Name+"_count", "Histogram total sample count.")
		if err != nil {
			return nil, err
		}
		h.count = ins
		e.histograms = append(e.histograms, h)
	}

	var err error
	if e.auditDropped, err = counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp); err != nil {
		return nil, err
	}

	if _, ok := source.(postureSource); ok {
		if e.posture, err = gauge(internaldefs.PostureName, internaldefs.PostureHelp); err != nil {
			return nil, err
		}
		if e.lintWarnings, err = gauge(internaldefs.LintWarningsName, internaldefs.LintWarningsHelp); err != nil {
			return nil, err
		}
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snapshot.Counters[id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, ins := range h.buckets {
			o.ObserveInt64(ins, int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.posture != nil {
		report := e.source.(postureSource).SecurityReport()
		o.ObserveInt64(e.posture, 1, metric.WithAttributes(postureAttributes(report)...))
		o.ObserveInt64(e.lintWarnings, int64(len(report.Warnings)))
	}
	return nil
}

func postureAttributes(r zuauth.SecurityReport) []attribute.KeyValue {
	labels := internaldefs.PostureLabels(r)
	out := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		out[i] = attribute.String(l.Name, l.Value)
	}
	return out
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
