package receiver

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// MetricType enumerates session metric counters.
type MetricType int

const (
	MetricDatagramsReceived MetricType = iota
	MetricBytesReceived
	MetricSamplesDecoded
	MetricDecodeFailed
	MetricRateReports
	MetricSinkFailed
)

type metrics struct {
	DatagramsReceived otelmetric.Int64Counter
	BytesReceived     otelmetric.Int64Counter
	SamplesDecoded    otelmetric.Int64Counter
	DecodeFailed      otelmetric.Int64Counter
	RateReports       otelmetric.Int64Counter
	SinkFailed        otelmetric.Int64Counter
}

func newMetrics(meter otelmetric.Meter) (metrics, error) {
	var (
		m   metrics
		err error
	)

	if m.DatagramsReceived, err = meter.Int64Counter(
		"encoder.receiver.datagrams.received",
		otelmetric.WithDescription("The number of datagrams received on the listen endpoint"),
		otelmetric.WithUnit("{datagram}"),
	); err != nil {
		return m, err
	}

	if m.BytesReceived, err = meter.Int64Counter(
		"encoder.receiver.bytes.received",
		otelmetric.WithDescription("Payload bytes received on the listen endpoint"),
		otelmetric.WithUnit("By"),
	); err != nil {
		return m, err
	}

	if m.SamplesDecoded, err = meter.Int64Counter(
		"encoder.receiver.samples.decoded",
		otelmetric.WithDescription("The number of datagrams decoded into encoder samples"),
		otelmetric.WithUnit("{sample}"),
	); err != nil {
		return m, err
	}

	if m.DecodeFailed, err = meter.Int64Counter(
		"encoder.receiver.decode.failed",
		otelmetric.WithDescription("The number of datagrams that failed to decode, by kind"),
		otelmetric.WithUnit("{datagram}"),
	); err != nil {
		return m, err
	}

	if m.RateReports, err = meter.Int64Counter(
		"encoder.receiver.rate.reports",
		otelmetric.WithDescription("Number of throughput windows reported"),
		otelmetric.WithUnit("{report}"),
	); err != nil {
		return m, err
	}

	if m.SinkFailed, err = meter.Int64Counter(
		"encoder.receiver.sink.failed",
		otelmetric.WithDescription("Number of events the sink failed to publish"),
		otelmetric.WithUnit("{failure}"),
	); err != nil {
		return m, err
	}

	return m, nil
}

// IncrMetric increments the selected metric by n (if n > 0).
func (s *Session) IncrMetric(ctx context.Context, mt MetricType, n int64, attrs ...attribute.KeyValue) {
	if n <= 0 {
		return
	}

	opt := otelmetric.WithAttributes(attrs...)

	switch mt {
	case MetricDatagramsReceived:
		s.metrics.DatagramsReceived.Add(ctx, n, opt)
	case MetricBytesReceived:
		s.metrics.BytesReceived.Add(ctx, n, opt)
	case MetricSamplesDecoded:
		s.metrics.SamplesDecoded.Add(ctx, n, opt)
	case MetricDecodeFailed:
		s.metrics.DecodeFailed.Add(ctx, n, opt)
	case MetricRateReports:
		s.metrics.RateReports.Add(ctx, n, opt)
	case MetricSinkFailed:
		s.metrics.SinkFailed.Add(ctx, n, opt)
	}
}
