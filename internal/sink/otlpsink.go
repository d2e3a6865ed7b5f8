package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"dash0.com/encoder-udp-receiver/internal/otlp"
	"dash0.com/encoder-udp-receiver/internal/throughput"
)

const (
	scopeName = "dash0.com/encoder-udp-receiver/sink"

	// DefaultOTLPQueue is the forwarding buffer used when OTLPOptions.MaxQueue is unset.
	DefaultOTLPQueue = 256

	maxExportBatch = 64
)

var (
	// ErrQueueFull is returned when a record is dropped because the forwarder is behind.
	ErrQueueFull = errors.New("otlp sink: queue full")
	// ErrSinkClosed is returned for records offered after Close.
	ErrSinkClosed = errors.New("otlp sink: closed")
)

// DialOTLP opens a client connection to an OTLP/gRPC collector.
func DialOTLP(endpoint string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	return grpc.NewClient(endpoint, opts...)
}

// OTLPOptions configures NewOTLPSink.
type OTLPOptions struct {
	// Timeout bounds each export call. Zero means no bound.
	Timeout   time.Duration
	SessionID string
	MaxQueue  int
	Logger    *slog.Logger
}

// OTLPStats are forwarding totals.
type OTLPStats struct {
	Exported uint64
	Dropped  uint64
	Failed   uint64
}

// OTLPSink forwards events as OTLP log records. Sample, Failure and Rate only
// enqueue; a single worker exports in batches, so a slow collector never holds
// up the caller. Records offered while the queue is full are dropped and counted.
type OTLPSink struct {
	client   collogspb.LogsServiceClient
	timeout  time.Duration
	logger   *slog.Logger
	resource *resourcepb.Resource
	scope    *commonpb.InstrumentationScope

	in   chan *logspb.LogRecord
	stop chan struct{}
	done chan struct{}

	// exportCtx parents every export; Close cancels it when its deadline passes.
	exportCtx    context.Context
	cancelExport context.CancelFunc
	closeOnce    sync.Once

	exported atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// NewOTLPSink creates a forwarding sink and starts its export worker. Callers
// must Close it to flush what is still queued.
func NewOTLPSink(client collogspb.LogsServiceClient, opts OTLPOptions) *OTLPSink {
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = DefaultOTLPQueue
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &OTLPSink{
		client:  client,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		resource: &resourcepb.Resource{Attributes: []*commonpb.KeyValue{
			otlp.KVString("service.name", "encoder-udp-receiver"),
			otlp.KVString("receiver.session.id", opts.SessionID),
		}},
		scope:        &commonpb.InstrumentationScope{Name: scopeName},
		in:           make(chan *logspb.LogRecord, opts.MaxQueue),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		exportCtx:    ctx,
		cancelExport: cancel,
	}

	go s.run()

	return s
}

func (s *OTLPSink) Sample(_ context.Context, o Observation) error {
	return s.enqueue(&logspb.LogRecord{
		TimeUnixNano:         uint64(o.ReceivedAt.UnixNano()),
		ObservedTimeUnixNano: uint64(o.ReceivedAt.UnixNano()),
		SeverityNumber:       logspb.SeverityNumber_SEVERITY_NUMBER_INFO,
		SeverityText:         "INFO",
		Body:                 otlp.String("encoder sample"),
		Attributes: []*commonpb.KeyValue{
			otlp.KVString("net.peer.address", o.Sender),
			otlp.KVInt("encoder.pulses", o.Sample.Pulses),
			otlp.KVDouble("encoder.distance_cm", o.Sample.Distance),
			otlp.KVInt("encoder.timestamp_ms", o.Sample.Timestamp),
		},
	})
}

func (s *OTLPSink) Failure(_ context.Context, f Failure) error {
	return s.enqueue(&logspb.LogRecord{
		TimeUnixNano:         uint64(f.ReceivedAt.UnixNano()),
		ObservedTimeUnixNano: uint64(f.ReceivedAt.UnixNano()),
		SeverityNumber:       logspb.SeverityNumber_SEVERITY_NUMBER_WARN,
		SeverityText:         "WARN",
		Body:                 otlp.String("encoder decode failure"),
		Attributes: []*commonpb.KeyValue{
			otlp.KVString("net.peer.address", f.Sender),
			otlp.KVString("decode.kind", f.Kind.String()),
			otlp.KVString("decode.reason", f.Reason),
			otlp.KVString("decode.payload", f.Payload),
		},
	})
}

func (s *OTLPSink) Rate(_ context.Context, r throughput.Rate) error {
	return s.enqueue(&logspb.LogRecord{
		TimeUnixNano:         uint64(r.WindowEnd.UnixNano()),
		ObservedTimeUnixNano: uint64(r.WindowEnd.UnixNano()),
		SeverityNumber:       logspb.SeverityNumber_SEVERITY_NUMBER_INFO,
		SeverityText:         "INFO",
		Body:                 otlp.String("throughput"),
		Attributes: []*commonpb.KeyValue{
			otlp.KVInt("throughput.count", int64(r.Count)),
			otlp.KVDouble("throughput.elapsed_s", r.Elapsed().Seconds()),
			otlp.KVDouble("throughput.per_second", r.PerSecond),
		},
	})
}

// Stats returns a snapshot of the forwarding totals.
func (s *OTLPSink) Stats() OTLPStats {
	return OTLPStats{
		Exported: s.exported.Load(),
		Dropped:  s.dropped.Load(),
		Failed:   s.failed.Load(),
	}
}

// Close stops accepting records and waits for the worker to export what is
// queued. When ctx ends first, exports are canceled, whatever is left fails
// fast and is counted as failed, and ctx.Err() is returned.
func (s *OTLPSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.stop) })

	select {
	case <-s.done:
		s.cancelExport()
		return nil
	case <-ctx.Done():
		s.cancelExport()
		<-s.done

		return ctx.Err()
	}
}

func (s *OTLPSink) enqueue(rec *logspb.LogRecord) error {
	select {
	case <-s.stop:
		return ErrSinkClosed
	default:
	}

	select {
	case s.in <- rec:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

func (s *OTLPSink) run() {
	defer close(s.done)

	for {
		select {
		case rec := <-s.in:
			s.exportBatch(s.collect([]*logspb.LogRecord{rec}))
		case <-s.stop:
			for {
				batch := s.collect(nil)
				if len(batch) == 0 {
					return
				}

				s.exportBatch(batch)
			}
		}
	}
}

// collect appends whatever is already queued, up to one batch.
func (s *OTLPSink) collect(batch []*logspb.LogRecord) []*logspb.LogRecord {
	for len(batch) < maxExportBatch {
		select {
		case rec := <-s.in:
			batch = append(batch, rec)
		default:
			return batch
		}
	}

	return batch
}

func (s *OTLPSink) exportBatch(recs []*logspb.LogRecord) {
	ctx := s.exportCtx

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)

		defer cancel()
	}

	rejected, err := s.export(ctx, recs)
	if err != nil {
		s.failed.Add(uint64(rejected))
		s.exported.Add(uint64(int64(len(recs)) - rejected))
		s.logFailure(recs, err)

		return
	}

	s.exported.Add(uint64(len(recs)))
}

// export sends recs in one request and returns how many the collector did not accept.
func (s *OTLPSink) export(ctx context.Context, recs []*logspb.LogRecord) (int64, error) {
	resp, err := s.client.Export(ctx, &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			Resource: s.resource,
			ScopeLogs: []*logspb.ScopeLogs{{
				Scope:      s.scope,
				LogRecords: recs,
			}},
		}},
	})
	if err != nil {
		return int64(len(recs)), fmt.Errorf("otlp export: %w", err)
	}

	if rejected := resp.GetPartialSuccess().GetRejectedLogRecords(); rejected > 0 {
		rejected = min(rejected, int64(len(recs)))

		return rejected, fmt.Errorf("otlp export: %d record(s) rejected: %s", rejected, resp.GetPartialSuccess().GetErrorMessage())
	}

	return 0, nil
}

func (s *OTLPSink) logFailure(recs []*logspb.LogRecord, err error) {
	first := recs[0]
	sender, _ := otlp.ExtractAttrs("net.peer.address", first.GetAttributes(), s.scope.GetAttributes(), s.resource.GetAttributes())
	session, _ := otlp.ExtractAttrs("receiver.session.id", nil, s.scope.GetAttributes(), s.resource.GetAttributes())

	s.logger.Warn("OTLP export failed",
		slog.Int("records", len(recs)),
		slog.String("session_id", session),
		slog.String("first_sender", sender),
		slog.String("first_body", otlp.AnyToString(first.GetBody())),
		slog.String("err", err.Error()),
	)
}
