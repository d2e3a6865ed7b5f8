// Package receiver runs the datagram intake loop: receive, count, decode, report.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	cfgpkg "dash0.com/encoder-udp-receiver/internal/config"
	"dash0.com/encoder-udp-receiver/internal/decode"
	"dash0.com/encoder-udp-receiver/internal/sink"
	"dash0.com/encoder-udp-receiver/internal/source"
	"dash0.com/encoder-udp-receiver/internal/throughput"
)

const instrumentationName = "dash0.com/encoder-udp-receiver"

// ErrAlreadyRun is returned when Run is called on a session that has already run.
var ErrAlreadyRun = errors.New("receiver: session already run")

// State is the lifecycle position of a session.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats are running totals since the session started.
type Stats struct {
	Received     uint64
	Decoded      uint64
	Malformed    uint64
	MissingField uint64
	RateReports  uint64
	SinkErrors   uint64
}

// Session owns one endpoint, its throughput counter and the sink for its lifetime.
type Session struct {
	ID     string
	Cfg    cfgpkg.Config
	Logger *slog.Logger
	Tracer oteltrace.Tracer
	Meter  otelmetric.Meter

	metrics metrics

	endpoint source.Endpoint
	outSink  sink.Sink
	counter  *throughput.Counter
	nowFn    func() time.Time

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error

	received     atomic.Uint64
	decoded      atomic.Uint64
	malformed    atomic.Uint64
	missingField atomic.Uint64
	rateReports  atomic.Uint64
	sinkErrors   atomic.Uint64
}

// Option customizes a Session.
type Option func(*Session) error

// WithSink overrides the default stdout sink chosen from the output format.
func WithSink(s sink.Sink) Option {
	return func(sess *Session) error { sess.outSink = s; return nil }
}

// WithClock replaces time.Now for throughput windows.
func WithClock(now func() time.Time) Option {
	return func(sess *Session) error {
		if now == nil {
			return errors.New("receiver: nil clock")
		}

		sess.nowFn = now

		return nil
	}
}

// WithMeter records session metrics on m instead of the global meter provider.
func WithMeter(m otelmetric.Meter) Option {
	return func(sess *Session) error { sess.Meter = m; return nil }
}

// WithID sets the session id instead of a random one.
func WithID(id string) Option {
	return func(sess *Session) error { sess.ID = id; return nil }
}

// New builds a session around an already opened endpoint. The session takes
// ownership of the endpoint and closes it when Run returns. A nil logger means slog.Default().
func New(cfg cfgpkg.Config, endpoint source.Endpoint, logger *slog.Logger, opts ...Option) (*Session, error) {
	if endpoint == nil {
		return nil, errors.New("receiver: nil endpoint")
	}

	s := &Session{
		ID:       uuid.NewString(),
		Cfg:      cfg,
		Logger:   logger,
		Tracer:   otel.Tracer(instrumentationName),
		Meter:    otel.Meter(instrumentationName),
		endpoint: endpoint,
		nowFn:    time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	var err error
	if s.metrics, err = newMetrics(s.Meter); err != nil {
		return nil, err
	}

	if s.outSink == nil {
		switch cfg.OutputFormat {
		case cfgpkg.FormatJSON:
			s.outSink = sink.NewStdoutJSON()
		default:
			s.outSink = sink.NewStdoutConsole()
		}
	}

	if s.Logger == nil {
		s.Logger = slog.Default()
	}

	s.Logger = s.Logger.With(slog.String("session_id", s.ID))

	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Stats returns a snapshot of the running totals.
func (s *Session) Stats() Stats {
	return Stats{
		Received:     s.received.Load(),
		Decoded:      s.decoded.Load(),
		Malformed:    s.malformed.Load(),
		MissingField: s.missingField.Load(),
		RateReports:  s.rateReports.Load(),
		SinkErrors:   s.sinkErrors.Load(),
	}
}

// Run receives until ctx is canceled or the endpoint fails. Cancellation is
// observed each time a receive returns, so at most one receive timeout after
// ctx is done. The endpoint is closed exactly once before Run returns.
// A canceled run returns nil; a transport fault returns the *source.ReceiveError.
func (s *Session) Run(ctx context.Context) (err error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyRun
	}

	ctx, span := s.Tracer.Start(ctx, "receiver.Run", oteltrace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("listen.addr", addrString(s.endpoint.LocalAddr())),
	))
	defer span.End()

	defer func() {
		s.stop(ctx, err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	// Reports for a datagram already in hand still go out after cancellation.
	reportCtx := context.WithoutCancel(ctx)

	s.counter = throughput.New(s.Cfg.ReportInterval, s.nowFn())
	s.Logger.InfoContext(ctx, "receiver running",
		slog.String("listen_addr", addrString(s.endpoint.LocalAddr())),
		slog.Duration("report_interval", s.counter.Interval()),
	)

	if ctx.Err() != nil {
		return nil
	}

	for dg, recvErr := range source.Seq(s.endpoint) {
		if recvErr != nil {
			s.Logger.ErrorContext(ctx, "receive failed; stopping", slog.String("err", recvErr.Error()))
			return recvErr
		}

		switch dg.Kind {
		case source.KindData:
			s.handleDatagram(reportCtx, dg)
		case source.KindTimeout:
			s.checkThroughput(reportCtx, s.nowFn())
		}

		if ctx.Err() != nil {
			s.Logger.InfoContext(ctx, "cancellation observed; stopping")
			return nil
		}
	}

	return nil
}

func (s *Session) stop(ctx context.Context, cause error) {
	s.state.Store(int32(StateStopping))
	s.Logger.DebugContext(ctx, "receiver stopping", slog.Bool("fatal", cause != nil))

	if err := s.Close(); err != nil {
		s.Logger.WarnContext(ctx, "closing endpoint failed", slog.String("err", err.Error()))
	}

	s.state.Store(int32(StateStopped))

	st := s.Stats()
	s.Logger.InfoContext(ctx, "receiver stopped",
		slog.Uint64("received", st.Received),
		slog.Uint64("decoded", st.Decoded),
		slog.Uint64("malformed", st.Malformed),
		slog.Uint64("missing_field", st.MissingField),
	)
}

// Close releases the endpoint. Run calls it on every exit path; calling it
// again, or on a session that never ran, is safe.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.endpoint.Close() })
	return s.closeErr
}

func (s *Session) handleDatagram(ctx context.Context, dg source.Datagram) {
	ctx, span := s.Tracer.Start(ctx, "receiver.datagram")
	defer span.End()

	sender := addrString(dg.Sender)

	s.received.Add(1)
	s.IncrMetric(ctx, MetricDatagramsReceived, 1)
	s.IncrMetric(ctx, MetricBytesReceived, int64(len(dg.Payload)))

	if r, ok := s.counter.Update(s.nowFn()); ok {
		s.reportRate(ctx, r)
	}

	res := decode.Decode(dg.Payload)
	span.SetAttributes(
		attribute.String("net.peer.address", sender),
		attribute.Int("payload.size", len(dg.Payload)),
		attribute.String("decode.kind", res.Kind.String()),
	)

	var pubErr error

	switch res.Kind {
	case decode.KindOK:
		s.decoded.Add(1)
		s.IncrMetric(ctx, MetricSamplesDecoded, 1)

		pubErr = s.outSink.Sample(ctx, sink.Observation{
			Sender:     sender,
			Sample:     res.Sample,
			ReceivedAt: dg.ReceivedAt,
		})
	case decode.KindMalformedEncoding:
		s.malformed.Add(1)
		pubErr = s.reportFailure(ctx, dg, sender, res, decode.RenderRaw(dg.Payload))
	case decode.KindMissingField:
		s.missingField.Add(1)
		pubErr = s.reportFailure(ctx, dg, sender, res, decode.RenderPartial(res.Partial))
	}

	if pubErr != nil {
		s.sinkFailed(ctx, "datagram", pubErr)
	}
}

func (s *Session) reportFailure(ctx context.Context, dg source.Datagram, sender string, res decode.Result, payload string) error {
	s.IncrMetric(ctx, MetricDecodeFailed, 1, attribute.String("kind", res.Kind.String()))
	s.Logger.DebugContext(ctx, "decode failed",
		slog.String("sender", sender),
		slog.String("kind", res.Kind.String()),
		slog.String("err", res.Err.Error()),
	)

	return s.outSink.Failure(ctx, sink.Failure{
		Sender:     sender,
		Kind:       res.Kind,
		Reason:     res.Err.Error(),
		Payload:    payload,
		ReceivedAt: dg.ReceivedAt,
	})
}

func (s *Session) checkThroughput(ctx context.Context, now time.Time) {
	if r, ok := s.counter.Check(now); ok {
		s.reportRate(ctx, r)
	}
}

func (s *Session) reportRate(ctx context.Context, r throughput.Rate) {
	s.rateReports.Add(1)
	s.IncrMetric(ctx, MetricRateReports, 1)

	if err := s.outSink.Rate(ctx, r); err != nil {
		s.sinkFailed(ctx, "rate", err)
	}
}

func (s *Session) sinkFailed(ctx context.Context, event string, err error) {
	s.sinkErrors.Add(1)
	s.IncrMetric(ctx, MetricSinkFailed, 1, attribute.String("event", event))
	s.Logger.WarnContext(ctx, "sink publish failed",
		slog.String("event", event),
		slog.String("err", err.Error()),
		slog.String("sink", fmt.Sprintf("%T", s.outSink)),
	)
}

func addrString(a net.Addr) string {
	if ua, ok := a.(*net.UDPAddr); ok && ua == nil {
		return "unknown"
	}

	if a == nil {
		return "unknown"
	}

	return a.String()
}
