package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"

	cfgpkg "dash0.com/encoder-udp-receiver/internal/config"
	"dash0.com/encoder-udp-receiver/internal/netinfo"
	otelsetup "dash0.com/encoder-udp-receiver/internal/otel"
	"dash0.com/encoder-udp-receiver/internal/receiver"
	"dash0.com/encoder-udp-receiver/internal/sink"
	"dash0.com/encoder-udp-receiver/internal/source"
)

const name = "dash0.com/encoder-udp-receiver"

func main() {
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

func run() (err error) {
	// Config
	readFlags := cfgpkg.RegisterFlags()

	flag.Parse()

	cfg, err := readFlags()
	if err != nil {
		return err
	}

	level, err := otelsetup.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	// Telemetry goes to stderr or a file; stdout carries the observations.
	var telemetryOut io.Writer = os.Stderr
	if cfg.TelemetryFile != "" {
		f, openErr := os.OpenFile(cfg.TelemetryFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if openErr != nil {
			return openErr
		}
		defer func() { err = errors.Join(err, f.Close()) }()

		telemetryOut = f
	}

	// Set up OpenTelemetry.
	otelShutdown, err := otelsetup.Setup(context.Background(), telemetryOut)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, otelShutdown(context.Background())) }()

	// Instance logger bridged to OTel.
	logger := otelsetup.NewLogger(name, level)
	slog.SetDefault(logger)

	// Derive a context canceled on SIGINT/SIGTERM for graceful shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(sigCtx, cfg, logger, os.Stdout, os.Stderr)
}

// serve binds the endpoint and runs one receiver session until ctx is done or
// the endpoint fails. Bind and receive faults are returned; cancellation is not.
func serve(ctx context.Context, cfg cfgpkg.Config, logger *slog.Logger, stdout, stderr io.Writer, dialOpts ...grpc.DialOption) error {
	fmt.Fprintf(stderr, "encoder receiver on %s, listening on %s (Ctrl+C to stop)\n",
		netinfo.LocalIP(ctx), cfg.ListenAddr)

	// Without this check a second receiver would bind the same port through SO_REUSEADDR.
	if cfg.Preflight {
		logger.Debug("Probing listen port", slog.String("listenAddr", cfg.ListenAddr))

		if err := source.PortAvailable(cfg.ListenAddr); err != nil {
			return err
		}
	}

	src, err := source.Open(ctx, source.Options{
		Addr:            cfg.ListenAddr,
		ReceiveTimeout:  cfg.ReceiveTimeout,
		MaxDatagramSize: cfg.MaxDatagramSize,
	})
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()

	var out sink.Sink = sink.NewConsoleSink(stdout)
	if cfg.OutputFormat == cfgpkg.FormatJSON {
		out = sink.NewJSONSink(stdout)
	}

	if cfg.ForwardEndpoint != "" {
		conn, dialErr := sink.DialOTLP(cfg.ForwardEndpoint, dialOpts...)
		if dialErr != nil {
			return errors.Join(dialErr, src.Close())
		}
		defer conn.Close()

		logger.Info("Forwarding to OTLP collector", slog.String("endpoint", cfg.ForwardEndpoint))

		fwd := sink.NewOTLPSink(collogspb.NewLogsServiceClient(conn), sink.OTLPOptions{
			Timeout:   cfg.ForwardTimeout,
			SessionID: sessionID,
			MaxQueue:  cfg.ForwardQueue,
			Logger:    logger,
		})
		defer closeForwarder(fwd, cfg.ForwardTimeout, logger)

		out = sink.Multi{out, fwd}
	}

	sess, err := receiver.New(cfg, src, logger, receiver.WithID(sessionID), receiver.WithSink(out))
	if err != nil {
		return errors.Join(err, src.Close())
	}

	err = sess.Run(ctx)

	st := sess.Stats()
	fmt.Fprintf(stderr, "receiver stopped: %d datagrams, %d samples, %d malformed, %d missing-field\n",
		st.Received, st.Decoded, st.Malformed, st.MissingField)

	return err
}

// closeForwarder flushes queued records, giving up after one export timeout.
func closeForwarder(fwd *sink.OTLPSink, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := fwd.Close(ctx); err != nil {
		logger.Warn("Forwarder did not drain before shutdown", slog.String("err", err.Error()))
	}

	st := fwd.Stats()
	logger.Info("Forwarding stopped",
		slog.Uint64("exported", st.Exported),
		slog.Uint64("dropped", st.Dropped),
		slog.Uint64("failed", st.Failed),
	)
}
