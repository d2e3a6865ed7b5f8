// Command encoder-sim emulates the wheel encoder node: it sends one JSON
// datagram per tick to the receiver.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dash0.com/encoder-udp-receiver/internal/decode"
)

// Wheel geometry of the reference node.
const (
	wheelCircumferenceCM = 20.0
	pulsesPerRevolution  = 4000.0
)

type simConfig struct {
	Target         string
	Interval       time.Duration
	PulsesPerTick  int64
	MalformedEvery int
	Count          int
}

func registerFlags() func() (simConfig, error) {
	target := flag.String("target", "127.0.0.1:8888", "Receiver UDP address")
	interval := flag.Duration("interval", 100*time.Millisecond, "Send interval")
	perTick := flag.Int64("pulsesPerTick", 40, "Pulses added per send")
	malformed := flag.Int("malformedEvery", 0, "Send a garbage datagram every N sends (0 = never)")
	count := flag.Int("count", 0, "Stop after N datagrams (0 = until interrupted)")

	return func() (simConfig, error) {
		cfg := simConfig{
			Target:         *target,
			Interval:       *interval,
			PulsesPerTick:  *perTick,
			MalformedEvery: *malformed,
			Count:          *count,
		}

		var errs []error
		if cfg.Interval <= 0 {
			errs = append(errs, fmt.Errorf("interval must be positive, got %s", cfg.Interval))
		}

		if cfg.MalformedEvery < 0 {
			errs = append(errs, fmt.Errorf("malformedEvery must not be negative, got %d", cfg.MalformedEvery))
		}

		if cfg.Count < 0 {
			errs = append(errs, fmt.Errorf("count must not be negative, got %d", cfg.Count))
		}

		return cfg, errors.Join(errs...)
	}
}

// node holds the emulated encoder state between sends.
type node struct {
	cfg    simConfig
	start  time.Time
	pulses int64
	sent   int
}

func newNode(cfg simConfig, start time.Time) *node { return &node{cfg: cfg, start: start} }

// next advances the encoder and returns the datagram for time now.
func (n *node) next(now time.Time) ([]byte, error) {
	n.sent++

	if n.cfg.MalformedEvery > 0 && n.sent%n.cfg.MalformedEvery == 0 {
		return []byte(`{"encoder": {"pulses": ` + "\xff"), nil
	}

	n.pulses += n.cfg.PulsesPerTick

	return decode.Encode(decode.Sample{
		Pulses:    n.pulses,
		Distance:  math.Round(float64(n.pulses)*wheelCircumferenceCM/pulsesPerRevolution*100) / 100,
		Timestamp: now.Sub(n.start).Milliseconds(),
	})
}

func main() {
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

func run() error {
	readFlags := registerFlags()

	flag.Parse()

	cfg, err := readFlags()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var d net.Dialer

	conn, err := d.DialContext(sigCtx, "udp", cfg.Target)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("Sending encoder datagrams",
		slog.String("target", cfg.Target),
		slog.Duration("interval", cfg.Interval),
	)

	return send(sigCtx, conn, newNode(cfg, time.Now()), cfg, logger)
}

// send writes one datagram per tick until ctx is done or Count is reached.
// Write errors (e.g. ICMP port unreachable while no receiver is bound) are
// logged and the node keeps sending.
func send(ctx context.Context, conn net.Conn, n *node, cfg simConfig, logger *slog.Logger) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopped", slog.Int("sent", n.sent))
			return nil
		case now := <-ticker.C:
			payload, err := n.next(now)
			if err != nil {
				return err
			}

			if _, err := conn.Write(payload); err != nil {
				logger.Warn("Send failed", slog.String("err", err.Error()))
			}

			if cfg.Count > 0 && n.sent >= cfg.Count {
				logger.Info("Done", slog.Int("sent", n.sent))
				return nil
			}
		}
	}
}
