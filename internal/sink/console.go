package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"dash0.com/encoder-udp-receiver/internal/throughput"
)

// ConsoleSink writes one human-readable line per event.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink creates a console sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink { return &ConsoleSink{w: w} }

// NewStdoutConsole returns a console sink that writes to os.Stdout.
func NewStdoutConsole() *ConsoleSink { return &ConsoleSink{w: os.Stdout} }

func (s *ConsoleSink) Sample(_ context.Context, o Observation) error {
	_, err := fmt.Fprintf(s.w, "%s | pulses: %6d | distance: %6.2f cm | timestamp: %8d ms\n",
		o.Sender, o.Sample.Pulses, o.Sample.Distance, o.Sample.Timestamp)

	return err
}

func (s *ConsoleSink) Failure(_ context.Context, f Failure) error {
	_, err := fmt.Fprintf(s.w, "%s | error: %s | reason: %s | payload: %s\n",
		f.Sender, f.Kind, oneLine(f.Reason), oneLine(f.Payload))

	return err
}

func (s *ConsoleSink) Rate(_ context.Context, r throughput.Rate) error {
	_, err := fmt.Fprintf(s.w, "rate: %s datagrams/s (%d datagrams in %.1fs)\n",
		r, r.Count, r.Elapsed().Seconds())

	return err
}

// oneLine keeps a diagnostic on a single output line.
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}

		return r
	}, s)
}
