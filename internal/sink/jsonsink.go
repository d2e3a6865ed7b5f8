package sink

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"dash0.com/encoder-udp-receiver/internal/decode"
	"dash0.com/encoder-udp-receiver/internal/throughput"
)

// Record types written by JSONSink.
const (
	TypeSample  = "sample"
	TypeFailure = "failure"
	TypeRate    = "rate"
)

// Record is the single-line JSON shape of every event.
type Record struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	Sender string    `json:"sender,omitempty"`

	*decode.Sample

	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Payload string `json:"payload,omitempty"`

	Count          uint64   `json:"count,omitempty"`
	ElapsedSeconds float64  `json:"elapsed_seconds,omitempty"`
	PerSecond      *float64 `json:"per_second,omitempty"`
}

// JSONSink writes events as single-line JSON to an io.Writer.
type JSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONSink creates a JSON sink writing to the provided writer.
func NewJSONSink(w io.Writer) *JSONSink { return &JSONSink{w: w} }

// NewStdoutJSON returns a JSON sink that writes to os.Stdout.
func NewStdoutJSON() *JSONSink { return &JSONSink{w: os.Stdout} }

func (s *JSONSink) Sample(_ context.Context, o Observation) error {
	sample := o.Sample

	return s.encode(Record{
		Type:   TypeSample,
		Time:   o.ReceivedAt,
		Sender: o.Sender,
		Sample: &sample,
	})
}

func (s *JSONSink) Failure(_ context.Context, f Failure) error {
	return s.encode(Record{
		Type:    TypeFailure,
		Time:    f.ReceivedAt,
		Sender:  f.Sender,
		Kind:    f.Kind.String(),
		Reason:  f.Reason,
		Payload: f.Payload,
	})
}

func (s *JSONSink) Rate(_ context.Context, r throughput.Rate) error {
	// one decimal, same precision as the console line
	perSecond := math.Round(r.PerSecond*10) / 10

	return s.encode(Record{
		Type:           TypeRate,
		Time:           r.WindowEnd,
		Count:          r.Count,
		ElapsedSeconds: r.Elapsed().Seconds(),
		PerSecond:      &perSecond,
	})
}

func (s *JSONSink) encode(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Encoder.Encode adds the trailing newline.
	return json.NewEncoder(s.w).Encode(rec)
}
