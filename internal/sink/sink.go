package sink

import (
	"context"
	"errors"
	"time"

	"dash0.com/encoder-udp-receiver/internal/decode"
	"dash0.com/encoder-udp-receiver/internal/throughput"
)

//go:generate mockgen -source=sink.go -destination=./mocks/mock_sink.go -package=mocks

// Observation is one successfully decoded datagram.
type Observation struct {
	Sender     string
	Sample     decode.Sample
	ReceivedAt time.Time
}

// Failure describes a datagram that could not be decoded.
type Failure struct {
	Sender     string
	Kind       decode.Kind
	Reason     string
	Payload    string // best-effort text of the raw bytes or the parsed value
	ReceivedAt time.Time
}

// Sink receives the observable stream: one Sample or Failure per datagram,
// plus a Rate whenever a throughput window closes.
type Sink interface {
	Sample(ctx context.Context, o Observation) error
	Failure(ctx context.Context, f Failure) error
	Rate(ctx context.Context, r throughput.Rate) error
}

// Multi fans every event out to all sinks and joins their errors.
type Multi []Sink

func (m Multi) Sample(ctx context.Context, o Observation) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Sample(ctx, o))
	}

	return errors.Join(errs...)
}

func (m Multi) Failure(ctx context.Context, f Failure) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Failure(ctx, f))
	}

	return errors.Join(errs...)
}

func (m Multi) Rate(ctx context.Context, r throughput.Rate) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Rate(ctx, r))
	}

	return errors.Join(errs...)
}
