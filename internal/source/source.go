// Package source owns the UDP endpoint the sensor node broadcasts to and turns
// it into a stream of datagrams, timeout wakeups and fatal receive faults.
package source

//go:generate mockgen -source=source.go -destination=./mocks/mock_source.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Kind classifies what a single Receive produced.
type Kind int

const (
	// KindData carries a payload and its sender.
	KindData Kind = iota
	// KindTimeout means the receive window elapsed with nothing to read.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Datagram is one receive outcome. Payload is owned by the caller.
type Datagram struct {
	Kind       Kind
	Payload    []byte
	Sender     *net.UDPAddr
	ReceivedAt time.Time
}

// Endpoint is what the receive loop consumes.
type Endpoint interface {
	// Receive blocks for at most the configured window. A timeout is reported as a
	// KindTimeout datagram with a nil error; any returned error is fatal.
	Receive() (Datagram, error)
	// Close releases the endpoint. It is idempotent.
	Close() error
	LocalAddr() net.Addr
}

// BindError is returned by Open when the endpoint cannot be created.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("bind %s: %v", e.Addr, e.Err) }

func (e *BindError) Unwrap() error { return e.Err }

// ReceiveError is a transport fault during receive. It ends the loop.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string { return fmt.Sprintf("receive: %v", e.Err) }

func (e *ReceiveError) Unwrap() error { return e.Err }

// Options configures Open.
type Options struct {
	Addr            string
	ReceiveTimeout  time.Duration
	MaxDatagramSize int
}

// Source is a bound UDP endpoint.
type Source struct {
	conn    *net.UDPConn
	timeout time.Duration
	buf     []byte

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

var _ Endpoint = (*Source)(nil)

// Open binds a UDP socket with address reuse enabled.
func Open(ctx context.Context, opts Options) (*Source, error) {
	if opts.ReceiveTimeout <= 0 {
		return nil, &BindError{Addr: opts.Addr, Err: errors.New("receive timeout must be positive")}
	}

	if opts.MaxDatagramSize <= 0 {
		return nil, &BindError{Addr: opts.Addr, Err: errors.New("max datagram size must be positive")}
	}

	lc := net.ListenConfig{Control: reuseAddr}

	pc, err := lc.ListenPacket(ctx, "udp", opts.Addr)
	if err != nil {
		return nil, &BindError{Addr: opts.Addr, Err: err}
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, &BindError{Addr: opts.Addr, Err: fmt.Errorf("unexpected packet conn %T", pc)}
	}

	return &Source{
		conn:    conn,
		timeout: opts.ReceiveTimeout,
		buf:     make([]byte, opts.MaxDatagramSize),
	}, nil
}

// Receive waits up to the receive timeout for one datagram. Datagrams larger
// than the buffer are truncated by the kernel.
func (s *Source) Receive() (Datagram, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return Datagram{}, &ReceiveError{Err: err}
	}

	n, addr, err := s.conn.ReadFromUDP(s.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Datagram{Kind: KindTimeout, ReceivedAt: time.Now()}, nil
		}

		return Datagram{}, &ReceiveError{Err: err}
	}

	return Datagram{
		Kind:       KindData,
		Payload:    bytes.Clone(s.buf[:n]),
		Sender:     addr,
		ReceivedAt: time.Now(),
	}, nil
}

// Close releases the socket. Only the first call closes; later calls return the same result.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
		s.closed.Store(true)
	})

	return s.closeErr
}

// Closed reports whether Close has run.
func (s *Source) Closed() bool { return s.closed.Load() }

// LocalAddr returns the bound address.
func (s *Source) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Seq yields receive outcomes from ep until the consumer stops or a fatal
// error has been yielded. Each call starts a fresh sequence over the same endpoint.
func Seq(ep Endpoint) iter.Seq2[Datagram, error] {
	return func(yield func(Datagram, error) bool) {
		for {
			dg, err := ep.Receive()
			if !yield(dg, err) || err != nil {
				return
			}
		}
	}
}

// PortAvailable binds addr without address reuse and releases it again. With
// SO_REUSEADDR set on the real endpoint a second listener would otherwise go unnoticed.
func PortAvailable(addr string) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}

	return pc.Close()
}
