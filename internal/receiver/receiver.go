// Package receiver ingests simulator telemetry datagrams over UDP.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// DefaultLivenessTimeout is how long without any datagram before the producer counts as gone.
const DefaultLivenessTimeout = 2 * time.Second

// Stats is a point-in-time view of the receiver counters.
type Stats struct {
	Packets     uint64
	Valid       uint64
	Malformed   uint64
	Coalesced   uint64
	LastSeenAge time.Duration
	Connected   bool
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Receiver) { r.log = l }
}

// WithSampledLogger sets the rate-limited logger used for malformed datagrams.
func WithSampledLogger(l zerolog.Logger) Option {
	return func(r *Receiver) { r.soft = l }
}

// WithLivenessTimeout overrides DefaultLivenessTimeout for Stats.Connected.
func WithLivenessTimeout(d time.Duration) Option {
	return func(r *Receiver) { r.liveness = d }
}

// Receiver reads datagrams on a background goroutine and keeps only the newest
// decoded packet until the next Poll.
type Receiver struct {
	conn     net.PacketConn
	log      *slog.Logger
	soft     zerolog.Logger
	liveness time.Duration
	bufSize  int

	mu      sync.Mutex
	pending *core.Packet

	packets   atomic.Uint64
	valid     atomic.Uint64
	malformed atomic.Uint64
	coalesced atomic.Uint64
	lastSeen  atomic.Int64 // unix nanos, 0 = never

	closeOnce sync.Once
	done      chan struct{}
	now       func() time.Time
}

func newReceiver(opts ...Option) *Receiver {
	r := &Receiver{
		log:      slog.Default(),
		soft:     zerolog.Nop(),
		liveness: DefaultLivenessTimeout,
		bufSize:  4096,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Listen binds the UDP socket and starts the reader goroutine.
// The socket is closed when ctx is cancelled or Close is called.
func Listen(ctx context.Context, cfg config.ReceiverConfig, opts ...Option) (*Receiver, error) {
	r := newReceiver(opts...)
	if cfg.BufferSize > 0 {
		r.bufSize = cfg.BufferSize
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind telemetry socket %s: %w", addr, err)
	}
	r.conn = conn

	go r.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close()
		case <-r.done:
		}
	}()

	r.log.Info("Listening for telemetry", "addr", conn.LocalAddr().String())
	return r, nil
}

// Addr returns the bound local address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *Receiver) readLoop() {
	defer close(r.done)

	buf := make([]byte, r.bufSize)
	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.soft.Warn().Err(err).Msg("telemetry read failed")
			continue
		}
		r.handle(buf[:n])
	}
}

// handle accounts for one datagram and publishes it to the mailbox when valid.
func (r *Receiver) handle(data []byte) {
	r.packets.Add(1)
	r.lastSeen.Store(r.now().UnixNano())

	p, err := Decode(data)
	if err != nil {
		r.malformed.Add(1)
		r.soft.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed datagram")
		return
	}
	r.valid.Add(1)

	r.mu.Lock()
	if r.pending != nil {
		r.coalesced.Add(1)
	}
	r.pending = p
	r.mu.Unlock()
}

// Poll returns the newest packet received since the previous call. It never blocks.
func (r *Receiver) Poll() (*core.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.pending
	r.pending = nil
	return p, p != nil
}

// LastSeen is the arrival time of the last datagram, valid or not.
func (r *Receiver) LastSeen() time.Time {
	ns := r.lastSeen.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stats returns the current counters.
func (r *Receiver) Stats() Stats {
	s := Stats{
		Packets:   r.packets.Load(),
		Valid:     r.valid.Load(),
		Malformed: r.malformed.Load(),
		Coalesced: r.coalesced.Load(),
	}
	if seen := r.LastSeen(); !seen.IsZero() {
		s.LastSeenAge = r.now().Sub(seen)
		s.Connected = s.LastSeenAge < r.liveness
	}
	return s
}

// Close closes the socket and waits for the reader goroutine to exit.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.conn == nil {
			close(r.done)
			return
		}
		err = r.conn.Close()
		<-r.done
	})
	return err
}
