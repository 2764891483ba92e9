package scheduler

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/receiver"
	"github.com/winghaptics/wwbridge/pkg/core"
)

var _ Source = (*receiver.Receiver)(nil)

type fakeSource struct {
	mu      sync.Mutex
	packets []*core.Packet
	seen    time.Time
}

// receive records a datagram that did not decode into a packet.
func (s *fakeSource) receive(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = at
}

func (s *fakeSource) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

func (s *fakeSource) push(p *core.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, p)
}

func (s *fakeSource) Poll() (*core.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.packets) == 0 {
		return nil, false
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, true
}

type call struct {
	kind  string
	frame uint64
	dt    time.Duration
}

type fakePipeline struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakePipeline) Process(p *core.Packet, now time.Time, dt time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"process", p.Frame, dt})
}

func (f *fakePipeline) Decay(now time.Time, dt time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"decay", 0, dt})
}

func (f *fakePipeline) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var testConfig = config.SchedulerConfig{
	ActiveInterval:  10 * time.Millisecond,
	IdleInterval:    time.Second,
	LivenessTimeout: 2 * time.Second,
}

func newTestScheduler() (*Scheduler, *fakeSource, *fakePipeline, *[]string) {
	src := &fakeSource{}
	pl := &fakePipeline{}
	var transitions []string
	hooks := Hooks{
		OnActive: func() { transitions = append(transitions, "active") },
		OnIdle:   func() { transitions = append(transitions, "idle") },
	}
	s := New(testConfig, src, pl, hooks, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, src, pl, &transitions
}

func TestScheduler_StartsIdle(t *testing.T) {
	s, _, pl, transitions := newTestScheduler()

	assert.Equal(t, Idle, s.State())
	assert.Equal(t, time.Second, s.Interval())

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Step(t0)
	s.Step(t0.Add(time.Second))

	assert.Empty(t, pl.calls, "idle ticks without packets do nothing")
	assert.Empty(t, *transitions)
}

func TestScheduler_PacketActivates(t *testing.T) {
	s, src, pl, transitions := newTestScheduler()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Step(t0)
	src.push(&core.Packet{Frame: 1})
	s.Step(t0.Add(time.Second))

	assert.Equal(t, Active, s.State())
	assert.Equal(t, 10*time.Millisecond, s.Interval())
	assert.Equal(t, []string{"active"}, *transitions)
	require.Len(t, pl.calls, 1)
	assert.Equal(t, call{"process", 1, 10 * time.Millisecond}, pl.calls[0], "idle gap is not integrated")
}

func TestScheduler_ActiveWithoutPacketDecays(t *testing.T) {
	s, src, pl, _ := newTestScheduler()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	src.push(&core.Packet{Frame: 1})
	s.Step(t0)
	s.Step(t0.Add(10 * time.Millisecond))
	s.Step(t0.Add(25 * time.Millisecond))

	assert.Equal(t, []call{
		{"process", 1, 10 * time.Millisecond},
		{"decay", 0, 10 * time.Millisecond},
		{"decay", 0, 15 * time.Millisecond},
	}, pl.calls)
}

func TestScheduler_LivenessTimeout(t *testing.T) {
	s, src, pl, transitions := newTestScheduler()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	src.push(&core.Packet{Frame: 1})
	s.Step(t0)

	s.Step(t0.Add(2 * time.Second))
	assert.Equal(t, Active, s.State(), "exactly at the timeout is still live")

	s.Step(t0.Add(2*time.Second + 10*time.Millisecond))
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, []string{"active", "idle"}, *transitions)

	n := pl.count()
	s.Step(t0.Add(4 * time.Second))
	assert.Equal(t, n, pl.count())

	src.push(&core.Packet{Frame: 2})
	s.Step(t0.Add(5 * time.Second))
	assert.Equal(t, Active, s.State())
	assert.Equal(t, []string{"active", "idle", "active"}, *transitions)
}

func TestScheduler_MalformedDatagramsKeepLinkAlive(t *testing.T) {
	s, src, pl, transitions := newTestScheduler()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	src.push(&core.Packet{Frame: 1})
	s.Step(t0)

	// only garbage for well past the liveness timeout
	var now time.Time
	for i := 1; i <= 10; i++ {
		now = t0.Add(time.Duration(i) * 500 * time.Millisecond)
		src.receive(now)
		s.Step(now)
		require.Equal(t, Active, s.State(), "datagram %d", i)
	}
	assert.Equal(t, []string{"active"}, *transitions)
	assert.Equal(t, "decay", pl.calls[len(pl.calls)-1].kind)

	s.Step(now.Add(2 * time.Second))
	assert.Equal(t, Active, s.State())

	s.Step(now.Add(2*time.Second + time.Millisecond))
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, []string{"active", "idle"}, *transitions)
}

func TestScheduler_ReceiverGarbageKeepsActive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := receiver.Listen(ctx, config.ReceiverConfig{Host: "127.0.0.1", Port: 0, BufferSize: 2048})
	require.NoError(t, err)
	defer r.Close()

	conn, err := net.Dial("udp", r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	cfg := testConfig
	cfg.LivenessTimeout = 300 * time.Millisecond
	s := New(cfg, r, &fakePipeline{}, Hooks{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err = conn.Write([]byte(`{"aircraft":"FA-18C_hornet","frame":1,"time":1.0}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s.Step(time.Now())
		return s.State() == Active
	}, 2*time.Second, 5*time.Millisecond)

	for i := uint64(1); i <= 10; i++ {
		time.Sleep(50 * time.Millisecond)
		_, err := conn.Write([]byte("not json"))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return r.Stats().Malformed == i }, time.Second, time.Millisecond)

		s.Step(time.Now())
		require.Equal(t, Active, s.State(), "after %d malformed datagrams", i)
	}

	require.Eventually(t, func() bool {
		s.Step(time.Now())
		return s.State() == Idle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_MalformedDatagramsDoNotActivate(t *testing.T) {
	s, src, pl, _ := newTestScheduler()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	src.receive(t0)
	s.Step(t0)

	assert.Equal(t, Idle, s.State())
	assert.Empty(t, pl.calls)
}

func TestScheduler_TickRate(t *testing.T) {
	s, _, _, _ := newTestScheduler()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i <= 10; i++ {
		s.Step(t0.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	assert.InDelta(t, 11.0, s.TickRate(), 0.01)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	pl := &fakePipeline{}
	cfg := testConfig
	cfg.IdleInterval = time.Millisecond
	cfg.ActiveInterval = time.Millisecond
	s := New(cfg, src, pl, Hooks{}, nil)

	src.push(&core.Packet{Frame: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return pl.count() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
