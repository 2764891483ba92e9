// Package monitor emits a periodic status line combining receiver, scheduler
// and bridge health.
package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/winghaptics/wwbridge/internal/bridge"
	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/internal/receiver"
	"github.com/winghaptics/wwbridge/internal/scheduler"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// Loop is the part of the scheduler the monitor reads.
type Loop interface {
	State() scheduler.State
	TickRate() float64
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Stats     func() receiver.Stats
	Loop      Loop
	Health    func() bridge.Health
	Publisher bridge.Publisher
	Logger    *slog.Logger
	Config    config.MonitorConfig
	Now       func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Interval returns the reporting period for the current scheduler state.
func (s *Service) Interval() time.Duration {
	if s.deps.Loop.State() == scheduler.Active {
		return s.deps.Config.ActiveInterval
	}
	return s.deps.Config.IdleInterval
}

// Status assembles the current bridge status.
func (s *Service) Status() core.BridgeStatus {
	st := s.deps.Stats()
	h := s.deps.Health()
	now := s.deps.Now()
	status := core.BridgeStatus{
		Time:        now,
		State:       s.deps.Loop.State().String(),
		Aircraft:    h.Aircraft,
		Packets:     st.Packets,
		Valid:       st.Valid,
		Malformed:   st.Malformed,
		Coalesced:   st.Coalesced,
		LastSeenAge: st.LastSeenAge,
		Connected:   st.Connected,
		TickRate:    s.deps.Loop.TickRate(),
		WriteErrors: h.WriteErrors,
		Motor:       h.Motor,
		Frame:       h.LastFrame,
	}
	if !h.LastAccepted.IsZero() {
		status.PacketAge = now.Sub(h.LastAccepted)
	}
	return status
}

// Line renders a status as a single human readable line.
func Line(st core.BridgeStatus) string {
	seen := "never"
	if st.Connected || st.LastSeenAge > 0 {
		seen = st.LastSeenAge.Round(time.Millisecond).String()
	}
	return fmt.Sprintf("%s | aircraft=%s frame=%d | packets=%d valid=%d malformed=%d coalesced=%d | last=%s | %.1f Hz | motor=%.2f | write errors=%d",
		st.State, st.Aircraft, st.Frame, st.Packets, st.Valid, st.Malformed, st.Coalesced, seen, st.TickRate, st.Motor, st.WriteErrors)
}

// Report logs and publishes one status sample.
func (s *Service) Report() core.BridgeStatus {
	st := s.Status()
	s.deps.Logger.Info(Line(st),
		"state", st.State,
		"connected", st.Connected,
		"tick_rate", st.TickRate,
	)
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Publish(dispatcher.TopicStatus, st); err != nil {
			s.deps.Logger.Warn("Failed to publish status", "error", err)
		}
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run()
	return nil
}

func (s *Service) run() {
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		close(s.done)
	}()

	s.deps.Logger.Debug("Starting status monitor")

	timer := time.NewTimer(s.Interval())
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
			s.Report()
			timer.Reset(s.Interval())
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
