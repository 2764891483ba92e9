package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/pkg/core"
)

const instrumentationName = "github.com/winghaptics/wwbridge/internal/device"

// Defaults for the adapter timing options.
const (
	DefaultRefreshInterval = time.Second
	DefaultReopenInterval  = time.Second
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// WithRefreshInterval sets how often every report is resent regardless of changes.
func WithRefreshInterval(d time.Duration) Option {
	return func(a *Adapter) { a.refresh = d }
}

// WithReopenInterval sets the minimum time between reopen attempts of a lost device.
func WithReopenInterval(d time.Duration) Option {
	return func(a *Adapter) { a.reopen = d }
}

type deviceState struct {
	spec       config.DeviceSpec
	handle     Handle
	lastReopen time.Time
	failures   int
}

// Adapter owns the device handles and the last written report per output.
type Adapter struct {
	transport Transport
	log       *slog.Logger
	refresh   time.Duration
	reopen    time.Duration
	now       func() time.Time

	reportSize int
	bindings   []core.DeviceBinding
	prefixes   map[string][]byte
	devices    map[core.DeviceID]*deviceState
	order      []core.DeviceID

	mu          sync.Mutex
	cache       map[string][]byte
	lastRefresh time.Time
	writeErrors uint64

	written metric.Int64Counter
	failed  metric.Int64Counter
}

// NewAdapter validates the bindings against the device table. It does not open anything.
func NewAdapter(cfg config.DeviceConfig, transport Transport, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		transport:  transport,
		log:        slog.Default(),
		refresh:    DefaultRefreshInterval,
		reopen:     DefaultReopenInterval,
		now:        time.Now,
		reportSize: cfg.ReportSize,
		bindings:   cfg.Bindings,
		prefixes:   make(map[string][]byte),
		devices:    make(map[core.DeviceID]*deviceState),
		cache:      make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.reportSize == 0 {
		a.reportSize = config.DefaultReportSize
	}

	specs := make(map[core.DeviceID]config.DeviceSpec, len(cfg.Devices))
	for _, d := range cfg.Devices {
		specs[d.ID] = d
	}
	for _, b := range cfg.Bindings {
		spec, ok := specs[b.Device]
		if !ok {
			return nil, fmt.Errorf("binding %q references unknown device %q", b.Name, b.Device)
		}
		prefix, err := spec.Prefix(b.Kind)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", b.Name, err)
		}
		if _, err := BuildReport(prefix, a.reportSize, b.Command, b.ByteOffset, 0); err != nil {
			return nil, fmt.Errorf("binding %q: %w", b.Name, err)
		}
		a.prefixes[string(b.Device)+"/"+b.Name] = prefix
		if _, ok := a.devices[b.Device]; !ok {
			a.devices[b.Device] = &deviceState{spec: spec}
			a.order = append(a.order, b.Device)
		}
	}

	m := otel.Meter(instrumentationName)
	var err error
	a.written, err = m.Int64Counter("device.reports.written",
		metric.WithDescription("HID reports written"))
	if err != nil {
		return nil, fmt.Errorf("creating written counter: %w", err)
	}
	a.failed, err = m.Int64Counter("device.write.errors",
		metric.WithDescription("HID report write failures"))
	if err != nil {
		return nil, fmt.Errorf("creating error counter: %w", err)
	}

	return a, nil
}

func bindingKey(b core.DeviceBinding) string {
	return string(b.Device) + "/" + b.Name
}

// Open opens every bound device. It fails with ErrNoDevices, listing every
// attempted device, only when none could be opened.
func (a *Adapter) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var attempted []string
	opened := 0
	for _, id := range a.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := a.devices[id]
		if st.handle != nil {
			opened++
			continue
		}
		attempted = append(attempted, st.spec.String())

		h, err := a.transport.Open(st.spec)
		st.lastReopen = a.now()
		if err != nil {
			a.log.Warn("Device unavailable", "device", st.spec.String(), "error", err)
			continue
		}
		st.handle = h
		opened++
		a.log.Info("Device opened", "device", st.spec.String(), "name", st.spec.Name)
	}

	if opened == 0 {
		return fmt.Errorf("%w: tried %s", ErrNoDevices, strings.Join(attempted, ", "))
	}
	return nil
}

// Connected returns the ids of devices with an open handle.
func (a *Adapter) Connected() []core.DeviceID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []core.DeviceID
	for _, id := range a.order {
		if a.devices[id].handle != nil {
			out = append(out, id)
		}
	}
	return out
}

// WriteErrors returns the total number of failed report writes.
func (a *Adapter) WriteErrors() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writeErrors
}

// Write encodes the output state and writes every report that changed since
// the last write, or all of them once per refresh interval. Failures drop the
// device handle for a later reopen; the joined errors are returned for logging.
func (a *Adapter) Write(leds core.LedOutputState, motors core.MotorOutputState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	full := now.Sub(a.lastRefresh) >= a.refresh
	if full {
		a.lastRefresh = now
	}

	a.reopenLost(now)

	var errs []error
	for _, b := range a.bindings {
		level, ok := outputLevel(b, leds, motors)
		if !ok {
			continue
		}
		st := a.devices[b.Device]
		if st.handle == nil {
			continue
		}

		key := bindingKey(b)
		report, err := BuildReport(a.prefixes[key], a.reportSize, b.Command, b.ByteOffset, EncodeValue(b, level))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !full && bytes.Equal(a.cache[key], report) {
			continue
		}

		if err := a.writeReport(st, report); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.spec.String(), err))
			continue
		}
		a.cache[key] = report
	}
	return errors.Join(errs...)
}

// writeReport writes one report, dropping the handle on failure.
func (a *Adapter) writeReport(st *deviceState, report []byte) error {
	attrs := metric.WithAttributes(attribute.String("device", string(st.spec.ID)))

	_, err := st.handle.Write(report)
	if err == nil {
		st.failures = 0
		a.written.Add(context.Background(), 1, attrs)
		return nil
	}

	st.failures++
	a.writeErrors++
	a.failed.Add(context.Background(), 1, attrs)
	a.log.Warn("Device write failed, will reopen",
		"device", st.spec.String(), "consecutiveFailures", st.failures, "error", err)

	_ = st.handle.Close()
	st.handle = nil
	st.lastReopen = a.now()
	a.forget(st.spec.ID)
	return err
}

// reopenLost retries devices whose handle was dropped.
func (a *Adapter) reopenLost(now time.Time) {
	for _, id := range a.order {
		st := a.devices[id]
		if st.handle != nil || now.Sub(st.lastReopen) < a.reopen {
			continue
		}
		st.lastReopen = now
		h, err := a.transport.Open(st.spec)
		if err != nil {
			a.log.Debug("Device reopen failed", "device", st.spec.String(), "error", err)
			continue
		}
		st.handle = h
		a.forget(id)
		a.log.Info("Device reconnected", "device", st.spec.String())
	}
}

// forget drops cached reports so the device gets a full resend.
func (a *Adapter) forget(id core.DeviceID) {
	for _, b := range a.bindings {
		if b.Device == id {
			delete(a.cache, bindingKey(b))
		}
	}
}

func outputLevel(b core.DeviceBinding, leds core.LedOutputState, motors core.MotorOutputState) (float64, bool) {
	if b.Kind == core.OutputMotor {
		switch b.Name {
		case core.MotorThrottle:
			return motors.Throttle, true
		case core.MotorJoystick:
			return motors.Joystick, true
		}
		return 0, false
	}
	l, ok := leds.Get(b.Device, b.Name)
	return float64(l), ok
}

// Close switches every output off, best effort, and closes the handles.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, b := range a.bindings {
		st := a.devices[b.Device]
		if st.handle == nil {
			continue
		}
		report, err := BuildReport(a.prefixes[bindingKey(b)], a.reportSize, b.Command, b.ByteOffset, 0)
		if err != nil {
			continue
		}
		_, _ = st.handle.Write(report)
	}
	for _, id := range a.order {
		st := a.devices[id]
		if st.handle == nil {
			continue
		}
		if err := st.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.spec.String(), err))
		}
		st.handle = nil
	}
	clear(a.cache)
	return errors.Join(errs...)
}
