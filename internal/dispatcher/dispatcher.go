package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Topics published by the bridge.
const (
	TopicFrame   = "frame"
	TopicSession = "session"
	TopicStatus  = "status"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Event is one published value. Payloads are treated as immutable by handlers.
type Event struct {
	Topic     string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type subscriber struct {
	name   string
	handle HandlerFunc
}

// Dispatcher fans events out to every handler registered for their topic.
type Dispatcher struct {
	logger Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	mu       sync.RWMutex
	handlers map[string][]subscriber
	buffers  map[string]chan Event
	closed   bool
	wg       sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string][]subscriber),
		buffers:  make(map[string]chan Event),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("handler", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a named handler for the topic. Several handlers may share a topic.
func (d *Dispatcher) Register(topic, name string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	id := topic + "/" + name
	handler := h

	if cfg.logged {
		handler = d.withLogging(id, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(id, cfg.bufferSize, cfg.blocking, handler)
	}

	d.mu.Lock()
	d.handlers[topic] = append(d.handlers[topic], subscriber{name: name, handle: handler})
	d.mu.Unlock()
}

// Publish builds an event for the topic and dispatches it.
func (d *Dispatcher) Publish(topic string, payload any) error {
	return d.Dispatch(Event{Topic: topic, Payload: payload, Timestamp: time.Now()})
}

// Dispatch hands the event to every handler of its topic. A topic without
// handlers is not an error. Handler and queue errors are joined.
func (d *Dispatcher) Dispatch(e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	var errs []error
	for _, s := range d.handlers[e.Topic] {
		if err := s.handle(e); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", e.Topic, s.name, err))
		}
	}
	return errors.Join(errs...)
}

// HasHandler returns true if any handler is registered for the topic.
func (d *Dispatcher) HasHandler(topic string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[topic]) > 0
}

// Close stops accepting events and waits for buffered handlers to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) withBuffer(id string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[id] = buffer
	d.mu.Unlock()

	attr := metric.WithAttributes(attribute.String("handler", id))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer {
			if err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "handler", id, "error", err)
			}
			d.processed.Add(context.Background(), 1, attr)
		}
	}()

	if blocking {
		return func(e Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, attr)
			return fmt.Errorf("queue full: %s", id)
		}
	}
}

func (d *Dispatcher) withLogging(id string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "handler", id)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "handler", id, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "handler", id, "duration", time.Since(start))
		}

		return err
	}
}
