package device

import (
	"errors"
	"fmt"
	"os"
	"time"
)

type deadlineHandle struct {
	f       *os.File
	timeout time.Duration
}

// WithWriteDeadline wraps f so every Write fails with os.ErrDeadlineExceeded
// once it has blocked for longer than timeout. Files that cannot take a
// deadline are written without one. A timeout of zero returns f unchanged.
func WithWriteDeadline(f *os.File, timeout time.Duration) Handle {
	if timeout <= 0 {
		return f
	}
	return &deadlineHandle{f: f, timeout: timeout}
}

func (h *deadlineHandle) Write(report []byte) (int, error) {
	if err := h.f.SetWriteDeadline(time.Now().Add(h.timeout)); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		return 0, fmt.Errorf("setting write deadline on %s: %w", h.f.Name(), err)
	}
	return h.f.Write(report)
}

func (h *deadlineHandle) Close() error {
	return h.f.Close()
}
