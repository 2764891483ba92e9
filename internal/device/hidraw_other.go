//go:build !linux || !cgo

package device

import (
	"fmt"
	"time"

	"github.com/winghaptics/wwbridge/internal/config"
)

// Hidraw is unavailable on this platform; every Open fails with ErrNotFound.
type Hidraw struct{}

// NewHidraw returns the stub transport.
func NewHidraw(time.Duration) *Hidraw {
	return &Hidraw{}
}

// Enumerate always returns an empty list.
func (h *Hidraw) Enumerate() ([]Info, error) {
	return nil, nil
}

// Open always fails.
func (h *Hidraw) Open(spec config.DeviceSpec) (Handle, error) {
	return nil, fmt.Errorf("%w: %s (hidraw requires linux with cgo)", ErrNotFound, spec.String())
}
