// Package device encodes output state into WinWing HID reports and writes them.
package device

import (
	"errors"
	"fmt"

	"github.com/winghaptics/wwbridge/internal/config"
)

// ErrNoDevices is returned by Open when no bound device could be opened.
var ErrNoDevices = errors.New("no output devices could be opened")

// ErrNotFound is returned by a Transport when the device is not attached.
var ErrNotFound = errors.New("device not found")

// Handle is an open device node.
type Handle interface {
	Write(report []byte) (int, error)
	Close() error
}

// Transport opens device handles.
type Transport interface {
	Open(spec config.DeviceSpec) (Handle, error)
}

// Info describes one attached HID device.
type Info struct {
	Path      string
	Name      string
	VendorID  uint16
	ProductID uint16
}

func (i Info) String() string {
	return fmt.Sprintf("%s %04X:%04X %s", i.Path, i.VendorID, i.ProductID, i.Name)
}

// Enumerator lists attached HID devices. The hidraw transport implements it.
type Enumerator interface {
	Enumerate() ([]Info, error)
}
