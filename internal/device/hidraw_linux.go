//go:build linux && cgo

package device

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jochenvg/go-udev"

	"github.com/winghaptics/wwbridge/internal/config"
)

// Hidraw opens WinWing devices through their /dev/hidraw nodes, located with udev.
type Hidraw struct {
	u            udev.Udev
	writeTimeout time.Duration
}

// NewHidraw returns the udev backed transport. Each report write is bounded
// by writeTimeout, zero means unbounded.
func NewHidraw(writeTimeout time.Duration) *Hidraw {
	return &Hidraw{writeTimeout: writeTimeout}
}

// Enumerate lists every initialized hidraw node with its HID ids.
func (h *Hidraw) Enumerate() ([]Info, error) {
	e := h.u.NewEnumerate()
	if err := e.AddMatchSubsystem("hidraw"); err != nil {
		return nil, fmt.Errorf("udev match subsystem: %w", err)
	}
	if err := e.AddMatchIsInitialized(); err != nil {
		return nil, fmt.Errorf("udev match initialized: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("udev enumerate: %w", err)
	}

	var out []Info
	for _, d := range devices {
		parent := d.ParentWithSubsystemDevtype("hid", "")
		if parent == nil {
			continue
		}
		vid, pid, ok := parseHidID(parent.PropertyValue("HID_ID"))
		if !ok {
			continue
		}
		out = append(out, Info{
			Path:      d.Devnode(),
			Name:      parent.PropertyValue("HID_NAME"),
			VendorID:  vid,
			ProductID: pid,
		})
	}
	return out, nil
}

// Open finds the first node matching the spec's vendor and product id.
func (h *Hidraw) Open(spec config.DeviceSpec) (Handle, error) {
	infos, err := h.Enumerate()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.VendorID != spec.VendorID || info.ProductID != spec.ProductID {
			continue
		}
		f, err := os.OpenFile(info.Path, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", info.Path, err)
		}
		return WithWriteDeadline(f, h.writeTimeout), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, spec.String())
}

// parseHidID reads the udev HID_ID property, e.g. "0003:00004098:0000BF05".
func parseHidID(s string) (vid, pid uint16, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	p, err := strconv.ParseUint(parts[2], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint16(v), uint16(p), true
}
