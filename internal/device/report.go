package device

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/winghaptics/wwbridge/pkg/core"
)

// reportMagic follows the three byte prefix in every WinWing output report.
var reportMagic = [4]byte{0x00, 0x00, 0x03, 0x49}

// CommandOffset is the position of the command id in a report.
const CommandOffset = 7

// BuildReport lays out prefix, magic, command id and value in a zeroed report of size bytes.
func BuildReport(prefix []byte, size int, command byte, valueOffset int, value byte) ([]byte, error) {
	if len(prefix) != 3 {
		return nil, fmt.Errorf("report prefix must be 3 bytes, got %d", len(prefix))
	}
	if valueOffset <= CommandOffset || valueOffset >= size {
		return nil, fmt.Errorf("value offset %d outside report of %d bytes", valueOffset, size)
	}

	r := make([]byte, size)
	copy(r, prefix)
	copy(r[3:], reportMagic[:])
	r[CommandOffset] = command
	r[valueOffset] = value
	return r, nil
}

// EncodeValue converts an output level in [0,1] into the report value byte.
func EncodeValue(b core.DeviceBinding, level float64) byte {
	switch b.Kind {
	case core.OutputBit:
		if level > 0 {
			return 1 << b.Bit
		}
		return 0
	case core.OutputBrightness:
		if b.Switched {
			if level > 0 {
				return 255
			}
			return 0
		}
		level = max(lo.Clamp(level, 0, 1), b.Minimum)
	}

	scale := b.Scale
	if scale == 0 {
		scale = 1
	}
	return byte(lo.Clamp(math.Round(lo.Clamp(level, 0, 1)*255*scale), 0, 255))
}
