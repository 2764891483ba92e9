package bridge

import (
	"fmt"
	"io"
	"sync"

	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/pkg/core"
)

// DebugPrinter returns a frame handler that prints every event and any motor
// change to w, one line each.
func DebugPrinter(w io.Writer) dispatcher.HandlerFunc {
	var (
		mu   sync.Mutex
		last core.MotorOutputState
	)
	return func(e dispatcher.Event) error {
		snap, ok := e.Payload.(core.FrameSnapshot)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}

		mu.Lock()
		defer mu.Unlock()

		for _, ev := range snap.Events {
			if ev.Kind() == core.KindLedChanged {
				continue
			}
			if _, err := fmt.Fprintf(w, "[%s] frame=%d %s\n",
				snap.Time.Format("15:04:05.000"), snap.Frame, core.DescribeEvent(ev)); err != nil {
				return err
			}
		}
		if snap.Motors != last {
			last = snap.Motors
			if _, err := fmt.Fprintf(w, "[%s] frame=%d motors throttle=%.2f joystick=%.2f effects=%d\n",
				snap.Time.Format("15:04:05.000"), snap.Frame, snap.Motors.Throttle, snap.Motors.Joystick, len(snap.Effects)); err != nil {
				return err
			}
		}
		return nil
	}
}
