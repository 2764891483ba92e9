package device

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/winghaptics/wwbridge/pkg/core"
)

// Sweep timing.
const (
	SweepFlashes   = 3
	SweepGap       = 300 * time.Millisecond
	SweepRampSteps = 20
	SweepRampStep  = 50 * time.Millisecond
)

// Writer is the part of Adapter the sweep needs.
type Writer interface {
	Write(leds core.LedOutputState, motors core.MotorOutputState) error
}

// Sweep flashes every LED, then ramps both motors up and back down, and
// leaves everything off. A failed write is logged and the sweep goes on; the
// failures are returned joined once it finishes. It stops early when ctx is done.
func Sweep(ctx context.Context, w Writer, on, off core.LedOutputState, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	stop := core.MotorOutputState{}

	var errs []error
	write := func(leds core.LedOutputState, motors core.MotorOutputState) {
		if err := w.Write(leds, motors); err != nil {
			log.Warn("Sweep write failed, continuing", "error", err)
			errs = append(errs, err)
		}
	}

	for range SweepFlashes {
		write(on, stop)
		if err := wait(ctx, SweepGap); err != nil {
			return err
		}
		write(off, stop)
		if err := wait(ctx, SweepGap); err != nil {
			return err
		}
	}

	levels := make([]float64, 0, 2*SweepRampSteps+1)
	for i := 0; i <= SweepRampSteps; i++ {
		levels = append(levels, float64(i)/SweepRampSteps)
	}
	for i := SweepRampSteps - 1; i >= 0; i-- {
		levels = append(levels, float64(i)/SweepRampSteps)
	}
	for _, l := range levels {
		write(off, core.MotorOutputState{Throttle: l, Joystick: l})
		if err := wait(ctx, SweepRampStep); err != nil {
			return err
		}
	}

	write(off, stop)
	return errors.Join(errs...)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
