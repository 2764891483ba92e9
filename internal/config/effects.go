package config

import (
	"github.com/spf13/viper"

	"github.com/winghaptics/wwbridge/pkg/core"
)

// PulseConfig is a one-shot effect with a fixed peak.
type PulseConfig struct {
	Envelope core.Envelope
	Peak     float64
}

// ScaledPulseConfig is a one-shot effect whose peak scales with an input magnitude.
type ScaledPulseConfig struct {
	Envelope core.Envelope
	Gain     float64
	Min      float64
	Max      float64
}

// ReleaseConfig is the weapon release pulse. UnknownPeak is used when the store weight is unknown.
type ReleaseConfig struct {
	ScaledPulseConfig
	UnknownPeak float64
}

// WobbleConfig shapes the ground roll effect.
type WobbleConfig struct {
	Deadband   float64 // G below which nothing is felt
	Saturation float64 // G at which the effect is full
	Floor      float64 // intensity just above the deadband
}

// AoaConfig shapes the angle of attack buffet.
type AoaConfig struct {
	Onset            float64
	Full             float64
	SuppressOnGround bool
}

// EffectsConfig holds every tunable of the effect engine.
type EffectsConfig struct {
	Gun          PulseConfig
	Release      ReleaseConfig
	Wobble       WobbleConfig
	TransitLevel float64
	Clunk        PulseConfig
	Aoa          AoaConfig
	Impact       ScaledPulseConfig
	// ContinuousGrace is how many ticks without data a continuous effect survives.
	ContinuousGrace int
}

func envelope(prefix string) core.Envelope {
	return core.Envelope{
		Attack:  viper.GetDuration(prefix + ".attack"),
		Sustain: viper.GetDuration(prefix + ".sustain"),
		Decay:   viper.GetDuration(prefix + ".decay"),
	}
}

// GetEffectsConfig returns the effect engine configuration.
func GetEffectsConfig() EffectsConfig {
	return EffectsConfig{
		Gun: PulseConfig{
			Envelope: envelope("effects.gun"),
			Peak:     viper.GetFloat64("effects.gun.peak"),
		},
		Release: ReleaseConfig{
			ScaledPulseConfig: ScaledPulseConfig{
				Envelope: envelope("effects.release"),
				Gain:     viper.GetFloat64("effects.release.gainPerKg"),
				Min:      viper.GetFloat64("effects.release.min"),
				Max:      viper.GetFloat64("effects.release.max"),
			},
			UnknownPeak: viper.GetFloat64("effects.release.unknownPeak"),
		},
		Wobble: WobbleConfig{
			Deadband:   viper.GetFloat64("effects.wobble.deadband"),
			Saturation: viper.GetFloat64("effects.wobble.saturation"),
			Floor:      viper.GetFloat64("effects.wobble.floor"),
		},
		TransitLevel: viper.GetFloat64("effects.transit.level"),
		Clunk: PulseConfig{
			Envelope: envelope("effects.clunk"),
			Peak:     viper.GetFloat64("effects.clunk.peak"),
		},
		Aoa: AoaConfig{
			Onset:            viper.GetFloat64("effects.aoa.onset"),
			Full:             viper.GetFloat64("effects.aoa.full"),
			SuppressOnGround: viper.GetBool("effects.aoa.suppressOnGround"),
		},
		Impact: ScaledPulseConfig{
			Envelope: envelope("effects.impact"),
			Gain:     viper.GetFloat64("effects.impact.gain"),
			Min:      viper.GetFloat64("effects.impact.min"),
			Max:      viper.GetFloat64("effects.impact.max"),
		},
		ContinuousGrace: viper.GetInt("effects.continuousGrace"),
	}
}
