package core

import (
	"errors"
	"fmt"
)

// Protocol selects how the encoder accumulates distance
type Protocol uint8

const (
	// ForwardOnly accumulates distance only while velocity is positive
	ForwardOnly Protocol = 0
	// ForwardAndBackward accumulates distance in both directions
	ForwardAndBackward Protocol = 1
)

// Pins holds the pin assignment of every input and output the firmware uses
type Pins struct {
	EncoderA     GPIOPin // Encoder channel A (rising edge interrupt)
	EncoderB     GPIOPin // Encoder channel B (rising edge interrupt)
	ZeroPosition GPIOPin // Trigger input that resets distance
	Reward       GPIOPin // Trigger output pulsed on a distance limit
	Enable       GPIOPin // Enable/disable input gating the analog output
	GainUp       GPIOPin // Gain up input
	GainDown     GPIOPin // Gain down input
	GainReport   GPIOPin // Output pulsed when the gain target changes
}

// Options holds every recognized configuration value of the controller.
// DefaultOptions mirrors the values the rig was calibrated with.
type Options struct {
	// Distance reset thresholds (mm)
	ForwardDistanceMM  float64
	BackwardDistanceMM float64
	Protocol           Protocol

	// Velocity filter
	FilterOn       bool    // Sliding average on the velocity output
	VariableWindow bool    // Shrink the window as speed approaches MaxVelocity
	LowSpeedMillis float64 // Averaging duration at low speed (ms)
	UpdateMicros   float64 // Nominal sample cadence (µs)
	MinBins        int     // Window size at MaxVelocity when VariableWindow is set
	MaxVelocity    float64 // Velocity (mm/s) that maps to MaxVolts
	MaxVolts       float64 // Voltage above offset reached at MaxVelocity
	MinVolts       float64 // Lowest voltage relative to offset, non-positive
	OffsetVolts    float64 // Output voltage at zero velocity

	// Encoder
	DualTrigger     bool    // Use edges on both A and B
	TimeoutMicros   uint32  // Silence after which velocity is forced to zero
	NMPerCount      float64 // Belt travel per A-to-A cycle (nm)
	PhaseFactor     float64 // A-to-B fraction of a cycle moving forwards
	PhaseFactorBack float64 // B-to-A fraction of a cycle moving backwards

	// Analog output
	MaxDACVolts float64
	MaxDACCode  uint32

	// Gain control
	GainControl       bool
	GainUp            float64
	GainDown          float64
	GainDefault       float64
	GainZero          float64
	MillisPerUnitGain float64
	GainReportMillis  uint32

	// Triggers
	TriggerMillis uint32 // Reward pulse width
	ZeroOnTrigger bool   // Reset distance on a zero-position rising edge
	InvertEnable  bool   // Enable input is active low

	Pins Pins
}

// DefaultOptions returns the options the treadmill was calibrated with
func DefaultOptions() Options {
	return Options{
		ForwardDistanceMM:  1200,
		BackwardDistanceMM: -100,
		Protocol:           ForwardAndBackward,

		FilterOn:       true,
		VariableWindow: false,
		LowSpeedMillis: 3,
		UpdateMicros:   250,
		MinBins:        1,
		MaxVelocity:    1000,
		MaxVolts:       2.5,
		MinVolts:       0,
		OffsetVolts:    0,

		DualTrigger:     true,
		TimeoutMicros:   50000,
		NMPerCount:      164381,
		PhaseFactor:     0.24625,
		PhaseFactorBack: 0.25,

		MaxDACVolts: 3.3,
		MaxDACCode:  4095,

		GainControl:       false,
		GainUp:            2,
		GainDown:          0,
		GainDefault:       1,
		GainZero:          0,
		MillisPerUnitGain: 50,
		GainReportMillis:  50,

		TriggerMillis: 50,
		ZeroOnTrigger: true,
		InvertEnable:  false,

		Pins: Pins{
			EncoderA:     0,
			EncoderB:     1,
			GainReport:   2,
			ZeroPosition: 6,
			GainUp:       7,
			GainDown:     8,
			Reward:       14,
			Enable:       15,
		},
	}
}

// Validate checks ranges and pin conflicts
func (o *Options) Validate() error {
	if o.ForwardDistanceMM <= 0 {
		return fmt.Errorf("forward distance must be positive, got %g", o.ForwardDistanceMM)
	}
	if o.BackwardDistanceMM >= 0 {
		return fmt.Errorf("backward distance must be negative, got %g", o.BackwardDistanceMM)
	}
	if o.Protocol != ForwardOnly && o.Protocol != ForwardAndBackward {
		return fmt.Errorf("unknown protocol %d", o.Protocol)
	}
	if o.MaxVelocity <= 0 {
		return errors.New("max velocity must be positive")
	}
	if o.MaxVolts <= 0 {
		return errors.New("max volts must be positive")
	}
	if o.MinVolts > 0 {
		return fmt.Errorf("min volts must not be positive, got %g", o.MinVolts)
	}
	if o.FilterOn {
		if o.LowSpeedMillis <= 0 || o.UpdateMicros <= 0 {
			return errors.New("filter durations must be positive")
		}
		if o.MinBins < 1 {
			return fmt.Errorf("min bins must be at least 1, got %d", o.MinBins)
		}
		if n := BinCount(o.LowSpeedMillis, o.UpdateMicros); o.MinBins > n {
			return fmt.Errorf("min bins %d exceeds window of %d bins", o.MinBins, n)
		}
	}
	if o.NMPerCount <= 0 || o.NMPerCount > MaxNMPerCount {
		return fmt.Errorf("nm per count must lie in (0, %d], got %g", MaxNMPerCount, o.NMPerCount)
	}
	if o.PhaseFactor < 0 || o.PhaseFactor > 1 || o.PhaseFactorBack < 0 || o.PhaseFactorBack > 1 {
		return errors.New("phase factors must lie in [0, 1]")
	}
	if o.TimeoutMicros == 0 {
		return errors.New("encoder timeout must be positive")
	}
	if o.MaxDACVolts <= 0 || o.MaxDACCode == 0 {
		return errors.New("DAC range must be positive")
	}
	if o.GainControl && o.MillisPerUnitGain < 0 {
		return errors.New("gain ramp rate must not be negative")
	}
	return o.checkPins()
}

// checkPins rejects two roles sharing one pin
func (o *Options) checkPins() error {
	type role struct {
		name string
		pin  GPIOPin
	}
	p := o.Pins
	roles := []role{
		{"encoder_a", p.EncoderA},
		{"encoder_b", p.EncoderB},
		{"reward", p.Reward},
		{"enable", p.Enable},
		{"zero_position", p.ZeroPosition},
	}
	if o.GainControl {
		roles = append(roles,
			role{"gain_up", p.GainUp},
			role{"gain_down", p.GainDown},
			role{"gain_report", p.GainReport})
	}
	seen := make(map[GPIOPin]string, len(roles))
	for _, r := range roles {
		if other, ok := seen[r.pin]; ok {
			return fmt.Errorf("pin %d assigned to both %s and %s", r.pin, other, r.name)
		}
		seen[r.pin] = r.name
	}
	return nil
}
