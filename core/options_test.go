package core

import (
	"strings"
	"testing"
)

func TestDefaultOptionsValid(t *testing.T) {
	opts := DefaultOptions()
	if err := opts.Validate(); err != nil {
		t.Fatalf("default options invalid: %v", err)
	}
	opts.GainControl = true
	if err := opts.Validate(); err != nil {
		t.Fatalf("default options with gain control invalid: %v", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		errMsg string
	}{
		{"forward distance", func(o *Options) { o.ForwardDistanceMM = 0 }, "forward distance"},
		{"backward distance", func(o *Options) { o.BackwardDistanceMM = 10 }, "backward distance"},
		{"protocol", func(o *Options) { o.Protocol = 7 }, "protocol"},
		{"max velocity", func(o *Options) { o.MaxVelocity = 0 }, "max velocity"},
		{"min volts", func(o *Options) { o.MinVolts = 0.5 }, "min volts"},
		{"min bins", func(o *Options) { o.MinBins = 13 }, "exceeds window"},
		{"nm per count", func(o *Options) { o.NMPerCount = 0 }, "nm per count"},
		{"nm per count too large", func(o *Options) { o.NMPerCount = 3e6 }, "nm per count"},
		{"phase factor", func(o *Options) { o.PhaseFactor = 1.5 }, "phase factors"},
		{"timeout", func(o *Options) { o.TimeoutMicros = 0 }, "timeout"},
		{"dac range", func(o *Options) { o.MaxDACCode = 0 }, "DAC range"},
		{"pin conflict", func(o *Options) { o.Pins.Enable = o.Pins.ZeroPosition }, "enable and zero_position"},
		{"gain pin conflict", func(o *Options) {
			o.GainControl = true
			o.Pins.GainReport = o.Pins.Reward
		}, "reward and gain_report"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			err := opts.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err)
			}
		})
	}
}

func TestOptionsGainPinsIgnoredWhenOff(t *testing.T) {
	opts := DefaultOptions()
	opts.Pins.GainUp = opts.Pins.Reward
	if err := opts.Validate(); err != nil {
		t.Errorf("gain pins checked with gain control off: %v", err)
	}
}

func TestOptionsMinBinsIgnoredWithoutFilter(t *testing.T) {
	opts := DefaultOptions()
	opts.FilterOn = false
	opts.MinBins = 0
	if err := opts.Validate(); err != nil {
		t.Errorf("filter settings checked with filter off: %v", err)
	}
}
