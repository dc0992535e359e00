// Analog output through the registered DAC driver
package core

import (
	"fmt"
	"math"
)

// AnalogOut converts volts to DAC codes and writes them
type AnalogOut struct {
	maxDACVolts float64
	maxDACCode  uint32

	// LastCode is the last code the driver accepted
	LastCode uint32
	// WriteErrors counts failed driver writes
	WriteErrors uint32

	// pending is set while the code last asked for has not been written
	pending bool
}

// NewAnalogOut configures the DAC and writes the offset voltage
func NewAnalogOut(opts *Options) (*AnalogOut, error) {
	dac := MustDAC()
	if err := dac.Configure(); err != nil {
		return nil, fmt.Errorf("configure DAC: %w", err)
	}
	if max := dac.MaxValue(); opts.MaxDACCode > max {
		return nil, fmt.Errorf("DAC code range %d exceeds converter maximum %d", opts.MaxDACCode, max)
	}
	ao := &AnalogOut{
		maxDACVolts: opts.MaxDACVolts,
		maxDACCode:  opts.MaxDACCode,
	}
	if err := dac.WriteRaw(ao.VoltsToCode(opts.OffsetVolts)); err != nil {
		return nil, fmt.Errorf("write DAC offset: %w", err)
	}
	ao.LastCode = ao.VoltsToCode(opts.OffsetVolts)
	return ao, nil
}

// VoltsToCode maps volts onto [0, maxCode], rounding half up
func (ao *AnalogOut) VoltsToCode(volts float64) uint32 {
	code := math.Floor(volts*float64(ao.maxDACCode)/ao.maxDACVolts + 0.5)
	if !(code > 0) {
		return 0
	}
	if code > float64(ao.maxDACCode) {
		return ao.maxDACCode
	}
	return uint32(code)
}

// Loop writes volts when update is set, or while an earlier write is still
// pending.
func (ao *AnalogOut) Loop(update bool, volts float64) {
	if update || ao.pending {
		ao.Write(volts)
	}
}

// Hold keeps the output at volts, writing only when the converter holds
// another code or the last write failed.
func (ao *AnalogOut) Hold(volts float64) {
	if ao.pending || ao.LastCode != ao.VoltsToCode(volts) {
		ao.Write(volts)
	}
}

// Pending reports whether the last write failed and has not been retried
// successfully.
func (ao *AnalogOut) Pending() bool {
	return ao.pending
}

// Write converts and writes volts. Failures are counted, never returned. One
// event is recorded per run of consecutive failures.
func (ao *AnalogOut) Write(volts float64) {
	code := ao.VoltsToCode(volts)
	if err := MustDAC().WriteRaw(code); err != nil {
		ao.WriteErrors++
		if !ao.pending {
			RecordEvent(EvtDACError, int32(code), int32(ao.WriteErrors))
		}
		ao.pending = true
		return
	}
	ao.LastCode = code
	ao.pending = false
}
