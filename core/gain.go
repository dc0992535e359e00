// Gain control with linear ramps between levels selected by two inputs
package core

import "math"

// GainLevels are the targets selected by the gain up/down inputs
type GainLevels struct {
	Up      float64 // up high, down low
	Down    float64 // up low, down high
	Default float64 // both high
	Zero    float64 // both low
}

// GainControl ramps a gain value towards a target chosen by the up and down
// inputs. A change on either input re-anchors the ramp at the current value;
// the ramp lasts |target-initial| × MillisPerUnit ms.
type GainControl struct {
	// Value is the current gain
	Value float64

	levels        GainLevels
	millisPerUnit float64

	up     *TriggerInput
	down   *TriggerInput
	report *TriggerOutput

	target       float64
	initialValue float64
	timeStarted  uint32
	dvalue       float64
	fullDt       float64 // Ramp duration (ms)
}

// NewGainControl configures the up, down and report pins. The initial value is
// the level selected by the inputs at setup, without a ramp.
func NewGainControl(opts *Options) (*GainControl, error) {
	up, err := NewTriggerInput(opts.Pins.GainUp)
	if err != nil {
		return nil, err
	}
	down, err := NewTriggerInput(opts.Pins.GainDown)
	if err != nil {
		return nil, err
	}
	report, err := NewTriggerOutput(opts.Pins.GainReport, opts.GainReportMillis)
	if err != nil {
		return nil, err
	}
	g := &GainControl{
		levels: GainLevels{
			Up:      opts.GainUp,
			Down:    opts.GainDown,
			Default: opts.GainDefault,
			Zero:    opts.GainZero,
		},
		millisPerUnit: opts.MillisPerUnitGain,
		up:            up,
		down:          down,
		report:        report,
		timeStarted:   Millis(),
	}
	g.target = g.selectTarget()
	g.Value = g.target
	g.initialValue = g.target
	return g, nil
}

// selectTarget applies the truth table over the two input levels
func (g *GainControl) selectTarget() float64 {
	switch up, down := g.up.High(), g.down.High(); {
	case up && down:
		return g.levels.Default
	case up:
		return g.levels.Up
	case down:
		return g.levels.Down
	default:
		return g.levels.Zero
	}
}

// Loop samples the inputs, starts a new ramp on any change and advances the
// current value. It returns true when the target changed on this call.
func (g *GainControl) Loop() bool {
	changed := false
	upDelta := g.up.Loop()
	downDelta := g.down.Loop()
	now := Millis()

	g.advance(now)
	if upDelta != EdgeNone || downDelta != EdgeNone {
		g.startRamp(g.selectTarget(), now)
		g.advance(now)
		g.report.Start()
		changed = true
	}
	g.report.Loop()
	return changed
}

// startRamp anchors a ramp from the current value to target
func (g *GainControl) startRamp(target float64, now uint32) {
	g.timeStarted = now
	g.initialValue = g.Value
	g.target = target
	g.dvalue = g.target - g.initialValue
	g.fullDt = math.Abs(g.dvalue) * g.millisPerUnit
}

// advance places Value on the ramp line; past the ramp duration it holds the target
func (g *GainControl) advance(now uint32) {
	dt := float64(now - g.timeStarted)
	if dt < g.fullDt {
		g.Value = g.initialValue + dt*(g.dvalue/g.fullDt)
	} else {
		g.Value = g.target
	}
}

// Target returns the level the gain is ramping to
func (g *GainControl) Target() float64 {
	return g.target
}

// RampMillis returns the duration of the current ramp
func (g *GainControl) RampMillis() float64 {
	return g.fullDt
}
