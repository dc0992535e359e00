// Control loop: encoder -> filter -> analog output, with trigger correlation
package core

import "fmt"

// Status is a snapshot of the controller after the last Loop
type Status struct {
	Velocity         float64 // Raw encoder velocity (mm/s)
	Distance         float64 // Encoder distance after resets (mm)
	FilteredVelocity float64 // Velocity the output voltage was computed from
	Volts            float64 // Computed output voltage
	Code             uint32  // Last DAC code written
	Gain             float64
	Enabled          bool
	TriggerActive    bool
	Update           bool // Output was due for rewriting this iteration
}

// Controller owns every component except the encoder and runs one
// iteration of the control loop per Loop call.
type Controller struct {
	opts Options

	filter  *VelocityFilter
	ao      *AnalogOut
	zero    *TriggerInput
	enable  *TriggerInput
	reward  *TriggerOutput
	gain    *GainControl
	enabled bool

	status Status
}

// NewController validates opts and sets up every component. GPIO, DAC and
// clock drivers must be registered first.
func NewController(opts Options) (*Controller, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	c := &Controller{opts: opts}

	if err := SetupEncoder(&c.opts); err != nil {
		return nil, fmt.Errorf("setup encoder: %w", err)
	}

	var err error
	if c.ao, err = NewAnalogOut(&c.opts); err != nil {
		return nil, err
	}
	c.filter = NewVelocityFilter(&c.opts, c.opts.OffsetVolts)

	if c.enable, err = NewTriggerInput(c.opts.Pins.Enable); err != nil {
		return nil, fmt.Errorf("setup enable input: %w", err)
	}
	c.enabled = c.enable.High() != c.opts.InvertEnable

	if c.opts.ZeroOnTrigger {
		if c.zero, err = NewTriggerInput(c.opts.Pins.ZeroPosition); err != nil {
			return nil, fmt.Errorf("setup zero-position input: %w", err)
		}
	}
	if c.reward, err = NewTriggerOutput(c.opts.Pins.Reward, c.opts.TriggerMillis); err != nil {
		return nil, fmt.Errorf("setup reward output: %w", err)
	}
	if c.opts.GainControl {
		if c.gain, err = NewGainControl(&c.opts); err != nil {
			return nil, fmt.Errorf("setup gain control: %w", err)
		}
	}

	c.status = Status{
		Volts:   c.opts.OffsetVolts,
		Code:    c.ao.LastCode,
		Gain:    c.gainValue(),
		Enabled: c.enabled,
	}
	return c, nil
}

// Loop runs one iteration. Inputs are sampled before the encoder snapshot so
// a trigger reset and a limit reset never race over the same snapshot.
func (c *Controller) Loop() {
	// Sample inputs
	resetOnTrigger := false
	if c.zero != nil && c.zero.Loop() == EdgeRising {
		resetOnTrigger = true
	}
	enableChanged := false
	if c.enable.Loop() != EdgeNone {
		c.enabled = c.enable.High() != c.opts.InvertEnable
		enableChanged = true
		RecordEvent(EvtEnable, boolToInt32(c.enabled), 0)
	}
	if c.gain != nil && c.gain.Loop() {
		RecordEvent(EvtGainChange, int32(c.gain.Target()*1000), int32(c.gain.RampMillis()))
	}

	// Snapshot the encoder with interrupts disabled
	snap := SampleEncoder(resetOnTrigger)
	if snap.Stale {
		RecordEvent(EvtStale, 0, 0)
	}
	if resetOnTrigger {
		RecordEvent(EvtTriggerReset, 0, 0)
	}

	// Compute the velocity as a voltage
	velocity := snap.Velocity * c.gainValue()
	c.filter.Loop(velocity, c.opts.MinVolts, c.opts.OffsetVolts)

	// Distance limits fire the reward pulse and restart the distance
	distance := snap.Distance
	if distance > c.opts.ForwardDistanceMM || distance < c.opts.BackwardDistanceMM {
		c.reward.Start()
		ResetEncoderDistance()
		dir := int32(1)
		if distance < 0 {
			dir = -1
		}
		RecordEvent(EvtLimitReset, int32(distance), dir)
		distance = 0
	}
	c.reward.Loop()

	// The enable input overrides whatever was computed
	switch {
	case !c.enabled && enableChanged:
		c.ao.Write(c.opts.OffsetVolts)
	case !c.enabled:
		c.ao.Hold(c.opts.OffsetVolts)
	case enableChanged:
		c.ao.Write(c.filter.Volts)
	default:
		c.ao.Loop(c.filter.Update, c.filter.Volts)
	}

	c.status = Status{
		Velocity:         snap.Velocity,
		Distance:         distance,
		FilteredVelocity: c.filter.Filtered(),
		Volts:            c.filter.Volts,
		Code:             c.ao.LastCode,
		Gain:             c.gainValue(),
		Enabled:          c.enabled,
		TriggerActive:    c.reward.Active(),
		Update:           c.filter.Update,
	}
}

// Status returns the state after the last Loop
func (c *Controller) Status() Status {
	return c.status
}

// Options returns the validated options the controller runs with
func (c *Controller) Options() Options {
	return c.opts
}

// DebugStatus writes a one-line status through the debug writer
func (c *Controller) DebugStatus() {
	s := c.status
	DebugPrintln("[CTRL] v=" + ftoa(s.Velocity, 1) +
		" d=" + ftoa(s.Distance, 1) +
		" vf=" + ftoa(s.FilteredVelocity, 1) +
		" volts=" + ftoa(s.Volts, 3) +
		" code=" + utoa(s.Code) +
		" gain=" + ftoa(s.Gain, 3))
}

func (c *Controller) gainValue() float64 {
	if c.gain == nil {
		return 1
	}
	return c.gain.Value
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
