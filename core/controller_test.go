package core

import (
	"strings"
	"testing"
)

func newControllerTest(t *testing.T, enabled bool, mutate func(*Options)) (*testRig, *quadrature, *Controller) {
	t.Helper()
	r := newTestRig(t)
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	r.gpio.SetPin(opts.Pins.Enable, enabled != opts.InvertEnable)
	c, err := NewController(opts)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return r, newQuadrature(r, &c.opts), c
}

// runUntilPulse steps the belt, looping once per step, until the reward
// pulse starts. It returns the number of steps taken.
func runUntilPulse(t *testing.T, q *quadrature, c *Controller, dir int8, maxSteps int) int {
	t.Helper()
	for i := 1; i <= maxSteps; i++ {
		q.step(dir, 50)
		c.Loop()
		if c.Status().TriggerActive {
			return i
		}
	}
	t.Fatalf("no reward pulse within %d steps", maxSteps)
	return 0
}

func findEvent(eventType uint8) (ControlEvent, bool) {
	for _, evt := range Events() {
		if evt.EventType == eventType {
			return evt, true
		}
	}
	return ControlEvent{}, false
}

func TestControllerForwardLimit(t *testing.T) {
	r, q, c := newControllerTest(t, true, nil)
	opts := c.Options()

	// 1200mm at ~0.164mm per cycle
	steps := runUntilPulse(t, q, c, Forwards, 4*7400)
	cycles := float64(steps) / 4
	if cycles < 7300 || cycles > 7302 {
		t.Errorf("expected the limit near 7301 cycles, fired after %.2f", cycles)
	}
	if !r.gpio.ReadPin(opts.Pins.Reward) {
		t.Error("reward pin not high")
	}
	if s := c.Status(); s.Distance != 0 {
		t.Errorf("expected distance reset, got %g", s.Distance)
	}
	if enc.distance() != 0 {
		t.Errorf("expected encoder distance reset, got %g", enc.distance())
	}

	evt, ok := findEvent(EvtLimitReset)
	if !ok {
		t.Fatal("limit reset not recorded")
	}
	if evt.Value1 != 1200 || evt.Value2 != 1 {
		t.Errorf("unexpected limit event %+v", evt)
	}

	// Pulse width
	r.clock.Advance(49_000)
	c.Loop()
	if !c.Status().TriggerActive {
		t.Error("pulse ended before 50ms")
	}
	r.clock.Advance(1_000)
	c.Loop()
	if c.Status().TriggerActive || r.gpio.ReadPin(opts.Pins.Reward) {
		t.Error("pulse still high after 50ms")
	}
}

func TestControllerBackwardLimit(t *testing.T) {
	_, q, c := newControllerTest(t, true, nil)

	steps := runUntilPulse(t, q, c, Backwards, 4*700)
	cycles := float64(steps) / 4
	if cycles < 607 || cycles > 610 {
		t.Errorf("expected the limit near 609 cycles, fired after %.2f", cycles)
	}

	evt, ok := findEvent(EvtLimitReset)
	if !ok {
		t.Fatal("limit reset not recorded")
	}
	if evt.Value1 != -100 || evt.Value2 != -1 {
		t.Errorf("unexpected limit event %+v", evt)
	}
	if c.Status().Distance != 0 {
		t.Errorf("expected distance reset, got %g", c.Status().Distance)
	}
}

func TestControllerZeroTrigger(t *testing.T) {
	r, q, c := newControllerTest(t, true, nil)
	opts := c.Options()

	for i := 0; i < 400; i++ {
		q.step(Forwards, 50)
		c.Loop()
	}
	if c.Status().Distance <= 0 {
		t.Fatalf("expected positive distance, got %g", c.Status().Distance)
	}

	r.gpio.SetPin(opts.Pins.ZeroPosition, true)
	c.Loop()
	if c.Status().Distance != 0 || enc.distance() != 0 {
		t.Errorf("expected distance reset by trigger, got %g", c.Status().Distance)
	}
	if _, ok := findEvent(EvtTriggerReset); !ok {
		t.Error("trigger reset not recorded")
	}
	if c.Status().TriggerActive {
		t.Error("trigger reset fired the reward pulse")
	}

	// Holding the input high does not keep resetting
	q.cycles(10, Forwards, 50)
	c.Loop()
	if c.Status().Distance <= 0 {
		t.Error("distance reset while the input stayed high")
	}

	// Falling edge is ignored
	r.gpio.SetPin(opts.Pins.ZeroPosition, false)
	c.Loop()
	if c.Status().Distance <= 0 {
		t.Error("distance reset on a falling edge")
	}
}

func TestControllerZeroTriggerDisabled(t *testing.T) {
	r, q, c := newControllerTest(t, true, func(o *Options) { o.ZeroOnTrigger = false })

	q.cycles(10, Forwards, 50)
	c.Loop()
	r.gpio.SetPin(c.Options().Pins.ZeroPosition, true)
	c.Loop()
	if c.Status().Distance <= 0 {
		t.Error("distance reset with zero-on-trigger disabled")
	}
}

func TestControllerDisabledHoldsOffset(t *testing.T) {
	r, q, c := newControllerTest(t, false, func(o *Options) { o.OffsetVolts = 1.0 })
	opts := c.Options()

	if c.Status().Enabled {
		t.Fatal("expected controller disabled")
	}
	for i := 0; i < 2000; i++ {
		q.step(Forwards, 50)
		c.Loop()
	}
	for i, code := range r.dac.writes {
		if code != 1241 {
			t.Fatalf("write %d: expected offset code 1241 while disabled, got %d", i, code)
		}
	}
	if c.Status().Volts <= 1.0 {
		t.Errorf("expected the filter to keep computing while disabled, got %gV", c.Status().Volts)
	}

	// Enabling writes the computed voltage straight away
	q.step(Forwards, 50)
	r.gpio.SetPin(opts.Pins.Enable, true)
	c.Loop()
	if !c.Status().Enabled {
		t.Fatal("expected controller enabled")
	}
	want := c.ao.VoltsToCode(c.Status().Volts)
	if r.dac.last() != want || want <= 1241 {
		t.Errorf("expected computed code %d on enable, got %d", want, r.dac.last())
	}
	if _, ok := findEvent(EvtEnable); !ok {
		t.Error("enable change not recorded")
	}

	// Disabling returns to the offset
	r.gpio.SetPin(opts.Pins.Enable, false)
	c.Loop()
	if r.dac.last() != 1241 {
		t.Errorf("expected offset code on disable, got %d", r.dac.last())
	}
}

func countEvents(eventType uint8) int {
	n := 0
	for _, evt := range Events() {
		if evt.EventType == eventType {
			n++
		}
	}
	return n
}

func TestControllerDisableRetriesFailedWrite(t *testing.T) {
	r, q, c := newControllerTest(t, true, func(o *Options) { o.OffsetVolts = 1.0 })
	opts := c.Options()

	for i := 0; i < 2000; i++ {
		q.step(Forwards, 50)
		c.Loop()
	}
	active := r.dac.last()
	if active == 1241 {
		t.Fatal("expected an active code above the offset")
	}

	// The bus fails on the disabling iteration only
	r.dac.err = errDACBus
	r.gpio.SetPin(opts.Pins.Enable, false)
	c.Loop()
	if c.Status().Enabled {
		t.Fatal("expected controller disabled")
	}
	if r.dac.last() != active || !c.ao.Pending() {
		t.Fatalf("expected a failed write pending at code %d, got last=%d pending=%v",
			active, r.dac.last(), c.ao.Pending())
	}
	r.dac.err = nil

	c.Loop()
	if r.dac.last() != 1241 || c.Status().Code != 1241 {
		t.Errorf("expected the offset code 1241 after recovery, got dac=%d status=%d",
			r.dac.last(), c.Status().Code)
	}
	if c.ao.Pending() {
		t.Error("write still pending after recovery")
	}

	// Held without further writes
	writes := len(r.dac.writes)
	for i := 0; i < 2000; i++ {
		q.step(Forwards, 50)
		c.Loop()
	}
	if len(r.dac.writes) != writes {
		t.Errorf("expected no writes while holding the offset, got %d more", len(r.dac.writes)-writes)
	}
	if n := countEvents(EvtDACError); n != 1 {
		t.Errorf("expected one DAC error event, got %d", n)
	}
}

func TestControllerDisabledRetriesEveryLoop(t *testing.T) {
	r, q, c := newControllerTest(t, true, func(o *Options) { o.OffsetVolts = 1.0 })
	opts := c.Options()

	for i := 0; i < 200; i++ {
		q.step(Forwards, 50)
		c.Loop()
	}

	r.dac.err = errDACBus
	r.gpio.SetPin(opts.Pins.Enable, false)
	for i := 0; i < 10; i++ {
		c.Loop()
	}
	if c.ao.WriteErrors != 10 {
		t.Errorf("expected a retry on every loop, got %d failures", c.ao.WriteErrors)
	}
	if n := countEvents(EvtDACError); n != 1 {
		t.Errorf("expected one event for the run of failures, got %d", n)
	}

	r.dac.err = nil
	c.Loop()
	if r.dac.last() != 1241 {
		t.Errorf("expected the offset code 1241 once the bus recovered, got %d", r.dac.last())
	}
}

func TestControllerEnabledRetriesFailedWrite(t *testing.T) {
	r, q, c := newControllerTest(t, true, func(o *Options) { o.FilterOn = false })

	q.cycles(2, Forwards, 100)
	r.dac.err = errDACBus
	c.Loop()
	if !c.Status().Update || !c.ao.Pending() {
		t.Fatalf("expected a failed update, got update=%v pending=%v", c.Status().Update, c.ao.Pending())
	}
	r.dac.err = nil

	// No new edge, so the velocity is unchanged and only the retry writes
	c.Loop()
	if c.Status().Update {
		t.Fatal("expected no new update")
	}
	want := c.ao.VoltsToCode(c.Status().Volts)
	if want == 0 || r.dac.last() != want {
		t.Errorf("expected retried code %d, got %d", want, r.dac.last())
	}
	if c.ao.Pending() {
		t.Error("write still pending after retry")
	}
}

func TestControllerInvertEnable(t *testing.T) {
	r, _, c := newControllerTest(t, true, func(o *Options) { o.InvertEnable = true })
	if r.gpio.ReadPin(c.Options().Pins.Enable) {
		t.Fatal("expected enable pin low for an active low input")
	}
	if !c.Status().Enabled {
		t.Error("expected enabled with an active low input held low")
	}
}

func TestControllerGainScalesVelocity(t *testing.T) {
	r := newTestRig(t)
	opts := DefaultOptions()
	opts.GainControl = true
	opts.FilterOn = false
	r.gpio.SetPin(opts.Pins.Enable, true)
	r.gpio.SetPin(opts.Pins.GainUp, true)

	c, err := NewController(opts)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	q := newQuadrature(r, &c.opts)

	q.cycles(5, Forwards, 200)
	c.Loop()
	s := c.Status()
	if s.Gain != 2 {
		t.Fatalf("expected gain 2, got %g", s.Gain)
	}
	if !approxEqual(s.FilteredVelocity, 2*s.Velocity, 1e-9) || s.Velocity <= 0 {
		t.Errorf("expected doubled velocity, raw %g filtered %g", s.Velocity, s.FilteredVelocity)
	}

	// Gain zero silences the output
	r.gpio.SetPin(opts.Pins.GainUp, false)
	c.Loop()
	if _, ok := findEvent(EvtGainChange); !ok {
		t.Error("gain change not recorded")
	}
	r.clock.Advance(200_000)
	q.step(Forwards, 100)
	c.Loop()
	if s := c.Status(); s.Gain != 0 || s.FilteredVelocity != 0 {
		t.Errorf("expected zero gain output, got gain %g velocity %g", s.Gain, s.FilteredVelocity)
	}
}

func TestControllerStaleVelocity(t *testing.T) {
	r, q, c := newControllerTest(t, true, func(o *Options) { o.FilterOn = false })

	q.cycles(5, Forwards, 100)
	c.Loop()
	if c.Status().Velocity <= 0 {
		t.Fatal("expected positive velocity")
	}

	r.clock.Advance(uint64(c.Options().TimeoutMicros) + 1)
	c.Loop()
	s := c.Status()
	if s.Velocity != 0 || s.Volts != 0 {
		t.Errorf("expected zero velocity and volts after timeout, got %g / %gV", s.Velocity, s.Volts)
	}
	if r.dac.last() != 0 {
		t.Errorf("expected zero code written, got %d", r.dac.last())
	}
	if _, ok := findEvent(EvtStale); !ok {
		t.Error("stale velocity not recorded")
	}
}

func TestControllerRejectsInvalidOptions(t *testing.T) {
	newTestRig(t)
	opts := DefaultOptions()
	opts.Pins.Reward = opts.Pins.EncoderA
	if _, err := NewController(opts); err == nil {
		t.Fatal("expected error for a pin conflict")
	} else if !strings.Contains(err.Error(), "invalid options") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestControllerDebugStatus(t *testing.T) {
	_, q, c := newControllerTest(t, true, nil)
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	SetDebugEnabled(true)
	defer func() {
		SetDebugEnabled(false)
		SetDebugWriter(func(string) {})
	}()

	q.cycles(2, Forwards, 100)
	c.Loop()
	c.DebugStatus()
	if len(lines) == 0 || !strings.HasPrefix(lines[len(lines)-1], "[CTRL] v=") {
		t.Errorf("unexpected debug output %q", lines)
	}
}
