// Digital trigger input edge detection and timed output pulses
package core

// Edge deltas reported by TriggerInput
const (
	EdgeFalling int8 = -1
	EdgeNone    int8 = 0
	EdgeRising  int8 = 1
)

// TriggerInput reports level changes of a digital input, one sample per loop.
// It has no debounce; the caller decides what an edge means.
type TriggerInput struct {
	Pin GPIOPin

	// Delta is the change seen by the last Loop (EdgeRising, EdgeFalling or EdgeNone)
	Delta int8

	current  bool
	previous bool
}

// NewTriggerInput configures pin as an input and latches its current level
func NewTriggerInput(pin GPIOPin) (*TriggerInput, error) {
	if err := MustGPIO().ConfigureInput(pin); err != nil {
		return nil, err
	}
	t := &TriggerInput{Pin: pin}
	t.current = MustGPIO().ReadPin(pin)
	t.previous = t.current
	return t, nil
}

// Loop samples the pin and updates Delta
func (t *TriggerInput) Loop() int8 {
	t.current = MustGPIO().ReadPin(t.Pin)
	switch {
	case t.current && !t.previous:
		t.Delta = EdgeRising
	case !t.current && t.previous:
		t.Delta = EdgeFalling
	default:
		t.Delta = EdgeNone
	}
	t.previous = t.current
	return t.Delta
}

// High returns the level seen by the last sample
func (t *TriggerInput) High() bool {
	return t.current
}

// TriggerOutput drives a pin high for a fixed duration
type TriggerOutput struct {
	Pin      GPIOPin
	Duration uint32 // Pulse width (ms)

	// WriteErrors counts failed pin writes
	WriteErrors uint32

	on          bool
	failing     bool
	timeStarted uint32
}

// NewTriggerOutput configures pin as an output and drives it low
func NewTriggerOutput(pin GPIOPin, durationMillis uint32) (*TriggerOutput, error) {
	gpio := MustGPIO()
	if err := gpio.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	if err := gpio.SetPin(pin, false); err != nil {
		return nil, err
	}
	return &TriggerOutput{Pin: pin, Duration: durationMillis}, nil
}

// Start drives the pin high. Calling Start during a pulse restarts its timer.
func (t *TriggerOutput) Start() {
	t.set(true)
	t.on = true
	t.timeStarted = Millis()
}

// Loop ends the pulse once its duration has elapsed. A failed end is
// retried on the next Loop.
func (t *TriggerOutput) Loop() {
	if t.on && Millis()-t.timeStarted >= t.Duration {
		t.stop()
	}
}

// Active reports whether a pulse is in progress
func (t *TriggerOutput) Active() bool {
	return t.on
}

func (t *TriggerOutput) stop() {
	if t.set(false) {
		t.on = false
	}
}

// set writes the pin level. One event is recorded per run of consecutive
// failures.
func (t *TriggerOutput) set(level bool) bool {
	if err := MustGPIO().SetPin(t.Pin, level); err != nil {
		t.WriteErrors++
		if !t.failing {
			RecordEvent(EvtPinError, int32(t.Pin), boolToInt32(level))
		}
		t.failing = true
		return false
	}
	t.failing = false
	return true
}
