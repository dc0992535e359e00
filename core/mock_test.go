package core

import (
	"errors"
	"sync"
	"testing"
)

// mockGPIODriver is a test implementation of GPIODriver
type mockGPIODriver struct {
	mu       sync.Mutex
	pins     map[GPIOPin]bool
	outputs  map[GPIOPin]bool
	handlers map[GPIOPin]EdgeHandler
	setErr   error // returned by SetPin when set
}

func newMockGPIODriver() *mockGPIODriver {
	return &mockGPIODriver{
		pins:     make(map[GPIOPin]bool),
		outputs:  make(map[GPIOPin]bool),
		handlers: make(map[GPIOPin]EdgeHandler),
	}
}

func (m *mockGPIODriver) ConfigureOutput(pin GPIOPin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[pin] = true
	return nil
}

func (m *mockGPIODriver) ConfigureInput(pin GPIOPin) error         { return nil }
func (m *mockGPIODriver) ConfigureInputPullUp(pin GPIOPin) error   { return nil }
func (m *mockGPIODriver) ConfigureInputPullDown(pin GPIOPin) error { return nil }

func (m *mockGPIODriver) SetPin(pin GPIOPin, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.pins[pin] = value
	return nil
}

func (m *mockGPIODriver) GetPin(pin GPIOPin) (bool, error) {
	return m.ReadPin(pin), nil
}

func (m *mockGPIODriver) ReadPin(pin GPIOPin) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pins[pin]
}

func (m *mockGPIODriver) SetEdgeInterrupt(pin GPIOPin, handler EdgeHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pin] = handler
	return nil
}

// fire runs the edge handler attached to pin, if any
func (m *mockGPIODriver) fire(pin GPIOPin) {
	m.mu.Lock()
	h := m.handlers[pin]
	m.mu.Unlock()
	if h != nil {
		h()
	}
}

// mockDACDriver records every code written
type mockDACDriver struct {
	max    uint32
	writes []uint32
	err    error
}

func (d *mockDACDriver) Configure() error { return nil }
func (d *mockDACDriver) MaxValue() uint32 { return d.max }

func (d *mockDACDriver) WriteRaw(code uint32) error {
	if d.err != nil {
		return d.err
	}
	d.writes = append(d.writes, code)
	return nil
}

func (d *mockDACDriver) last() uint32 {
	if len(d.writes) == 0 {
		return 0
	}
	return d.writes[len(d.writes)-1]
}

var (
	errDACBus = errors.New("i2c bus error")
	errPin    = errors.New("pin write error")
)

// testRig bundles the mock drivers registered for one test
type testRig struct {
	clock *ManualClock
	gpio  *mockGPIODriver
	dac   *mockDACDriver
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	r := &testRig{
		clock: NewManualClock(1_000_000),
		gpio:  newMockGPIODriver(),
		dac:   &mockDACDriver{max: 4095},
	}
	SetClockSource(r.clock.Now)
	SetGPIODriver(r.gpio)
	SetDACDriver(r.dac)
	ClearEventRing()
	return r
}

// quadStates is one forward cycle of channel levels {A, B}
var quadStates = [4][2]bool{{false, false}, {true, false}, {true, true}, {false, true}}

// quadrature drives the encoder pins through valid transitions
type quadrature struct {
	rig   *testRig
	pinA  GPIOPin
	pinB  GPIOPin
	phase int
}

func newQuadrature(r *testRig, opts *Options) *quadrature {
	return &quadrature{rig: r, pinA: opts.Pins.EncoderA, pinB: opts.Pins.EncoderB}
}

// step moves one quarter cycle in dir after dt microseconds and fires the
// handler of any channel that rose
func (q *quadrature) step(dir int8, dt uint64) {
	prev := quadStates[q.phase]
	q.phase = (q.phase + int(dir) + 4) % 4
	next := quadStates[q.phase]
	q.rig.clock.Advance(dt)
	q.rig.gpio.SetPin(q.pinA, next[0])
	q.rig.gpio.SetPin(q.pinB, next[1])
	if !prev[0] && next[0] {
		q.rig.gpio.fire(q.pinA)
	}
	if !prev[1] && next[1] {
		q.rig.gpio.fire(q.pinB)
	}
}

// cycles moves n full cycles
func (q *quadrature) cycles(n int, dir int8, dt uint64) {
	for i := 0; i < 4*n; i++ {
		q.step(dir, dt)
	}
}

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
