// Package sim runs the controller on the host against a simulated belt,
// simulated GPIO and an MCP4725 model on a simulated I2C bus.
package sim

import (
	"sync"

	"treadmill/core"
)

// GPIO is a host GPIO driver. Rising levels driven with Drive run the
// attached edge handler the way the pin interrupt would.
type GPIO struct {
	mu       sync.Mutex
	levels   map[core.GPIOPin]bool
	outputs  map[core.GPIOPin]bool
	handlers map[core.GPIOPin]core.EdgeHandler
}

// NewGPIO returns a driver with every pin low
func NewGPIO() *GPIO {
	return &GPIO{
		levels:   make(map[core.GPIOPin]bool),
		outputs:  make(map[core.GPIOPin]bool),
		handlers: make(map[core.GPIOPin]core.EdgeHandler),
	}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs[pin] = true
	return nil
}

func (g *GPIO) ConfigureInput(pin core.GPIOPin) error         { return nil }
func (g *GPIO) ConfigureInputPullUp(pin core.GPIOPin) error   { return nil }
func (g *GPIO) ConfigureInputPullDown(pin core.GPIOPin) error { return nil }

// SetPin is called by the firmware for outputs
func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[pin] = value
	return nil
}

func (g *GPIO) GetPin(pin core.GPIOPin) (bool, error) {
	return g.ReadPin(pin), nil
}

func (g *GPIO) ReadPin(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin]
}

func (g *GPIO) SetEdgeInterrupt(pin core.GPIOPin, handler core.EdgeHandler) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[pin] = handler
	return nil
}

// Drive sets an input level from outside the firmware and runs the edge
// handler on a rising level. The handler runs without the driver lock held.
func (g *GPIO) Drive(pin core.GPIOPin, level bool) {
	g.mu.Lock()
	rose := level && !g.levels[pin]
	g.levels[pin] = level
	h := g.handlers[pin]
	g.mu.Unlock()
	if rose && h != nil {
		h()
	}
}

// IsOutput reports whether the firmware configured pin as an output
func (g *GPIO) IsOutput(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outputs[pin]
}
