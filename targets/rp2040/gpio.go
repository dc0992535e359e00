//go:build rp2040

package main

import (
	"machine"

	"treadmill/core"
)

// RPGPIODriver implements the GPIODriver interface for RP2040
type RPGPIODriver struct {
	// Track configured pins to prevent conflicts
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

func (d *RPGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if _, exists := d.configuredPins[pin]; exists {
		// Already configured, this is OK
		return nil
	}
	machinePin := d.pinNumberToMachinePin(pin)
	machinePin.Configure(machine.PinConfig{Mode: mode})
	d.configuredPins[pin] = machinePin
	return nil
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinOutput)
}

func (d *RPGPIODriver) ConfigureInput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInput)
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPullup)
}

func (d *RPGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPulldown)
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		// Pin isn't configured - configure it first
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		machinePin = d.configuredPins[pin]
	}

	machinePin.Set(value)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		// Pin not configured
		return false, nil
	}

	return machinePin.Get(), nil
}

// ReadPin reads the pin level directly. It runs inside the encoder edge
// interrupts, so it skips the configured-pin lookup.
func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	return d.pinNumberToMachinePin(pin).Get()
}

// SetEdgeInterrupt runs handler from the GPIO interrupt on every rising edge.
// A nil handler disables the pin interrupt.
func (d *RPGPIODriver) SetEdgeInterrupt(pin core.GPIOPin, handler core.EdgeHandler) error {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		if err := d.ConfigureInputPullUp(pin); err != nil {
			return err
		}
		machinePin = d.configuredPins[pin]
	}
	if handler == nil {
		return machinePin.SetInterrupt(0, nil)
	}
	return machinePin.SetInterrupt(machine.PinRising, func(machine.Pin) {
		handler()
	})
}

// pinNumberToMachinePin converts a pin to a machine.Pin
// For RP2040, pins map directly to GPIO numbers
func (d *RPGPIODriver) pinNumberToMachinePin(pin core.GPIOPin) machine.Pin {
	return machine.Pin(pin)
}
