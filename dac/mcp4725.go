// Package dac drives the MCP4725 12-bit I2C DAC that produces the
// treadmill velocity voltage.
package dac

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"
)

// Address is the MCP4725 address with A0 tied low
const Address = 0x62

// MaxCode is the full-scale code of the 12-bit converter
const MaxCode = 0x0FFF

// Command bits of the first byte
const (
	cmdWriteDAC       = 0x40 // Write DAC register
	cmdWriteDACEEPROM = 0x60 // Write DAC register and EEPROM
)

// PowerDown selects the output load while powered down
type PowerDown uint8

const (
	PowerOn           PowerDown = 0
	PowerDown1K       PowerDown = 1
	PowerDown100K     PowerDown = 2
	PowerDown500K     PowerDown = 3
	powerDownBitsMask           = 0x03
)

// ErrCodeRange is returned for codes above MaxCode
var ErrCodeRange = errors.New("mcp4725: code out of range")

// Device is an MCP4725 on an I2C bus
type Device struct {
	bus     drivers.I2C
	Address uint16

	// buffers reused for every transfer
	fast [2]byte
	full [3]byte
}

// New returns a device on bus at the default address
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Configure powers the output on at code 0
func (d *Device) Configure() error {
	if d.bus == nil {
		return errors.New("mcp4725: no I2C bus")
	}
	return d.write(0, PowerOn)
}

// MaxValue returns the full-scale code
func (d *Device) MaxValue() uint32 {
	return MaxCode
}

// WriteRaw sets the output with a two-byte fast write
func (d *Device) WriteRaw(code uint32) error {
	if code > MaxCode {
		return ErrCodeRange
	}
	return d.write(uint16(code), PowerOn)
}

// SetPowerDown disconnects the output and loads it with the given resistor
func (d *Device) SetPowerDown(mode PowerDown) error {
	return d.write(0, mode&powerDownBitsMask)
}

// StoreDefault writes code to the DAC register and to EEPROM, making it the
// power-up output.
func (d *Device) StoreDefault(code uint32) error {
	if code > MaxCode {
		return ErrCodeRange
	}
	d.full[0] = cmdWriteDACEEPROM
	d.full[1] = byte(code >> 4)
	d.full[2] = byte(code<<4) & 0xF0
	if err := d.bus.Tx(d.Address, d.full[:], nil); err != nil {
		return fmt.Errorf("mcp4725: store default: %w", err)
	}
	return nil
}

// SetRegister writes code to the DAC register with the three-byte command
func (d *Device) SetRegister(code uint32) error {
	if code > MaxCode {
		return ErrCodeRange
	}
	d.full[0] = cmdWriteDAC
	d.full[1] = byte(code >> 4)
	d.full[2] = byte(code<<4) & 0xF0
	if err := d.bus.Tx(d.Address, d.full[:], nil); err != nil {
		return fmt.Errorf("mcp4725: write register: %w", err)
	}
	return nil
}

func (d *Device) write(code uint16, pd PowerDown) error {
	d.fast[0] = byte(pd)<<4 | byte(code>>8)&0x0F
	d.fast[1] = byte(code)
	if err := d.bus.Tx(d.Address, d.fast[:], nil); err != nil {
		return fmt.Errorf("mcp4725: fast write: %w", err)
	}
	return nil
}

// DecodeFrame decodes a write frame as the chip would. ok is false for
// frames the chip ignores.
func DecodeFrame(w []byte) (code uint16, pd PowerDown, ok bool) {
	switch {
	case len(w) == 2 && w[0]&0xC0 == 0:
		return uint16(w[0]&0x0F)<<8 | uint16(w[1]), PowerDown(w[0]>>4) & powerDownBitsMask, true
	case len(w) == 3 && (w[0]&0xE0 == cmdWriteDAC || w[0]&0xE0 == cmdWriteDACEEPROM):
		return uint16(w[1])<<4 | uint16(w[2]>>4), PowerDown(w[0]>>1) & powerDownBitsMask, true
	default:
		return 0, 0, false
	}
}

// Close powers the output down with the 500k load
func (d *Device) Close() error {
	return d.SetPowerDown(PowerDown500K)
}
