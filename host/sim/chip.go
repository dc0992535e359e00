package sim

import (
	"fmt"

	"treadmill/dac"
)

// Chip models an MCP4725 on an I2C bus. It implements drivers.I2C so the
// real driver talks to it unchanged.
type Chip struct {
	Addr uint16
	VDD  float64 // Supply, the full-scale reference

	Code      uint16
	PowerDown dac.PowerDown
	Writes    int

	// Fail, when set, is returned by every transfer
	Fail error
}

// NewChip returns a powered chip at the default address
func NewChip(vdd float64) *Chip {
	return &Chip{Addr: dac.Address, VDD: vdd}
}

// Tx decodes a write frame. Reads are not modelled.
func (c *Chip) Tx(addr uint16, w, r []byte) error {
	if addr != c.Addr {
		return fmt.Errorf("sim: no device at %#x", addr)
	}
	if c.Fail != nil {
		return c.Fail
	}
	if len(r) > 0 {
		return fmt.Errorf("sim: mcp4725 read not supported")
	}
	code, pd, ok := dac.DecodeFrame(w)
	if !ok {
		return fmt.Errorf("sim: mcp4725 frame % x not recognised", w)
	}
	c.Code = code
	c.PowerDown = pd
	c.Writes++
	return nil
}

// Volts is the output voltage, VDD × code / 4096, or 0 while powered down
func (c *Chip) Volts() float64 {
	if c.PowerDown != dac.PowerOn {
		return 0
	}
	return c.VDD * float64(c.Code) / 4096
}
