//go:build rp2040

package main

import (
	"machine"
)

// DAC bus wiring
const (
	dacBusFrequency = 400 * machine.KHz
	dacSDA          = machine.GPIO4
	dacSCL          = machine.GPIO5
)

// InitDACBus configures I2C0 for the MCP4725
func InitDACBus() (*machine.I2C, error) {
	i2c := machine.I2C0
	err := i2c.Configure(machine.I2CConfig{
		Frequency: dacBusFrequency,
		SDA:       dacSDA,
		SCL:       dacSCL,
	})
	if err != nil {
		return nil, err
	}
	return i2c, nil
}
