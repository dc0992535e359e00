//go:build rp2040

package main

import (
	"machine"
)

var debugUART *machine.UART

// InitDebugUART initializes UART0 on GPIO16 (TX) and GPIO17 (RX) for debugging
// Baud rate: 115200
func InitDebugUART() bool {
	debugUART = machine.UART0

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO16,
		RX:       machine.GPIO17,
	})
	if err != nil {
		debugUART = nil
		return false
	}
	return true
}

// debugWrite writes one line to the debug UART
func debugWrite(s string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
