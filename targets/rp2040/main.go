//go:build rp2040

package main

import (
	"machine"
	"time"

	"treadmill/core"
	"treadmill/dac"
)

// statusEveryMillis is the period of the debug status line
const statusEveryMillis = 1000

// loopPanics counts iterations that panicked and were recovered
var loopPanics uint32

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	if InitDebugUART() {
		core.SetDebugWriter(debugWrite)
		core.SetDebugEnabled(true)
	}

	InitClock()

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)

	bus, err := InitDACBus()
	if err != nil {
		halt("[INIT] I2C0 configure failed: " + err.Error())
	}
	core.SetDACDriver(dac.New(bus))

	ctrl, err := core.NewController(core.DefaultOptions())
	if err != nil {
		halt("[INIT] " + err.Error())
	}
	core.DebugPrintln("[INIT] treadmill controller running")

	lastStatus := core.Millis()
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					loopPanics++
				}
			}()

			ctrl.Loop()

			if now := core.Millis(); now-lastStatus >= statusEveryMillis {
				lastStatus = now
				ctrl.DebugStatus()
			}
		}()
	}
}

// halt reports a setup failure forever; without a configured controller
// the output must not move
func halt(msg string) {
	for {
		core.DebugPrintln(msg)
		time.Sleep(time.Second)
	}
}
