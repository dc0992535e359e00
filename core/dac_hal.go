package core

// DACDriver is the abstract DAC interface that core code uses.
type DACDriver interface {
	// Configure prepares the converter for writes.
	Configure() error

	// MaxValue returns the largest code the converter accepts (e.g. 4095 for 12 bits).
	MaxValue() uint32

	// WriteRaw writes a code in [0, MaxValue()] to the output.
	WriteRaw(code uint32) error
}

// Global singleton used by core code.
var dacDriver DACDriver

// SetDACDriver is called by target-specific code to register its driver.
func SetDACDriver(d DACDriver) {
	dacDriver = d
}

// MustDAC returns the configured driver or panics if missing.
func MustDAC() DACDriver {
	if dacDriver == nil {
		panic("DAC driver not configured")
	}
	return dacDriver
}
