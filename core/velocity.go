// Velocity filtering and velocity-to-voltage mapping
package core

import "math"

// VelocityFilter smooths the encoder velocity with a sliding window and maps
// the result to an output voltage.
type VelocityFilter struct {
	// Update is set by Loop when the filtered velocity changed and the
	// output needs rewriting.
	Update bool
	// Volts is the most recently computed output voltage.
	Volts float64

	filteringOn    bool
	variableWindow bool
	maxVelocity    float64
	maxVolts       float64

	newVelocity      float64 // Filtered velocity of this iteration
	previousVelocity float64

	buffer   []float64
	idx      int // Slot holding the most recent sample
	nBins    int
	nBinsMin int

	lastMicros uint32
	updateUS   uint32 // Realised sample cadence
}

// BinCount returns the number of averaging bins that fit the low-speed
// window at the nominal cadence, rounded down and at least 1.
func BinCount(lowSpeedMillis, updateMicros float64) int {
	n := int(math.Floor(lowSpeedMillis * 1000 / updateMicros))
	if n < 1 {
		n = 1
	}
	return n
}

// SampleInterval returns the realised cadence in µs for nBins bins spanning
// lowSpeedMillis, rounded half up.
func SampleInterval(lowSpeedMillis float64, nBins int) uint32 {
	return uint32(math.Floor(lowSpeedMillis*1000/float64(nBins) + 0.5))
}

// NewVelocityFilter sizes the window and cadence from the options.
// The cadence is fixed here and not recomputed per call.
func NewVelocityFilter(opts *Options, offsetVolts float64) *VelocityFilter {
	f := &VelocityFilter{
		Volts:          offsetVolts,
		filteringOn:    opts.FilterOn,
		variableWindow: opts.VariableWindow,
		maxVelocity:    opts.MaxVelocity,
		maxVolts:       opts.MaxVolts,
		nBinsMin:       opts.MinBins,
	}
	if f.filteringOn {
		f.nBins = BinCount(opts.LowSpeedMillis, opts.UpdateMicros)
		f.buffer = make([]float64, f.nBins)
		f.updateUS = SampleInterval(opts.LowSpeedMillis, f.nBins)
		if f.nBinsMin < 1 {
			f.nBinsMin = 1
		}
		if f.nBinsMin > f.nBins {
			f.nBinsMin = f.nBins
		}
	}
	f.lastMicros = Micros()
	return f
}

// Bins returns the full window size
func (f *VelocityFilter) Bins() int {
	return f.nBins
}

// IntervalMicros returns the realised sample cadence
func (f *VelocityFilter) IntervalMicros() uint32 {
	return f.updateUS
}

// Filtered returns the velocity the current voltage was computed from
func (f *VelocityFilter) Filtered() float64 {
	return f.newVelocity
}

// Loop feeds one raw velocity reading. minVolts and offsetVolts are applied
// when the filtered velocity changed.
func (f *VelocityFilter) Loop(encVelocity, minVolts, offsetVolts float64) {
	f.Update = false

	if f.filteringOn {
		f.filter(encVelocity, Micros())
	} else {
		f.newVelocity = encVelocity
	}

	if f.newVelocity != f.previousVelocity {
		f.Update = true
		f.Volts = f.toVolts(f.newVelocity, minVolts, offsetVolts)
		f.previousVelocity = f.newVelocity
	}
}

// filter stores a sample when the cadence has elapsed and recomputes the mean
func (f *VelocityFilter) filter(encVelocity float64, now uint32) {
	if now-f.lastMicros < f.updateUS {
		return
	}
	f.lastMicros = now
	f.idx = (f.idx + 1) % f.nBins
	f.buffer[f.idx] = encVelocity
	f.newVelocity = f.average(f.windowBins(encVelocity))
}

// windowBins returns the effective window for the given raw velocity.
// With a variable window it falls linearly from nBins at rest to nBinsMin at
// MaxVelocity and beyond, rounded down.
func (f *VelocityFilter) windowBins(encVelocity float64) int {
	if !f.variableWindow {
		return f.nBins
	}
	fromMax := f.maxVelocity - math.Abs(encVelocity)
	if fromMax < 0 {
		fromMax = 0
	}
	n := f.nBinsMin + int(math.Floor(float64(f.nBins-f.nBinsMin)*fromMax/f.maxVelocity))
	if n > f.nBins {
		n = f.nBins
	}
	return n
}

// average is the unweighted mean of the n most recent samples. Older samples
// stay in the buffer but fall outside the index range.
func (f *VelocityFilter) average(n int) float64 {
	var sum float64
	for k := 0; k < n; k++ {
		sum += f.buffer[(f.idx-k+f.nBins)%f.nBins]
	}
	return sum / float64(n)
}

// toVolts scales velocity to volts, clamps to [minVolts, maxVolts] and adds the offset
func (f *VelocityFilter) toVolts(velocity, minVolts, offsetVolts float64) float64 {
	v := velocity / f.maxVelocity * f.maxVolts
	if v < minVolts {
		v = minVolts
	}
	if v > f.maxVolts {
		v = f.maxVolts
	}
	return offsetVolts + v
}
