package sim

import (
	"math"

	"treadmill/core"
)

// Belt moves the encoder wheel and drives channels A and B. Edge spacing
// follows the forward calibration: B rises (1-phase) of a cycle after A and
// A rises again phase later, so forward per-edge velocities decode exactly.
// Both falls sit evenly inside the B-to-A span.
type Belt struct {
	clock *core.ManualClock
	gpio  *GPIO
	pinA  core.GPIOPin
	pinB  core.GPIOPin

	nmPerCount float64
	offsets    [4]float64 // Edge positions within a cycle (nm)

	position float64 // nm
	quarter  int64   // Index of the last edge at or below position
	speed    float64 // mm/s, which is nm/µs

	// Edges counts every level change driven
	Edges uint64
}

// NewBelt places the belt at position 0 and drives the matching levels
// without firing interrupts.
func NewBelt(clock *core.ManualClock, gpio *GPIO, opts *core.Options) *Belt {
	nm := opts.NMPerCount
	phase := opts.PhaseFactor
	b := &Belt{
		clock:      clock,
		gpio:       gpio,
		pinA:       opts.Pins.EncoderA,
		pinB:       opts.Pins.EncoderB,
		nmPerCount: nm,
		offsets:    [4]float64{0, (1 - phase) * nm, (1 - phase*2/3) * nm, (1 - phase/3) * nm},
	}
	b.quarter = b.index(0)
	a, bl := quadLevels(b.quarter)
	gpio.SetPin(b.pinA, a)
	gpio.SetPin(b.pinB, bl)
	return b
}

// SetSpeed sets the belt speed in mm/s; negative runs backwards
func (b *Belt) SetSpeed(mmPerSecond float64) {
	b.speed = mmPerSecond
}

// Speed returns the belt speed in mm/s
func (b *Belt) Speed() float64 {
	return b.speed
}

// PositionMM returns the travel since the start
func (b *Belt) PositionMM() float64 {
	return b.position * 1e-6
}

// Advance moves the belt for dt µs. Every edge is driven with the clock set
// to the moment the belt crosses it, then the clock ends at start+dt.
func (b *Belt) Advance(dt uint64) {
	start := b.clock.Now()
	end := start + dt
	x0 := b.position
	x1 := x0 + b.speed*float64(dt)
	target := b.index(x1)

	for b.quarter != target {
		var at float64
		if target > b.quarter {
			b.quarter++
			at = b.edgePosition(b.quarter)
		} else {
			at = b.edgePosition(b.quarter)
			b.quarter--
		}
		t := start + uint64(math.Max(0, math.Round((at-x0)/b.speed)))
		if t > end {
			t = end
		}
		if t > b.clock.Now() {
			b.clock.Set(t)
		}
		b.drive(b.quarter)
	}

	b.position = x1
	b.clock.Set(end)
}

func (b *Belt) drive(q int64) {
	a, bl := quadLevels(q)
	if a != b.gpio.ReadPin(b.pinA) {
		b.gpio.Drive(b.pinA, a)
		b.Edges++
	}
	if bl != b.gpio.ReadPin(b.pinB) {
		b.gpio.Drive(b.pinB, bl)
		b.Edges++
	}
}

// index returns the quarter whose edge is the last one at or below x
func (b *Belt) index(x float64) int64 {
	k := math.Floor(x / b.nmPerCount)
	frac := x - k*b.nmPerCount
	m := int64(0)
	for i := 3; i > 0; i-- {
		if frac >= b.offsets[i] {
			m = int64(i)
			break
		}
	}
	return 4*int64(k) + m
}

func (b *Belt) edgePosition(q int64) float64 {
	k := floorDiv(q, 4)
	return float64(k)*b.nmPerCount + b.offsets[q-4*k]
}

// quadLevels returns the A and B levels just past edge q
func quadLevels(q int64) (a, b bool) {
	switch q - 4*floorDiv(q, 4) {
	case 0:
		return true, false
	case 1:
		return true, true
	case 2:
		return false, true
	default:
		return false, false
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
