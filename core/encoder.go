// Quadrature encoder decoding
// Two rising-edge interrupts (channels A and B) resolve direction, attribute
// a calibrated distance to each edge and estimate velocity from the edge interval.
// The handlers only do integer work; velocity is divided out in loop context.
package core

import "math"

// Channel identifies the encoder channel whose edge fired
type Channel uint8

const (
	ChannelA Channel = 0
	ChannelB Channel = 1
)

// Direction of belt travel
const (
	Forwards  int8 = 1
	Backwards int8 = -1
)

const (
	nmToMM = 1e-6 // nanometres to millimetres
	pmToMM = 1e-9 // picometres to millimetres
	pmToNM = 1e-3 // picometres to nanometres

	// MaxNMPerCount keeps a per-edge distance in picometres inside an int32
	MaxNMPerCount = math.MaxInt32 / 1000
)

// Encoder holds the decoder state. Fields are written only by the edge
// handlers, except distancePM and deltaDistance which the loop may zero
// inside a critical section.
type Encoder struct {
	// Shared with the loop; read and reset with interrupts disabled.
	distancePM    int64  // Accumulated distance (pm)
	deltaDistance int32  // Distance attributed to the last edge (pm), zeroed when stale
	deltaMicros   uint32 // Interval ending at the last edge

	protocol Protocol
	pinA     GPIOPin
	pinB     GPIOPin

	previousMicros uint32
	currentMicros  uint32

	aState  bool
	bState  bool
	channel Channel

	direction         int8
	previousDirection int8
	directionChanged  bool

	timeout uint32
	dual    bool

	// Per-edge distances (pm), precomputed from the phase calibration so the
	// A and B edges of one cycle always sum to countPM
	countPM  int32
	aToB     int32
	bToA     int32
	bToABack int32
	aToBBack int32
}

// EncoderSnapshot is a consistent copy of the shared encoder state
type EncoderSnapshot struct {
	Velocity float64 // mm/s
	Distance float64 // mm, after any reset requested with the snapshot
	Stale    bool    // velocity was forced to zero on this read
}

// enc is the process-wide encoder. Interrupt vectors carry no context, so the
// edge handlers reach it directly; it is the only global state the loop touches.
var enc Encoder

// SetupEncoder configures the encoder pins, attaches the edge interrupts and
// resets the decoder state.
func SetupEncoder(opts *Options) error {
	state := disableInterrupts()
	enc.init(opts, Micros())
	restoreInterrupts(state)

	gpio := MustGPIO()
	if err := gpio.ConfigureInputPullUp(opts.Pins.EncoderA); err != nil {
		return err
	}
	if err := gpio.ConfigureInputPullUp(opts.Pins.EncoderB); err != nil {
		return err
	}
	if err := gpio.SetEdgeInterrupt(opts.Pins.EncoderA, EncoderEdgeA); err != nil {
		return err
	}
	handlerB := EdgeHandler(nil)
	if opts.DualTrigger {
		handlerB = EncoderEdgeB
	}
	return gpio.SetEdgeInterrupt(opts.Pins.EncoderB, handlerB)
}

// init loads calibration and clears the dynamic state
func (e *Encoder) init(opts *Options, now uint32) {
	countPM := int32(math.Round(opts.NMPerCount * 1000))
	aToB := int32(math.Round(opts.PhaseFactor * float64(countPM)))
	bToABack := int32(math.Round(opts.PhaseFactorBack * float64(countPM)))
	*e = Encoder{
		protocol:          opts.Protocol,
		pinA:              opts.Pins.EncoderA,
		pinB:              opts.Pins.EncoderB,
		previousMicros:    now,
		direction:         Forwards,
		previousDirection: Forwards,
		timeout:           opts.TimeoutMicros,
		dual:              opts.DualTrigger,
		countPM:           countPM,
		aToB:              aToB,
		bToA:              countPM - aToB,
		bToABack:          bToABack,
		aToBBack:          countPM - bToABack,
	}
}

// EncoderEdgeA is the rising-edge interrupt handler for channel A
func EncoderEdgeA() {
	enterISR()
	enc.edge(ChannelA, MustGPIO(), Micros())
	exitISR()
}

// EncoderEdgeB is the rising-edge interrupt handler for channel B
func EncoderEdgeB() {
	enterISR()
	enc.edge(ChannelB, MustGPIO(), Micros())
	exitISR()
}

// edge runs every step of the decoder for one edge
func (e *Encoder) edge(ch Channel, gpio GPIODriver, now uint32) {
	e.channel = ch
	e.aState = gpio.ReadPin(e.pinA)
	e.bState = gpio.ReadPin(e.pinB)

	e.currentMicros = now
	e.deltaMicros = e.currentMicros - e.previousMicros
	e.previousMicros = e.currentMicros

	e.resolveDirection()
	e.attributeDistance()

	if e.protocol == ForwardAndBackward || e.deltaDistance > 0 {
		e.distancePM += int64(e.deltaDistance)
	}
}

// edgeVelocity is an edge distance over its interval (nm/µs == mm/s).
// Two edges inside the same microsecond still count as one microsecond apart.
func edgeVelocity(deltaPM int32, deltaMicros uint32) float64 {
	if deltaMicros == 0 {
		deltaMicros = 1
	}
	return float64(deltaPM) * pmToNM / float64(deltaMicros)
}

func (e *Encoder) velocity() float64 {
	return edgeVelocity(e.deltaDistance, e.deltaMicros)
}

// distance returns the accumulated distance in mm
func (e *Encoder) distance() float64 {
	return float64(e.distancePM) * pmToMM
}

// deltaNM returns the distance of the last edge in nm
func (e *Encoder) deltaNM() float64 {
	return float64(e.deltaDistance) * pmToNM
}

// resolveDirection applies the quadrature phase relationship
func (e *Encoder) resolveDirection() {
	if e.aState == e.bState {
		if e.channel == ChannelA {
			e.direction = Backwards
		} else {
			e.direction = Forwards
		}
	} else {
		if e.channel == ChannelA {
			e.direction = Forwards
		} else {
			e.direction = Backwards
		}
	}
	e.directionChanged = e.direction != e.previousDirection
	e.previousDirection = e.direction
}

// attributeDistance sets the distance travelled since the previous edge.
// The A and B edges are not evenly spaced in a cycle, and the spacing differs
// between forward and backward travel.
func (e *Encoder) attributeDistance() {
	switch {
	case e.directionChanged:
		// Nothing reliable can be said across a reversal
		e.deltaDistance = 0
	case !e.dual && e.direction == Forwards:
		e.deltaDistance = e.countPM
	case !e.dual:
		e.deltaDistance = -e.countPM
	case e.channel == ChannelA && e.direction == Forwards:
		e.deltaDistance = e.aToB
	case e.channel == ChannelA:
		e.deltaDistance = -e.bToABack
	case e.direction == Forwards:
		e.deltaDistance = e.bToA
	default:
		e.deltaDistance = -e.aToBBack
	}
}

// expire zeroes the velocity when no edge arrived within the timeout.
// Caller must hold the interrupt mask.
func (e *Encoder) expire(now uint32) bool {
	if now-e.previousMicros > e.timeout {
		stale := e.deltaDistance != 0
		e.deltaDistance = 0
		return stale
	}
	return false
}

// SampleEncoder takes a consistent snapshot of velocity and distance in one
// critical section. The stale timeout is applied first; when reset is set the
// distance is zeroed after it has been read.
func SampleEncoder(reset bool) EncoderSnapshot {
	state := disableInterrupts()
	stale := enc.expire(Micros())
	deltaDistance, deltaMicros := enc.deltaDistance, enc.deltaMicros
	distancePM := enc.distancePM
	if reset {
		enc.distancePM = 0
		distancePM = 0
	}
	restoreInterrupts(state)

	return EncoderSnapshot{
		Velocity: edgeVelocity(deltaDistance, deltaMicros),
		Distance: float64(distancePM) * pmToMM,
		Stale:    stale,
	}
}

// ResetEncoderDistance zeroes the accumulated distance
func ResetEncoderDistance() {
	state := disableInterrupts()
	enc.distancePM = 0
	restoreInterrupts(state)
}
