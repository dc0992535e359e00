package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// ControlEvent captures a control-loop event for post-mortem analysis
type ControlEvent struct {
	EventType uint8  // Event type code
	Clock     uint32 // Millisecond clock at event
	Value1    int32  // Context-dependent value
	Value2    int32  // Context-dependent value
}

// Event type codes
const (
	EvtLimitReset   = 1 // Distance crossed a limit (v1 = distance mm, v2 = +1 forward / -1 backward)
	EvtTriggerReset = 2 // Zero-position input reset the distance
	EvtStale        = 3 // Velocity forced to zero by the encoder timeout
	EvtGainChange   = 4 // Gain target changed (v1 = target ×1000, v2 = ramp ms)
	EvtEnable       = 5 // Enable input changed (v1 = 1 enabled, 0 disabled)
	EvtDACError     = 6 // DAC write failed (v1 = code, v2 = failure count)
	EvtPinError     = 7 // Output pin write failed (v1 = pin, v2 = level)
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event capture ring buffer, written from loop context only
	eventRing     [EventRingSize]ControlEvent
	eventRingHead uint8
	eventCount    uint32
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordEvent captures an event in the ring buffer and echoes it when debug
// output is enabled. Never call from interrupt context.
func RecordEvent(eventType uint8, value1, value2 int32) {
	idx := eventRingHead
	eventRing[idx] = ControlEvent{
		EventType: eventType,
		Clock:     Millis(),
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	eventCount++
	if debugEnabled {
		DebugPrintln(formatEvent(&eventRing[idx]))
	}
}

// EventCount returns the number of events recorded since the last clear
func EventCount() uint32 {
	return eventCount
}

// Events returns the recorded events, oldest first
func Events() []ControlEvent {
	out := make([]ControlEvent, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// DumpEventRing outputs the event ring buffer through the debug writer
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENT] === Event Ring Dump ===")
	debugPrintln("[EVENT] Total events: " + utoa(eventCount))
	for _, evt := range Events() {
		debugPrintln(formatEvent(&evt))
	}
	debugPrintln("[EVENT] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = ControlEvent{}
	}
	eventRingHead = 0
	eventCount = 0
}

// EventName returns the short name of an event type
func EventName(eventType uint8) string {
	switch eventType {
	case EvtLimitReset:
		return "LIMIT_RESET"
	case EvtTriggerReset:
		return "TRIGGER_RESET"
	case EvtStale:
		return "STALE"
	case EvtGainChange:
		return "GAIN_CHANGE"
	case EvtEnable:
		return "ENABLE"
	case EvtDACError:
		return "DAC_ERROR!"
	case EvtPinError:
		return "PIN_ERROR!"
	default:
		return "UNKNOWN"
	}
}

func formatEvent(evt *ControlEvent) string {
	return "[EVENT] " + EventName(evt.EventType) +
		" clock=" + utoa(evt.Clock) +
		" v1=" + itoa(int(evt.Value1)) +
		" v2=" + itoa(int(evt.Value2))
}
