package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"treadmill/core"
)

// Profile is a bench run read from YAML
type Profile struct {
	DurationMS   uint32  `yaml:"duration_ms"`
	LoopMicros   uint32  `yaml:"loop_us"`        // Superloop period
	TraceEveryMS uint32  `yaml:"trace_every_ms"` // CSV row period, 0 disables the trace
	SupplyVolts  float64 `yaml:"supply_volts"`   // DAC supply, its full scale

	Options OptionOverrides `yaml:"options"`
	Speed   []SpeedSegment  `yaml:"speed"`
	Inputs  InputsConfig    `yaml:"inputs"`
}

// SpeedSegment sets the belt speed from AtMS, reached linearly over RampMS
type SpeedSegment struct {
	AtMS     uint32  `yaml:"at_ms"`
	MMPerSec float64 `yaml:"mm_per_s"`
	RampMS   uint32  `yaml:"ramp_ms,omitempty"`
}

// InputsConfig holds the initial input levels and timed changes
type InputsConfig struct {
	Initial map[string]bool `yaml:"initial"`
	Events  []PinEvent      `yaml:"events"`
}

// PinEvent drives a named input at AtMS
type PinEvent struct {
	AtMS  uint32 `yaml:"at_ms"`
	Pin   string `yaml:"pin"`
	Level bool   `yaml:"level"`
}

// OptionOverrides are the options a profile may change. Unset fields keep
// their defaults.
type OptionOverrides struct {
	ForwardDistanceMM  *float64 `yaml:"forward_distance_mm"`
	BackwardDistanceMM *float64 `yaml:"backward_distance_mm"`
	Protocol           *string  `yaml:"protocol"`

	FilterOn       *bool    `yaml:"filter_on"`
	VariableWindow *bool    `yaml:"variable_window"`
	LowSpeedMillis *float64 `yaml:"low_speed_ms"`
	UpdateMicros   *float64 `yaml:"update_us"`
	MinBins        *int     `yaml:"min_bins"`
	MaxVelocity    *float64 `yaml:"max_velocity"`
	MaxVolts       *float64 `yaml:"max_volts"`
	MinVolts       *float64 `yaml:"min_volts"`
	OffsetVolts    *float64 `yaml:"offset_volts"`

	DualTrigger     *bool    `yaml:"dual_trigger"`
	TimeoutMicros   *uint32  `yaml:"timeout_us"`
	NMPerCount      *float64 `yaml:"nm_per_count"`
	PhaseFactor     *float64 `yaml:"phase_factor"`
	PhaseFactorBack *float64 `yaml:"phase_factor_back"`

	MaxDACVolts *float64 `yaml:"max_dac_volts"`
	MaxDACCode  *uint32  `yaml:"max_dac_code"`

	GainControl       *bool    `yaml:"gain_control"`
	GainUp            *float64 `yaml:"gain_up"`
	GainDown          *float64 `yaml:"gain_down"`
	GainDefault       *float64 `yaml:"gain_default"`
	GainZero          *float64 `yaml:"gain_zero"`
	MillisPerUnitGain *float64 `yaml:"ms_per_unit_gain"`
	GainReportMillis  *uint32  `yaml:"gain_report_ms"`

	TriggerMillis *uint32 `yaml:"trigger_ms"`
	ZeroOnTrigger *bool   `yaml:"zero_on_trigger"`
	InvertEnable  *bool   `yaml:"invert_enable"`
}

// DefaultProfile runs the belt at 200 mm/s for seven seconds with the
// controller enabled, long enough to cross the forward limit once
func DefaultProfile() Profile {
	return Profile{
		DurationMS:   7000,
		LoopMicros:   100,
		TraceEveryMS: 10,
		SupplyVolts:  3.3,
		Speed:        []SpeedSegment{{AtMS: 0, MMPerSec: 200}},
		Inputs: InputsConfig{
			Initial: map[string]bool{PinEnable: true},
		},
	}
}

// Input names accepted in profiles
const (
	PinEnable       = "enable"
	PinZeroPosition = "zero_position"
	PinGainUp       = "gain_up"
	PinGainDown     = "gain_down"
)

// LoadProfile reads a YAML profile on top of DefaultProfile. Unknown fields
// are rejected.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return Profile{}, errors.New("profile path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(b)
}

// ParseProfile decodes a YAML profile on top of DefaultProfile
func ParseProfile(b []byte) (Profile, error) {
	p := DefaultProfile()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	err := dec.Decode(&p)
	switch {
	case errors.Is(err, io.EOF):
		// Empty profile, defaults only
	case err != nil:
		return Profile{}, fmt.Errorf("decode profile yaml: %w", err)
	default:
		var extra yaml.Node
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			return Profile{}, errors.New("decode profile yaml: unexpected trailing document")
		}
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the run parameters and sorts segments and events by time
func (p *Profile) Validate() error {
	if p.DurationMS == 0 {
		return errors.New("duration_ms must be positive")
	}
	if p.LoopMicros == 0 {
		return errors.New("loop_us must be positive")
	}
	if p.SupplyVolts <= 0 {
		return errors.New("supply_volts must be positive")
	}
	for name := range p.Inputs.Initial {
		if !validInput(name) {
			return fmt.Errorf("unknown input %q", name)
		}
	}
	for _, ev := range p.Inputs.Events {
		if !validInput(ev.Pin) {
			return fmt.Errorf("unknown input %q at %dms", ev.Pin, ev.AtMS)
		}
	}
	sort.SliceStable(p.Speed, func(i, j int) bool { return p.Speed[i].AtMS < p.Speed[j].AtMS })
	sort.SliceStable(p.Inputs.Events, func(i, j int) bool { return p.Inputs.Events[i].AtMS < p.Inputs.Events[j].AtMS })
	return nil
}

func validInput(name string) bool {
	switch name {
	case PinEnable, PinZeroPosition, PinGainUp, PinGainDown:
		return true
	}
	return false
}

// InputPin maps an input name to its pin
func InputPin(pins core.Pins, name string) (core.GPIOPin, bool) {
	switch name {
	case PinEnable:
		return pins.Enable, true
	case PinZeroPosition:
		return pins.ZeroPosition, true
	case PinGainUp:
		return pins.GainUp, true
	case PinGainDown:
		return pins.GainDown, true
	}
	return 0, false
}

// SpeedAt returns the belt speed at ms. Before the first segment the belt is
// still. A ramping segment blends from what the earlier segments give at the
// same instant.
func (p *Profile) SpeedAt(ms float64) float64 {
	speed := 0.0
	for _, s := range p.Speed {
		at := float64(s.AtMS)
		if ms < at {
			break
		}
		if s.RampMS > 0 && ms < at+float64(s.RampMS) {
			frac := (ms - at) / float64(s.RampMS)
			speed += (s.MMPerSec - speed) * frac
			continue
		}
		speed = s.MMPerSec
	}
	return speed
}

// Apply writes the overrides onto opts
func (o *OptionOverrides) Apply(opts *core.Options) error {
	if o.Protocol != nil {
		switch *o.Protocol {
		case "forward_only":
			opts.Protocol = core.ForwardOnly
		case "forward_and_backward":
			opts.Protocol = core.ForwardAndBackward
		default:
			return fmt.Errorf("unknown protocol %q (must be forward_only or forward_and_backward)", *o.Protocol)
		}
	}
	setFloat(&opts.ForwardDistanceMM, o.ForwardDistanceMM)
	setFloat(&opts.BackwardDistanceMM, o.BackwardDistanceMM)

	setBool(&opts.FilterOn, o.FilterOn)
	setBool(&opts.VariableWindow, o.VariableWindow)
	setFloat(&opts.LowSpeedMillis, o.LowSpeedMillis)
	setFloat(&opts.UpdateMicros, o.UpdateMicros)
	if o.MinBins != nil {
		opts.MinBins = *o.MinBins
	}
	setFloat(&opts.MaxVelocity, o.MaxVelocity)
	setFloat(&opts.MaxVolts, o.MaxVolts)
	setFloat(&opts.MinVolts, o.MinVolts)
	setFloat(&opts.OffsetVolts, o.OffsetVolts)

	setBool(&opts.DualTrigger, o.DualTrigger)
	setUint(&opts.TimeoutMicros, o.TimeoutMicros)
	setFloat(&opts.NMPerCount, o.NMPerCount)
	setFloat(&opts.PhaseFactor, o.PhaseFactor)
	setFloat(&opts.PhaseFactorBack, o.PhaseFactorBack)

	setFloat(&opts.MaxDACVolts, o.MaxDACVolts)
	setUint(&opts.MaxDACCode, o.MaxDACCode)

	setBool(&opts.GainControl, o.GainControl)
	setFloat(&opts.GainUp, o.GainUp)
	setFloat(&opts.GainDown, o.GainDown)
	setFloat(&opts.GainDefault, o.GainDefault)
	setFloat(&opts.GainZero, o.GainZero)
	setFloat(&opts.MillisPerUnitGain, o.MillisPerUnitGain)
	setUint(&opts.GainReportMillis, o.GainReportMillis)

	setUint(&opts.TriggerMillis, o.TriggerMillis)
	setBool(&opts.ZeroOnTrigger, o.ZeroOnTrigger)
	setBool(&opts.InvertEnable, o.InvertEnable)
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setUint(dst *uint32, v *uint32) {
	if v != nil {
		*dst = *v
	}
}
