package sim

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"treadmill/core"
	"treadmill/dac"
)

var traceHeader = []string{
	"time_ms", "belt_mm_s", "velocity_mm_s", "distance_mm", "filtered_mm_s",
	"volts", "code", "dac_volts", "gain", "enabled", "reward",
}

// Summary describes a finished run
type Summary struct {
	Loops        uint64
	Edges        uint64
	RewardPulses int
	BeltTravelMM float64
	DACWrites    int
	DACVolts     float64
	Final        core.Status
	Events       []core.ControlEvent
}

// Runner owns the simulated hardware and the controller for one run
type Runner struct {
	profile Profile
	opts    core.Options
	log     *slog.Logger

	Clock *core.ManualClock
	GPIO  *GPIO
	Chip  *Chip
	DAC   *dac.Device
	Belt  *Belt
	Ctrl  *core.Controller
}

// NewRunner registers the simulated drivers with core and sets up the
// controller. Input levels are electrical, so invert_enable applies to them.
func NewRunner(p Profile, log *slog.Logger) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts := core.DefaultOptions()
	if err := p.Options.Apply(&opts); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	r := &Runner{
		profile: p,
		opts:    opts,
		log:     log,
		Clock:   core.NewManualClock(0),
		GPIO:    NewGPIO(),
		Chip:    NewChip(p.SupplyVolts),
	}
	r.DAC = dac.New(r.Chip)

	core.SetClockSource(r.Clock.Now)
	core.SetGPIODriver(r.GPIO)
	core.SetDACDriver(r.DAC)
	core.ClearEventRing()

	for name, level := range p.Inputs.Initial {
		pin, _ := InputPin(opts.Pins, name)
		r.GPIO.SetPin(pin, level)
	}
	r.Belt = NewBelt(r.Clock, r.GPIO, &opts)

	ctrl, err := core.NewController(opts)
	if err != nil {
		return nil, fmt.Errorf("setup controller: %w", err)
	}
	r.Ctrl = ctrl

	log.Debug("runner ready",
		"duration_ms", p.DurationMS,
		"loop_us", p.LoopMicros,
		"segments", len(p.Speed),
		"events", len(p.Inputs.Events))
	return r, nil
}

// Run steps the belt and the controller until the profile ends or ctx is
// cancelled. Trace rows go to trace when it is non-nil.
func (r *Runner) Run(ctx context.Context, trace io.Writer) (Summary, error) {
	var w *csv.Writer
	if trace != nil && r.profile.TraceEveryMS > 0 {
		w = csv.NewWriter(trace)
		if err := w.Write(traceHeader); err != nil {
			return Summary{}, fmt.Errorf("write trace header: %w", err)
		}
	}

	loop := uint64(r.profile.LoopMicros)
	end := uint64(r.profile.DurationMS) * 1000
	traceEvery := uint64(r.profile.TraceEveryMS) * 1000
	nextTrace := uint64(0)
	events := r.profile.Inputs.Events

	var s Summary
	rewardWas := false
	for t := uint64(0); t < end; t += loop {
		if s.Loops%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return s, err
			}
		}

		for len(events) > 0 && uint64(events[0].AtMS)*1000 <= t {
			ev := events[0]
			events = events[1:]
			pin, _ := InputPin(r.opts.Pins, ev.Pin)
			r.GPIO.Drive(pin, ev.Level)
			r.log.Info("input", "ms", ev.AtMS, "pin", ev.Pin, "level", ev.Level)
		}

		r.Belt.SetSpeed(r.profile.SpeedAt(float64(t) / 1000))
		r.Belt.Advance(loop)
		r.Ctrl.Loop()
		s.Loops++

		st := r.Ctrl.Status()
		if st.TriggerActive && !rewardWas {
			s.RewardPulses++
			r.log.Info("reward pulse",
				"ms", r.Clock.Now()/1000,
				"belt_mm", strconv.FormatFloat(r.Belt.PositionMM(), 'f', 1, 64))
		}
		rewardWas = st.TriggerActive

		if w != nil && t >= nextTrace {
			if err := w.Write(r.traceRow(st)); err != nil {
				return s, fmt.Errorf("write trace: %w", err)
			}
			nextTrace += traceEvery
		}
	}

	if w != nil {
		w.Flush()
		if err := w.Error(); err != nil {
			return s, fmt.Errorf("write trace: %w", err)
		}
	}

	s.Edges = r.Belt.Edges
	s.BeltTravelMM = r.Belt.PositionMM()
	s.DACWrites = r.Chip.Writes
	s.DACVolts = r.Chip.Volts()
	s.Final = r.Ctrl.Status()
	s.Events = core.Events()
	return s, nil
}

// Close powers the DAC down
func (r *Runner) Close() error {
	return r.DAC.Close()
}

func (r *Runner) traceRow(st core.Status) []string {
	return []string{
		strconv.FormatFloat(float64(r.Clock.Now())/1000, 'f', 1, 64),
		fmtFloat(r.Belt.Speed()),
		fmtFloat(st.Velocity),
		fmtFloat(st.Distance),
		fmtFloat(st.FilteredVelocity),
		strconv.FormatFloat(st.Volts, 'f', 4, 64),
		strconv.FormatUint(uint64(st.Code), 10),
		strconv.FormatFloat(r.Chip.Volts(), 'f', 4, 64),
		strconv.FormatFloat(st.Gain, 'f', 3, 64),
		strconv.FormatBool(st.Enabled),
		strconv.FormatBool(st.TriggerActive),
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
