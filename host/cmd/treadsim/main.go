// treadsim runs the treadmill controller against a simulated belt and
// writes a CSV trace of the analog output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"treadmill/core"
	"treadmill/host/sim"
)

var (
	profilePath = flag.String("profile", "", "YAML bench profile (default: 200 mm/s for 7 s)")
	tracePath   = flag.String("trace", "", "CSV trace output, - for stdout")
	logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
	firmwareLog = flag.Bool("firmware-debug", false, "Route firmware debug output and events to the log")
	dumpEvents  = flag.Bool("dump-events", false, "Dump the firmware event ring when the run ends")
)

func main() {
	flag.Parse()

	logLevel, err := parseLogLevel(*logLevelStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(os.Stderr, logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	profile := sim.DefaultProfile()
	if *profilePath != "" {
		p, err := sim.LoadProfile(*profilePath)
		if err != nil {
			return err
		}
		profile = p
	}

	// Firmware debug lines land in the host log
	fw := logger.With("src", "firmware")
	defer core.SetDebugWriter(func(string) {})
	core.SetDebugWriter(func(s string) { fw.Debug(s) })
	core.SetDebugEnabled(*firmwareLog)

	runner, err := sim.NewRunner(profile, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("dac power down failed", "error", err)
		}
	}()

	var trace io.Writer
	switch *tracePath {
	case "":
	case "-":
		trace = os.Stdout
	default:
		f, err := os.Create(*tracePath)
		if err != nil {
			return fmt.Errorf("create trace: %w", err)
		}
		defer f.Close()
		trace = f
	}

	logger.Info("running",
		"duration_ms", profile.DurationMS,
		"loop_us", profile.LoopMicros,
		"filter_bins", core.BinCount(runner.Ctrl.Options().LowSpeedMillis, runner.Ctrl.Options().UpdateMicros))

	summary, err := runner.Run(ctx, trace)
	if errors.Is(err, context.Canceled) {
		logger.Warn("interrupted", "loops", summary.Loops)
		return nil
	}
	if err != nil {
		return err
	}

	if *dumpEvents {
		core.SetDebugWriter(func(s string) { fw.Info(s) })
		core.DumpEventRing()
	}

	logger.Info("done",
		"loops", summary.Loops,
		"edges", summary.Edges,
		"belt_mm", fmt.Sprintf("%.1f", summary.BeltTravelMM),
		"distance_mm", fmt.Sprintf("%.1f", summary.Final.Distance),
		"velocity", fmt.Sprintf("%.1f", summary.Final.FilteredVelocity),
		"volts", fmt.Sprintf("%.3f", summary.DACVolts),
		"code", summary.Final.Code,
		"dac_writes", summary.DACWrites,
		"reward_pulses", summary.RewardPulses,
		"events", len(summary.Events))
	return nil
}
