// Package main provides the CLI entrypoint for landolt.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/landolt/internal/calibration"
	"github.com/verte-zerg/landolt/internal/config"
	"github.com/verte-zerg/landolt/internal/distance"
	"github.com/verte-zerg/landolt/internal/generator"
	"github.com/verte-zerg/landolt/internal/logging"
	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/session"
	"github.com/verte-zerg/landolt/internal/staircase"
	"github.com/verte-zerg/landolt/internal/store"
	"github.com/verte-zerg/landolt/internal/tui"
	"github.com/verte-zerg/landolt/internal/voice"
)

const (
	defaultServerURL     = "http://localhost:8000"
	defaultRowLength     = 5
	defaultSymbolTimeout = 12 * time.Second
	defaultPrepCountdown = 15 * time.Second
	maxRowLength         = 20
	minViewingDistanceMM = 500.0
)

var (
	testServer         string
	testToken          string
	testStartLevel     string
	testRowLength      int
	testSymbolTimeout  time.Duration
	testPrepCountdown  time.Duration
	testViewingMM      float64
	testSkipDistance   bool
	testFramesDir      string
	testTargetFrames   int
	testDebug          bool
	calibrationOffline bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "landolt",
		Short:         "Voice-driven Landolt C visual acuity test",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTestCmd,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&testServer, "server", defaultServerURL, "screening server base URL")
	flags.StringVar(&testToken, "token", "", "access token for the screening server")
	flags.StringVar(&testStartLevel, "start-level", model.StartNotation, "acuity level of the first row")
	flags.IntVar(&testRowLength, "row-length", defaultRowLength, "symbols per row")
	flags.DurationVar(&testSymbolTimeout, "symbol-timeout", defaultSymbolTimeout, "time to answer one symbol")
	flags.DurationVar(&testPrepCountdown, "prep-countdown", defaultPrepCountdown, "countdown before the first row")
	flags.Float64Var(&testViewingMM, "viewing-distance", model.DefaultViewingDistanceMM, "viewing distance in millimeters")
	flags.BoolVar(&testSkipDistance, "skip-distance", false, "skip the camera distance check")
	flags.StringVar(&testFramesDir, "frames-dir", "", "directory of camera frames for the distance check")
	flags.IntVar(&testTargetFrames, "target-frames", distance.RequiredFrames, "consecutive at-target frames required")
	flags.BoolVar(&testDebug, "debug", false, "write debug records to the log")

	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCalibrationCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newLevelsCmd())

	return rootCmd
}

func loadTestConfig(cmd *cobra.Command) (model.Config, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return model.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyFileConfig(cmd, fileCfg)

	cfg := model.Config{
		ServerURL:         strings.TrimSpace(testServer),
		Token:             strings.TrimSpace(testToken),
		StartLevel:        strings.TrimSpace(testStartLevel),
		RowLength:         testRowLength,
		SymbolTimeout:     testSymbolTimeout,
		PrepCountdown:     testPrepCountdown,
		ViewingDistanceMM: testViewingMM,
		SkipDistance:      testSkipDistance,
		FramesDir:         strings.TrimSpace(testFramesDir),
		TargetFrames:      testTargetFrames,
	}
	if cfg.Token == "" {
		cfg.Token = strings.TrimSpace(os.Getenv("LANDOLT_TOKEN"))
	}
	return cfg, nil
}

func applyFileConfig(cmd *cobra.Command, fileCfg config.FileConfig) {
	applyStringConfig(cmd, "server", &testServer, fileCfg.Server.URL)
	applyStringConfig(cmd, "token", &testToken, fileCfg.Server.Token)
	applyStringConfig(cmd, "start-level", &testStartLevel, fileCfg.Test.StartLevel)
	applyIntConfig(cmd, "row-length", &testRowLength, fileCfg.Test.RowLength)
	applyDurationConfig(cmd, "symbol-timeout", &testSymbolTimeout, fileCfg.Test.SymbolTimeout.Std())
	applyDurationConfig(cmd, "prep-countdown", &testPrepCountdown, fileCfg.Test.PrepCountdown.Std())
	applyFloatConfig(cmd, "viewing-distance", &testViewingMM, fileCfg.Test.ViewingDistanceMM)
	applyBoolConfig(cmd, "skip-distance", &testSkipDistance, fileCfg.Distance.Skip)
	applyStringConfig(cmd, "frames-dir", &testFramesDir, fileCfg.Distance.FramesDir)
	applyIntConfig(cmd, "target-frames", &testTargetFrames, fileCfg.Distance.TargetFrames)
}

func runTestCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadTestConfig(cmd)
	if err != nil {
		return err
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	logs, err := logging.Open(config.DefaultLogPath(), testDebug)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logs.Close(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
	}()
	logger := logs.Logger

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	fetcher := &calibration.Client{ServerURL: cfg.ServerURL, Token: cfg.Token}
	cal := calibration.Resolve(ctx, fetcher, st, cfg.ViewingDistanceMM, logger)
	logger.Info("calibration resolved", "source", cal.Source, "pixels_per_mm", cal.PixelsPerMM, "viewing_distance_mm", cal.ViewingDistanceMM)

	bridge := &tui.Bridge{}
	monitor, err := buildMonitor(cfg, cal, bridge, logger)
	if err != nil {
		return err
	}

	timing := session.DefaultTiming()
	timing.Symbol = cfg.SymbolTimeout
	timing.Prep = cfg.PrepCountdown

	transcriber := &tui.KeyTranscriber{}
	voiceDialer := &voice.Dialer{ServerURL: cfg.ServerURL, Token: cfg.Token, Logger: logger}
	opts := session.Options{
		Tree:        staircase.Default(),
		StartLevel:  cfg.StartLevel,
		RowLength:   cfg.RowLength,
		Timing:      timing,
		Calibration: cal,
		Dial:        session.DialerFunc(voiceDialer),
		Transcriber: transcriber,
		Generator:   generator.New(),
		Presenter:   bridge,
		Recorder:    st,
		Logger:      logger,
	}
	uiOpts := tui.Options{
		Transcriber:  transcriber,
		TargetFrames: cfg.TargetFrames,
		Logger:       logger,
	}
	if monitor != nil {
		opts.Closers = []io.Closer{monitor}
		uiOpts.Distance = monitor
	}
	sess, err := session.New(opts)
	if err != nil {
		return err
	}
	uiOpts.Session = sess

	ui := tui.NewModel(ctx, uiOpts)
	program := tea.NewProgram(ui, tea.WithAltScreen())
	bridge.Attach(program)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

// buildMonitor returns nil when the distance check is skipped or no frames are configured.
func buildMonitor(cfg model.Config, cal model.Calibration, bridge *tui.Bridge, logger *slog.Logger) (*distance.Monitor, error) {
	if cfg.SkipDistance {
		return nil, nil
	}
	if cfg.FramesDir == "" {
		logger.Info("distance check skipped: no frames directory configured")
		return nil, nil
	}
	frames, err := distance.NewDirFrames(cfg.FramesDir)
	if err != nil {
		return nil, err
	}
	return &distance.Monitor{
		Dialer:      &distance.Dialer{ServerURL: cfg.ServerURL, Token: cfg.Token, Logger: logger},
		Calibration: cal,
		Frames:      frames,
		Interval:    distance.FrameInterval,
		Logger:      logger,
		OnReading:   bridge.Reading,
		OnStatus:    bridge.DistanceStatus,
	}, nil
}

func validateConfig(cfg model.Config) error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("--server must not be empty")
	}
	if cfg.Token == "" {
		return fmt.Errorf("--token is required (or set LANDOLT_TOKEN)")
	}
	if _, ok := model.LevelIndex(cfg.StartLevel); !ok {
		return fmt.Errorf("--start-level %q is not a catalog level", cfg.StartLevel)
	}
	if cfg.RowLength <= 0 || cfg.RowLength > maxRowLength {
		return fmt.Errorf("--row-length must be between 1 and %d", maxRowLength)
	}
	if cfg.SymbolTimeout < time.Second {
		return fmt.Errorf("--symbol-timeout must be at least 1s")
	}
	if cfg.PrepCountdown < time.Second {
		return fmt.Errorf("--prep-countdown must be at least 1s")
	}
	if cfg.ViewingDistanceMM < minViewingDistanceMM {
		return fmt.Errorf("--viewing-distance must be at least %.0f mm", minViewingDistanceMM)
	}
	if cfg.TargetFrames <= 0 {
		return fmt.Errorf("--target-frames must be > 0")
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target, value *time.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
