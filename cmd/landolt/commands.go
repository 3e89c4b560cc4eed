package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/landolt/internal/calibration"
	"github.com/verte-zerg/landolt/internal/config"
	"github.com/verte-zerg/landolt/internal/distance"
	"github.com/verte-zerg/landolt/internal/generator"
	"github.com/verte-zerg/landolt/internal/historyui"
	"github.com/verte-zerg/landolt/internal/logging"
	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/staircase"
	"github.com/verte-zerg/landolt/internal/stats"
	"github.com/verte-zerg/landolt/internal/store"
)

const defaultCurveWindow = 10

var (
	historySince       string
	historyLast        int
	historyCurveWindow int
	historyPlain       bool
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse stored test reports",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N reports")
	cmd.Flags().IntVar(&historyCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().BoolVar(&historyPlain, "plain", false, "print to stdout instead of opening the browser")
	return cmd
}

func historyConfig() (model.HistoryConfig, error) {
	var sinceTime *time.Time
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return model.HistoryConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if historyLast < 0 {
		return model.HistoryConfig{}, fmt.Errorf("--last must be >= 0")
	}
	if historyCurveWindow < 1 {
		return model.HistoryConfig{}, fmt.Errorf("--curve-window must be >= 1")
	}
	return model.HistoryConfig{Since: sinceTime, Last: historyLast, CurveWindow: historyCurveWindow}, nil
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := historyConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	if historyPlain {
		h, err := stats.BuildHistory(cmd.Context(), st, cfg)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		return renderPlainHistory(cmd.OutOrStdout(), h, cfg, stats.TerminalWidth(os.Stdout))
	}

	program := tea.NewProgram(historyui.NewModel(st, cfg), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run history TUI: %w", err)
	}
	return nil
}

func renderPlainHistory(w io.Writer, h stats.History, cfg model.HistoryConfig, width int) error {
	if err := stats.RenderSummary(w, h.Reports); err != nil {
		return err
	}
	if len(h.Reports) == 0 {
		return nil
	}
	if err := stats.RenderCurve(w, h.Reports, cfg.CurveWindow); err != nil {
		return err
	}
	if err := stats.RenderLevelTable(w, h.LevelsAll); err != nil {
		return err
	}
	return stats.RenderPassRates(w, h.LevelsWindow, width)
}

func newCalibrationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Fetch and print the display calibration",
		Args:  cobra.NoArgs,
		RunE:  runCalibrationCmd,
	}
	cmd.Flags().StringVar(&testServer, "server", defaultServerURL, "screening server base URL")
	cmd.Flags().StringVar(&testToken, "token", "", "access token for the screening server")
	cmd.Flags().Float64Var(&testViewingMM, "viewing-distance", model.DefaultViewingDistanceMM, "viewing distance in millimeters")
	cmd.Flags().BoolVar(&calibrationOffline, "offline", false, "skip the server and use the cached profile")
	return cmd
}

func runCalibrationCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "server", &testServer, fileCfg.Server.URL)
	applyStringConfig(cmd, "token", &testToken, fileCfg.Server.Token)
	applyFloatConfig(cmd, "viewing-distance", &testViewingMM, fileCfg.Test.ViewingDistanceMM)
	token := strings.TrimSpace(testToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("LANDOLT_TOKEN"))
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	var fetcher calibration.Fetcher
	if !calibrationOffline && token != "" {
		fetcher = &calibration.Client{ServerURL: strings.TrimSpace(testServer), Token: token}
	}
	logs := logging.Discard()
	cal := calibration.Resolve(cmd.Context(), fetcher, st, testViewingMM, logs.Logger)
	return renderCalibration(cmd.OutOrStdout(), cal)
}

func renderCalibration(w io.Writer, cal model.Calibration) error {
	level, _ := model.LevelIndex(model.StartNotation)
	lines := []string{
		fmt.Sprintf("Source: %s", cal.Source),
		fmt.Sprintf("Screen PPI: %.1f", cal.ScreenPPI),
		fmt.Sprintf("Pixels per mm: %.3f", cal.PixelsPerMM),
		fmt.Sprintf("Focal length: %.1f", cal.FocalLength),
		fmt.Sprintf("Viewing distance: %.0f mm", cal.ViewingDistanceMM),
		fmt.Sprintf("Optotype at %s: %.1f px", model.StartNotation, generator.OpticalSizePixels(model.Catalog[level], cal)),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# landolt configuration
# Uncomment a value to enable it. CLI flags override config values.

[server]
# url = %q    # Screening server base URL
# token = ""                        # Access token (or set LANDOLT_TOKEN)

[test]
# start-level = %q         # Acuity level of the first row
# row-length = %d             # Symbols per row
# symbol-timeout = %q      # Time to answer one symbol
# prep-countdown = %q      # Countdown before the first row
# viewing-distance-mm = %.1f # Viewing distance in millimeters

[distance]
# skip = false               # Skip the camera distance check
# frames-dir = ""            # Directory of camera frames to stream
# target-frames = %d         # Consecutive at-target frames required
`,
		defaultServerURL,
		model.StartNotation,
		defaultRowLength,
		defaultSymbolTimeout.String(),
		defaultPrepCountdown.String(),
		model.DefaultViewingDistanceMM,
		distance.RequiredFrames,
	)
}

func newLevelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "Print the acuity levels and the decision tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return renderLevels(cmd.OutOrStdout(), staircase.Default())
		},
	}
}

func renderLevels(w io.Writer, tree *staircase.Tree) error {
	levels := tree.Levels()
	name := func(i int) string {
		if i < 0 || i >= len(levels) {
			return "-"
		}
		return levels[i].Notation
	}
	if _, err := fmt.Fprintf(w, "%-6s %-8s %-10s %-10s %s\n", "Level", "Decimal", "Pass", "Fail", "Max rows"); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	for i, lvl := range levels {
		node, err := tree.Node(i)
		if err != nil {
			return err
		}
		depth, err := tree.Depth(i)
		if err != nil {
			return err
		}
		pass, fail := "-> "+name(node.OnPass), "-> "+name(node.OnFail)
		if node.IsLeaf() {
			pass, fail = "= "+name(node.PassResult), "= "+name(node.FailResult)
		}
		if _, err := fmt.Fprintf(w, "%-6s %-8.2f %-10s %-10s %d\n", lvl.Notation, lvl.Decimal(), pass, fail, depth); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
