package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shoshta73/devutils"
)

var (
	cfgFile string
	rootDir string
	verbose bool
	noCache bool
	workers int
)

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <root>/devutils.yml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "project root directory")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "bypass the result cache entirely")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "number of parallel workers (0 = number of CPUs)")

	lintCmd.AddCommand(lintCheckCmd, lintFixCmd)
	formatCmd.AddCommand(formatCheckCmd, formatFixCmd)
	licenseCmd.AddCommand(licenseCheckCmd, licenseFixCmd)
	rootCmd.AddCommand(lintCmd, formatCmd, licenseCmd, watchCmd)

	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))

		if info, found := devutils.GetErrorInfo(err); found {
			logger.Error("Command failed", "error", err.Error(), "error_type", info.Type)
			if info.File != "" {
				logger.Error("File information", "file", info.File)
			}
			if info.Details != "" {
				logger.Error("Additional details", "details", info.Details)
			}
		} else {
			logger.Error("Command failed", "error", err)
		}

		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devutils",
	Short: "Development utilities for the Logenium codebase",
	Long:  `devutils runs the project's linters, formatters, and license header checks with per-file result caching and parallel execution.`,
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Run static analysis over C/C++ and Python sources",
}

var lintCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report lint findings without modifying anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLint(devutils.ModeCheck)
	},
}

var lintFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Apply automatic lint fixes where tools support them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLint(devutils.ModeFix)
	},
}

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Run code formatters over C/C++ and Python sources",
}

var formatCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report formatting deviations without modifying anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFormat(devutils.ModeCheck)
	},
}

var formatFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Rewrite files into canonical formatting",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFormat(devutils.ModeFix)
	},
}

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Verify SPDX license headers",
}

var licenseCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report missing or incorrect license headers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLicense(devutils.ModeCheck)
	},
}

var licenseFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Insert or repair license headers in place",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLicense(devutils.ModeFix)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch sources and re-run lint checks on change",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return err
		}

		logger, closeLog, err := setupLogger(root)
		if err != nil {
			return err
		}
		defer closeLog()

		wm, err := devutils.NewWatchMode(devutils.WatchConfig{
			Root:       root,
			ConfigFile: cfgFile,
			Logger:     logger,
			Workers:    workers,
			NoCache:    noCache,
		})
		if err != nil {
			return err
		}
		defer wm.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return wm.Start(ctx)
	},
}

// passEnv bundles what every check/fix command needs.
type passEnv struct {
	fs       afero.Fs
	logger   *slog.Logger
	config   devutils.Config
	root     string
	closeLog func()
}

func newPassEnv() (*passEnv, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := setupLogger(root)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	config, err := devutils.LoadConfig(fs, root, cfgFile)
	if err != nil {
		closeLog()
		logger.Error("Failed to load configuration", "error", err)
		return nil, err
	}

	return &passEnv{
		fs:       fs,
		logger:   logger,
		config:   config,
		root:     root,
		closeLog: closeLog,
	}, nil
}

func resolveRoot() (string, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return "", devutils.NewFSError("failed to resolve project root", err)
	}
	return devutils.NormalizePath(abs), nil
}

// setupLogger writes diagnostics to <root>/.devutils/devutils.log so they
// never interleave with the status lines on stdout. Falls back to stderr
// when the log file cannot be created.
func setupLogger(root string) (*slog.Logger, func(), error) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	logDir := devutils.JoinPaths(root, ".devutils")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		logger.Warn("Failed to create log directory, logging to stderr", "error", err)
		return logger, func() {}, nil
	}

	logFile := devutils.JoinPaths(logDir, "devutils.log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		logger.Warn("Failed to open log file, logging to stderr", "error", err)
		return logger, func() {}, nil
	}

	logger := slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: logLevel}))
	return logger, func() { _ = file.Close() }, nil
}

func newOrchestrator(env *passEnv, cache *devutils.ResultCache, printer *devutils.StatusPrinter, issueTag string) (*devutils.Orchestrator, error) {
	opts := []devutils.OrchestratorOption{devutils.WithIssueTag(issueTag)}

	effective := workers
	if effective == 0 {
		effective = env.config.Workers
	}
	if effective > 0 {
		opts = append(opts, devutils.WithWorkerCount(effective))
	}

	return devutils.NewOrchestrator(cache, printer, env.logger, opts...)
}

func runLint(mode devutils.PassMode) error {
	env, err := newPassEnv()
	if err != nil {
		return err
	}
	defer env.closeLog()

	runner := devutils.NewToolRunner(devutils.NewExecCommander(), env.logger, env.root)
	cache := devutils.NewResultCache(env.fs, env.config.CacheFile("lint"), env.root, !noCache)
	printer := devutils.NewStatusPrinter(os.Stdout, env.root)

	orch, err := newOrchestrator(env, cache, printer, "[HAS_ISSUES]")
	if err != nil {
		return err
	}

	stats := devutils.NewStatistics("[HAS_ISSUES]")
	if err := orch.LintPass(env.fs, runner, devutils.DefaultLintLanguages(env.root), mode, stats); err != nil {
		return err
	}

	stats.PrintSummary(os.Stdout, string(mode))
	return finishPass(stats, mode)
}

func runFormat(mode devutils.PassMode) error {
	env, err := newPassEnv()
	if err != nil {
		return err
	}
	defer env.closeLog()

	runner := devutils.NewToolRunner(devutils.NewExecCommander(), env.logger, env.root)
	cache := devutils.NewResultCache(env.fs, env.config.CacheFile("format"), env.root, !noCache)
	printer := devutils.NewStatusPrinter(os.Stdout, env.root)

	orch, err := newOrchestrator(env, cache, printer, "[HAS_ISSUES]")
	if err != nil {
		return err
	}

	stats := devutils.NewStatistics("[HAS_ISSUES]")
	if err := orch.FormatPass(env.fs, runner, devutils.DefaultFormatLanguages(env.root), mode, stats); err != nil {
		return err
	}

	stats.PrintSummary(os.Stdout, string(mode))
	return finishPass(stats, mode)
}

func runLicense(mode devutils.PassMode) error {
	env, err := newPassEnv()
	if err != nil {
		return err
	}
	defer env.closeLog()

	cache := devutils.NewResultCache(env.fs, env.config.CacheFile("license"), env.root, !noCache)
	printer := devutils.NewStatusPrinter(os.Stdout, env.root)

	orch, err := newOrchestrator(env, cache, printer, "[HAS_ISSUES]")
	if err != nil {
		return err
	}

	stats := devutils.NewStatistics("[HAS_ISSUES]")
	languages := devutils.DefaultLicenseLanguages(env.fs, env.root)
	if err := orch.LicensePass(env.fs, devutils.NewExecCommander(), env.root, env.config.License, languages, mode, stats); err != nil {
		return err
	}

	stats.PrintSummary(os.Stdout, string(mode))
	return finishPass(stats, mode)
}

// finishPass prints the closing message and sets the process exit code:
// zero only when nothing is left to do.
func finishPass(stats *devutils.Statistics, mode devutils.PassMode) error {
	counts := stats.Counts()

	if mode == devutils.ModeFix {
		if counts.Errors > 0 {
			color.New(color.FgRed, color.Bold).Printf("\n%d file(s) could not be processed.\n", counts.Errors)
			os.Exit(1)
		}
		if counts.Fixed > 0 {
			color.New(color.FgGreen, color.Bold).Printf("\nSuccessfully fixed %d file(s)!\n", counts.Fixed)
		} else {
			color.New(color.FgGreen, color.Bold).Println("\nAll files already clean!")
		}
		return nil
	}

	if stats.HasFailures() {
		msg := fmt.Sprintf("\nFound problems in %d file(s).", counts.Issues+counts.Errors)
		color.New(color.FgRed, color.Bold).Println(msg)
		os.Exit(1)
	}

	color.New(color.FgGreen, color.Bold).Println("\nAll checks passed!")
	return nil
}
