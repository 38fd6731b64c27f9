package devutils

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/afero"
)

var (
	headingColor   = color.New(color.FgCyan, color.Bold)
	preflightColor = color.New(color.FgRed, color.Bold)
)

// preflight probes every required tool once, before any file processing.
// A single missing tool fails the whole pass up front rather than file by
// file.
func (o *Orchestrator) preflight(runner *ToolRunner, tools []string) error {
	for _, tool := range tools {
		if runner.ToolAvailable(tool) {
			continue
		}
		o.printer.Line(preflightColor, fmt.Sprintf("\nError: %s is not available. Please ensure it is installed.", tool))
		return NewConfigError("required tool not found: "+tool, nil)
	}
	return nil
}

// flushCache persists the store. Failures degrade to a warning; a cache
// problem never changes the pass outcome.
func (o *Orchestrator) flushCache() {
	if err := o.cache.Flush(); err != nil {
		o.logger.Warn("Failed to persist cache", slog.String("error", err.Error()))
	}
}

// LintPass drives a full lint check or fix: every language's tools are
// probed first, then each language's collected files run through the
// engine in configured order. The cache is flushed back even when the
// pass stops early.
func (o *Orchestrator) LintPass(fs afero.Fs, runner *ToolRunner, languages []LintLanguage, mode PassMode, stats *Statistics) error {
	defer o.flushCache()

	var tools []string
	for _, lang := range languages {
		for _, step := range lang.Steps {
			tools = append(tools, step.Tool)
		}
	}
	if err := o.preflight(runner, tools); err != nil {
		return err
	}

	for _, lang := range languages {
		files := lang.Collect(fs)
		if len(files) == 0 {
			continue
		}

		verb := "Linting"
		if mode == ModeFix {
			verb = "Fixing"
		}
		o.printer.Line(headingColor, fmt.Sprintf("\n%s %s files...", verb, lang.Name))

		checkers := make([]Checker, 0, len(lang.Steps))
		for _, step := range lang.Steps {
			checkers = append(checkers, NewToolChecker(runner, step))
		}
		o.RunPass(lang.Name, files, checkers, mode, stats)
	}

	return nil
}

// FormatPass drives a full formatter check or fix over every language.
func (o *Orchestrator) FormatPass(fs afero.Fs, runner *ToolRunner, languages []FormatLanguage, mode PassMode, stats *Statistics) error {
	defer o.flushCache()

	var tools []string
	for _, lang := range languages {
		tools = append(tools, lang.Tool)
	}
	if err := o.preflight(runner, tools); err != nil {
		return err
	}

	for _, lang := range languages {
		files := lang.Collect(fs)
		if len(files) == 0 {
			continue
		}

		verb := "Checking"
		if mode == ModeFix {
			verb = "Formatting"
		}
		o.printer.Line(headingColor, fmt.Sprintf("\n%s %s formatting...", verb, lang.Name))

		checkers := []Checker{NewToolChecker(runner, lang.Step())}
		o.RunPass("format", files, checkers, mode, stats)
	}

	return nil
}

// LicensePass drives a license header check or fix over every language.
// No external tool is required, so there is nothing to preflight; git
// lookups degrade to the current year on their own.
func (o *Orchestrator) LicensePass(fs afero.Fs, commander Commander, root string, license LicenseConfig, languages []LicenseLanguage, mode PassMode, stats *Statistics) error {
	defer o.flushCache()

	for _, lang := range languages {
		files := lang.Collect(fs)
		if len(files) == 0 {
			continue
		}

		verb := "Checking"
		if mode == ModeFix {
			verb = "Fixing"
		}
		o.printer.Line(headingColor, fmt.Sprintf("\n%s license headers in %s files...", verb, lang.Name))

		checker := NewHeaderChecker(fs, commander, lang.Name, lang.CommentPrefix, license, root)
		o.RunPass("license", files, []Checker{checker}, mode, stats)
	}

	return nil
}
