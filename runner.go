package devutils

import (
	"errors"
	"log/slog"
	"os/exec"
	"strings"
)

// Commander invokes an external tool and reports its combined
// stdout+stderr and exit code. The indirection keeps subprocess execution
// out of the orchestration logic so tests can substitute a fake.
// A non-nil error means the tool could not be launched at all; a tool
// that ran and failed comes back with a non-zero exit code and a nil
// error.
type Commander interface {
	Run(name string, args ...string) (output []byte, exitCode int, err error)
}

type execCommander struct{}

// NewExecCommander returns a Commander backed by os/exec.
func NewExecCommander() Commander {
	return execCommander{}
}

func (execCommander) Run(name string, args ...string) ([]byte, int, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, exitErr.ExitCode(), nil
		}
		return out, -1, err
	}
	return out, 0, nil
}

// ToolRunner invokes external checking and fixing tools and classifies
// their output into verdicts. The wrapped tools expose no common
// machine-readable protocol, only an exit code and free-form text, so
// classification is marker-substring matching and lives entirely here.
// New marker rules are addable without touching orchestration logic.
type ToolRunner struct {
	commander Commander
	logger    *slog.Logger
	root      string
}

// NewToolRunner creates a runner. Paths in diagnostics and package-level
// output partitioning are matched relative to root.
func NewToolRunner(commander Commander, logger *slog.Logger, root string) *ToolRunner {
	return &ToolRunner{
		commander: commander,
		logger:    ensureLogger(logger),
		root:      root,
	}
}

// ensureLogger creates a default logger if none is provided
func ensureLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ToolAvailable probes a tool with --version. Every required tool is
// probed once before any file processing begins; a missing tool is fatal
// for the whole command.
func (r *ToolRunner) ToolAvailable(tool string) bool {
	_, exitCode, err := r.commander.Run(tool, "--version")
	return err == nil && exitCode == 0
}

// RunCheck invokes one per-file check and classifies the outcome.
func (r *ToolRunner) RunCheck(step LintStep, file string) ToolResult {
	args := append(append([]string{}, step.CheckArgs...), file)
	out, exitCode, err := r.commander.Run(step.Tool, args...)
	if err != nil {
		r.logger.Error("Failed to run tool", slog.String("tool", step.Tool), slog.String("file", file), slog.String("error", err.Error()))
		toolErr := WithFile(NewToolError("failed to run "+step.Tool, err), file)
		return ToolResult{Tool: step.Tool, Status: StatusError, Message: toolErr.Error()}
	}

	output := strings.TrimSpace(string(out))
	status, message := classifyOutput(exitCode, output, step.ExitCodeOnly)
	return ToolResult{Tool: step.Tool, Status: status, Message: message}
}

// RunFix re-invokes a fixable tool with its fix arguments. Success is
// judged purely by exit code. A step not marked fixable never applies.
func (r *ToolRunner) RunFix(step LintStep, file string) bool {
	if !step.CanFix {
		return false
	}

	args := append(append([]string{}, step.FixArgs...), file)
	_, exitCode, err := r.commander.Run(step.Tool, args...)
	if err != nil {
		r.logger.Error("Failed to run fixer", slog.String("tool", step.Tool), slog.String("file", file), slog.String("error", err.Error()))
		return false
	}
	return exitCode == 0
}

// RunPackageCheck invokes a package-level tool once over the whole target
// set and partitions its combined output per file by matching each file's
// relative path against the output lines. A file not mentioned in the
// output is assumed clean even when the overall run failed; a tool that
// crashed before reaching a file therefore misclassifies it as OK.
// Partitioning any better would require tool-specific structured output
// parsing.
func (r *ToolRunner) RunPackageCheck(step LintStep, files []string) map[string]ToolResult {
	out, exitCode, err := r.commander.Run(step.Tool, step.CheckArgs...)
	if err != nil {
		r.logger.Error("Failed to run package-level tool", slog.String("tool", step.Tool), slog.String("error", err.Error()))
		toolErr := NewToolError("failed to run "+step.Tool, err)
		results := make(map[string]ToolResult, len(files))
		for _, file := range files {
			results[file] = ToolResult{Tool: step.Tool, Status: StatusError, Message: toolErr.Error()}
		}
		return results
	}

	output := string(out)
	outputLower := strings.ToLower(output)
	lines := strings.Split(output, "\n")

	results := make(map[string]ToolResult, len(files))
	for _, file := range files {
		if exitCode == 0 {
			results[file] = ToolResult{Tool: step.Tool, Status: StatusOK}
			continue
		}

		rel := RelPath(r.root, file)
		var fileLines []string
		for _, line := range lines {
			if strings.Contains(line, rel) || strings.Contains(line, file) {
				fileLines = append(fileLines, line)
			}
		}

		if len(fileLines) == 0 {
			// Absence of mention means assumed clean.
			results[file] = ToolResult{Tool: step.Tool, Status: StatusOK}
			continue
		}

		relevant := strings.Join(fileLines, "\n")
		relevantLower := strings.ToLower(relevant)
		switch {
		case strings.Contains(relevantLower, "error:") ||
			strings.Contains(outputLower, "traceback") ||
			strings.Contains(outputLower, "assertion"):
			results[file] = ToolResult{Tool: step.Tool, Status: StatusError, Message: relevant}
		case strings.Contains(relevantLower, "warning:") || strings.Contains(relevantLower, "note:"):
			results[file] = ToolResult{Tool: step.Tool, Status: StatusWarning, Message: relevant}
		default:
			results[file] = ToolResult{Tool: step.Tool, Status: StatusIssue, Message: relevant}
		}
	}

	return results
}

// classifyOutput maps an exit code and combined output onto a status.
// With exitCodeOnly set (formatters), markers are ignored and any
// non-zero exit is a plain issue.
func classifyOutput(exitCode int, output string, exitCodeOnly bool) (Status, string) {
	if exitCodeOnly {
		if exitCode == 0 {
			return StatusOK, ""
		}
		return StatusIssue, output
	}

	outputLower := strings.ToLower(output)
	hasError := strings.Contains(outputLower, "error:") ||
		strings.Contains(outputLower, "traceback") ||
		strings.Contains(outputLower, "assertion")
	hasWarning := strings.Contains(outputLower, "warning:") || strings.Contains(outputLower, "note:")

	if exitCode == 0 {
		if hasWarning {
			return StatusWarning, output
		}
		return StatusOK, ""
	}

	switch {
	case hasError:
		return StatusError, output
	case hasWarning:
		return StatusWarning, output
	default:
		return StatusIssue, output
	}
}
