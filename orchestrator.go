package devutils

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// PassMode selects what a pass does with each file.
type PassMode string

const (
	ModeCheck PassMode = "check"
	ModeFix   PassMode = "fix"
)

var (
	colorOK      = color.New(color.FgGreen)
	colorIssue   = color.New(color.FgRed)
	colorWarning = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed)
	colorSkip    = color.New(color.FgCyan)
	// Worker crashes and failed fix attempts render yellow, distinct
	// from red error verdicts.
	colorFailure = color.New(color.FgYellow)
)

// Orchestrator drives one check or fix pass: package-level tools run once
// up front, then a bounded worker pool processes files independently. Per
// file, checkers run strictly in their configured order, each consulting
// the cache before invoking its tool.
type Orchestrator struct {
	cache    *ResultCache
	printer  *StatusPrinter
	logger   *slog.Logger
	workers  int
	issueTag string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator) error

// WithWorkerCount sets the worker pool size.
func WithWorkerCount(count int) OrchestratorOption {
	return func(o *Orchestrator) error {
		if count < 1 {
			return fmt.Errorf("worker count must be at least 1, got %d", count)
		}
		o.workers = count
		return nil
	}
}

// WithIssueTag overrides the tag printed for issue-level verdicts without
// a subtype, e.g. "[HAS_ISSUES]" for lint.
func WithIssueTag(tag string) OrchestratorOption {
	return func(o *Orchestrator) error {
		if tag == "" {
			return fmt.Errorf("issue tag must not be empty")
		}
		o.issueTag = tag
		return nil
	}
}

// NewOrchestrator creates an orchestrator over the given cache and
// printer. The worker count defaults to the number of CPUs.
func NewOrchestrator(cache *ResultCache, printer *StatusPrinter, logger *slog.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	o := &Orchestrator{
		cache:    cache,
		printer:  printer,
		logger:   ensureLogger(logger),
		workers:  runtime.NumCPU(),
		issueTag: "[ISSUE]",
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// packageRunKey identifies one package-level tool run within a pass.
func packageRunKey(category, tool string) string {
	return category + ":" + tool
}

// RunPass processes every file through the ordered checkers in the given
// mode, recording verdicts into stats. Package-level checkers are invoked
// synchronously before any worker starts, so workers only ever read their
// partitioned results.
func (o *Orchestrator) RunPass(category string, files []string, checkers []Checker, mode PassMode, stats *Statistics) {
	if len(files) == 0 {
		return
	}

	for _, checker := range checkers {
		if !checker.PackageLevel() {
			continue
		}
		runKey := packageRunKey(category, checker.Name())
		if o.cache.HasPackageResults(runKey) {
			continue
		}
		o.logger.Debug("Running package-level check", slog.String("tool", checker.Name()), slog.Int("files", len(files)))
		o.cache.SetPackageResults(runKey, checker.PackageCheck(files))
	}

	jobs := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				o.processFile(category, file, checkers, mode, stats)
			}
		}()
	}

	for _, file := range files {
		jobs <- file
	}
	close(jobs)
	wg.Wait()
}

// processFile dispatches one file by mode. A panic in a checker fails that
// file alone, never the pass.
func (o *Orchestrator) processFile(category, file string, checkers []Checker, mode PassMode, stats *Statistics) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Panic while processing file", slog.String("file", file), slog.Any("panic", r))
			o.printer.Status(colorFailure, "[ERROR]", file, fmt.Sprint(r))
			stats.RecordError()
		}
	}()

	if mode == ModeFix {
		o.fixFile(category, file, checkers, stats)
		return
	}
	o.checkFile(category, file, checkers, stats)
}

// resolve obtains one checker's verdict for a file, consulting the cache
// first. Fresh verdicts are stored back immediately; the returned bool
// reports a cache hit.
func (o *Orchestrator) resolve(category string, checker Checker, file string) (ToolResult, bool) {
	if entry, ok := o.cache.Lookup(category, checker.Name(), file); ok {
		return resultFromEntry(checker.Name(), entry), true
	}

	var res ToolResult
	if checker.PackageLevel() {
		var ok bool
		res, ok = o.cache.PackageResult(packageRunKey(category, checker.Name()), file)
		if !ok {
			res = ToolResult{Tool: checker.Name(), Status: StatusError, Message: "no package-level result for file"}
		}
	} else {
		res = checker.Check(file)
	}

	o.cache.Store(category, checker.Name(), file, entryFromResult(res))
	return res, false
}

func (o *Orchestrator) checkFile(category, file string, checkers []Checker, stats *Statistics) {
	results := make([]ToolResult, 0, len(checkers))
	cachedCount := 0

	for _, checker := range checkers {
		res, cached := o.resolve(category, checker, file)
		if cached {
			cachedCount++
		}
		results = append(results, res)
	}

	final := AggregateResults(file, results)
	o.printCheckResult(final, cachedCount == len(checkers))
	stats.Record(final)
}

// printCheckResult maps an aggregated verdict to its tag line. Cached
// verdicts are tagged distinctly so a user can tell reused results from
// fresh ones at a glance.
func (o *Orchestrator) printCheckResult(final FileResult, cached bool) {
	var (
		c   *color.Color
		tag string
	)

	switch final.Status {
	case StatusOK:
		c, tag = colorOK, "[OK]"
		if cached {
			tag = "[CACHED:OK]"
		}
	case StatusWarning:
		c, tag = colorWarning, "[WARNING]"
		if cached {
			tag = "[CACHED:WARNING]"
		}
	case StatusIssue:
		c = colorIssue
		switch {
		case cached && final.Detail != "":
			tag = "[CACHED:" + strings.ToUpper(final.Detail) + "]"
		case cached:
			tag = "[CACHED:ISSUE]"
		case final.Detail != "":
			tag = "[" + strings.ToUpper(final.Detail) + "]"
		default:
			tag = o.issueTag
		}
	default:
		c, tag = colorError, "[ERROR]"
		if cached {
			tag = "[CACHED:ERROR]"
		}
	}

	message := ""
	if final.Status != StatusOK {
		message = final.Message
	}
	o.printer.Status(c, tag, final.Path, message)
}

// fixFile checks each step in order and applies fixes where possible.
// Steps after an error-level verdict are not attempted, since a later
// step's result would be unreliable against a file an earlier tool could
// not even process.
func (o *Orchestrator) fixFile(category, file string, checkers []Checker, stats *Statistics) {
	var (
		hadFindings bool
		allFixed    = true
		failed      bool
		messages    []string
		cachedCount int
	)

steps:
	for _, checker := range checkers {
		res, cached := o.resolve(category, checker, file)
		if cached {
			cachedCount++
		}

		switch res.Status {
		case StatusError:
			failed = true
			if res.Message != "" {
				messages = append(messages, "["+checker.Name()+"]\n"+res.Message)
			}
			break steps
		case StatusIssue, StatusWarning:
			hadFindings = true
			if !checker.CanFix() {
				allFixed = false
				if res.Message != "" {
					messages = append(messages, "["+checker.Name()+"]\n"+res.Message)
				}
				continue
			}
			if checker.Fix(file) {
				// The file just changed; re-cache it as clean under its
				// new mtime so the next pass skips it.
				o.cache.Store(category, checker.Name(), file, entryFromResult(ToolResult{
					Tool:   checker.Name(),
					Status: StatusOK,
					Year:   res.Year,
				}))
			} else {
				allFixed = false
				if res.Message != "" {
					messages = append(messages, "["+checker.Name()+"]\n"+res.Message)
				}
			}
		}
	}

	message := strings.Join(messages, "\n")

	switch {
	case failed:
		o.printer.Status(colorFailure, "[ERROR]", file, message)
		stats.RecordError()
	case !hadFindings:
		tag := "[SKIP]"
		if cachedCount == len(checkers) {
			tag = "[CACHED:SKIP]"
		}
		o.printer.Status(colorSkip, tag, file, "")
		stats.RecordFix(false)
	case allFixed:
		o.printer.Status(colorOK, "[FIXED]", file, "")
		stats.RecordFix(true)
	default:
		o.printer.Status(colorWarning, "[PARTIAL]", file, message)
		stats.RecordFix(false)
	}
}
