package devutils

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Statistics accumulates per-run counters. It is mutated by many
// concurrent workers, so every mutating operation takes the lock; reads
// through Counts return a consistent snapshot.
type Statistics struct {
	mu         sync.Mutex
	total      int
	ok         int
	warnings   int
	issues     int
	errors     int
	fixed      int
	skipped    int
	issueKinds map[string]int
	issueLabel string
}

// StatsCounts is a point-in-time copy of the counters.
type StatsCounts struct {
	Total    int
	OK       int
	Warnings int
	Issues   int
	Errors   int
	Fixed    int
	Skipped  int
}

// NewStatistics creates an empty counter set. issueLabel is the tag
// rendered for the issue counter in the summary (e.g. "[HAS_ISSUES]").
func NewStatistics(issueLabel string) *Statistics {
	if issueLabel == "" {
		issueLabel = "[ISSUE]"
	}
	return &Statistics{
		issueKinds: make(map[string]int),
		issueLabel: issueLabel,
	}
}

// Record counts one aggregated file verdict (check mode).
func (s *Statistics) Record(result FileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	switch result.Status {
	case StatusOK:
		s.ok++
	case StatusWarning:
		s.warnings++
	case StatusIssue:
		s.issues++
		if result.Detail != "" {
			s.issueKinds[result.Detail]++
		}
	case StatusError:
		s.errors++
	}
}

// RecordFix counts one fix-mode file outcome: fixed when anything was
// applied, skipped otherwise.
func (s *Statistics) RecordFix(applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if applied {
		s.fixed++
	} else {
		s.skipped++
	}
}

// RecordError counts a file whose processing failed outright.
func (s *Statistics) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.errors++
}

// Counts returns a snapshot of the counters.
func (s *Statistics) Counts() StatsCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatsCounts{
		Total:    s.total,
		OK:       s.ok,
		Warnings: s.warnings,
		Issues:   s.issues,
		Errors:   s.errors,
		Fixed:    s.fixed,
		Skipped:  s.skipped,
	}
}

// HasFailures reports whether the run must fail: any unresolved issue or
// any tool error.
func (s *Statistics) HasFailures() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issues > 0 || s.errors > 0
}

// PrintSummary renders the fixed-width banner followed by every non-zero
// counter for the given mode.
func (s *Statistics) PrintSummary(w io.Writer, mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	banner := strings.Repeat("=", 60)
	cyan := color.New(color.FgCyan)
	cyanBold := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w)
	fmt.Fprintln(w, cyan.Sprint(banner))
	fmt.Fprintln(w, cyanBold.Sprintf("Summary (%s mode)", mode))
	fmt.Fprintln(w, cyan.Sprint(banner))
	fmt.Fprintf(w, "Total files checked: %d\n", s.total)

	switch mode {
	case "fix":
		fmt.Fprintf(w, "  %s    %d\n", green.Sprint("[FIXED]"), s.fixed)
		fmt.Fprintf(w, "  %s  %d\n", cyan.Sprint("[SKIPPED]"), s.skipped)
		if s.errors > 0 {
			fmt.Fprintf(w, "  %s    %d\n", yellow.Sprint("[ERROR]"), s.errors)
		}
	default:
		fmt.Fprintf(w, "  %s          %d\n", green.Sprint("[OK]"), s.ok)
		if len(s.issueKinds) > 0 {
			kinds := make([]string, 0, len(s.issueKinds))
			for kind := range s.issueKinds {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				tag := "[" + strings.ToUpper(kind) + "]"
				fmt.Fprintf(w, "  %s   %d\n", red.Sprint(tag), s.issueKinds[kind])
			}
		} else if s.issues > 0 {
			fmt.Fprintf(w, "  %s %d\n", red.Sprint(s.issueLabel), s.issues)
		}
		if s.warnings > 0 {
			fmt.Fprintf(w, "  %s     %d\n", yellow.Sprint("[WARNING]"), s.warnings)
		}
		if s.errors > 0 {
			fmt.Fprintf(w, "  %s       %d\n", yellow.Sprint("[ERROR]"), s.errors)
		}
	}

	fmt.Fprintln(w, cyan.Sprint(banner))
}
