package devutils

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChecker is a scriptable Checker for orchestration tests.
type fakeChecker struct {
	name     string
	canFix   bool
	pkgLevel bool
	fixOK    bool
	result   ToolResult
	results  map[string]ToolResult // per-file overrides
	panicOn  string

	mu        sync.Mutex
	checks    int
	pkgChecks int
	fixes     []string
}

func (c *fakeChecker) Name() string       { return c.name }
func (c *fakeChecker) CanFix() bool       { return c.canFix }
func (c *fakeChecker) PackageLevel() bool { return c.pkgLevel }

func (c *fakeChecker) Check(file string) ToolResult {
	c.mu.Lock()
	c.checks++
	c.mu.Unlock()

	if file == c.panicOn {
		panic("checker blew up")
	}

	res := c.result
	if override, ok := c.results[file]; ok {
		res = override
	}
	res.Tool = c.name
	return res
}

func (c *fakeChecker) PackageCheck(files []string) map[string]ToolResult {
	c.mu.Lock()
	c.pkgChecks++
	c.mu.Unlock()

	out := make(map[string]ToolResult, len(files))
	for _, file := range files {
		res := c.result
		if override, ok := c.results[file]; ok {
			res = override
		}
		res.Tool = c.name
		out[file] = res
	}
	return out
}

func (c *fakeChecker) Fix(file string) bool {
	c.mu.Lock()
	c.fixes = append(c.fixes, file)
	c.mu.Unlock()
	return c.fixOK
}

func (c *fakeChecker) checkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks
}

func (c *fakeChecker) fixCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fixes)
}

func newTestOrchestrator(t *testing.T, cache *ResultCache, out io.Writer, workers int) *Orchestrator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := NewOrchestrator(cache, NewStatusPrinter(out, "/project"), logger,
		WithWorkerCount(workers), WithIssueTag("[HAS_ISSUES]"))
	require.NoError(t, err)
	return orch
}

func TestRunPassCachesVerdicts(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{"/project/src/a.cpp", "/project/src/b.cpp"}
	writeFiles(t, fs, files...)

	cache := newTestCache(t, fs, true)
	var out bytes.Buffer
	orch := newTestOrchestrator(t, cache, &out, 2)
	checker := &fakeChecker{name: "clang-tidy", result: ToolResult{Status: StatusOK}}

	stats := NewStatistics("[HAS_ISSUES]")
	orch.RunPass("lint", files, []Checker{checker}, ModeCheck, stats)

	assert.Equal(t, 2, checker.checkCount())
	assert.Equal(t, 2, stats.Counts().OK)
	assert.Contains(t, out.String(), "[OK] src/a.cpp")

	// Unchanged files are served entirely from the cache.
	out.Reset()
	stats = NewStatistics("[HAS_ISSUES]")
	orch.RunPass("lint", files, []Checker{checker}, ModeCheck, stats)

	assert.Equal(t, 2, checker.checkCount())
	assert.Equal(t, 2, stats.Counts().OK)
	assert.Contains(t, out.String(), "[CACHED:OK] src/a.cpp")
}

func TestRunPassRechecksAfterMtimeChange(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{"/project/src/a.cpp", "/project/src/b.cpp"}
	writeFiles(t, fs, files...)

	cache := newTestCache(t, fs, true)
	orch := newTestOrchestrator(t, cache, io.Discard, 2)
	checker := &fakeChecker{name: "clang-tidy", result: ToolResult{Status: StatusOK}}

	orch.RunPass("lint", files, []Checker{checker}, ModeCheck, NewStatistics(""))
	require.NoError(t, fs.Chtimes("/project/src/a.cpp", time.Now(), time.Now().Add(time.Hour)))
	orch.RunPass("lint", files, []Checker{checker}, ModeCheck, NewStatistics(""))

	// Only the touched file was re-checked.
	assert.Equal(t, 3, checker.checkCount())
}

func TestRunPassDisabledCacheAlwaysRechecks(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{"/project/src/a.cpp"}
	writeFiles(t, fs, files...)

	cache := newTestCache(t, fs, false)
	orch := newTestOrchestrator(t, cache, io.Discard, 1)
	checker := &fakeChecker{name: "clang-tidy", result: ToolResult{Status: StatusOK}}

	orch.RunPass("lint", files, []Checker{checker}, ModeCheck, NewStatistics(""))
	orch.RunPass("lint", files, []Checker{checker}, ModeCheck, NewStatistics(""))

	assert.Equal(t, 2, checker.checkCount())
}

func TestRunPassWorkerCountDoesNotChangeResults(t *testing.T) {
	fs := afero.NewMemMapFs()
	var files []string
	for i := 0; i < 100; i++ {
		files = append(files, fmt.Sprintf("/project/src/f%03d.cpp", i))
	}
	writeFiles(t, fs, files...)

	issues := map[string]ToolResult{
		files[10]: {Status: StatusIssue, Message: "bad"},
		files[42]: {Status: StatusIssue, Message: "bad"},
		files[77]: {Status: StatusWarning, Message: "meh"},
	}

	runWith := func(workers int) StatsCounts {
		cache := newTestCache(t, afero.NewMemMapFs(), false)
		orch := newTestOrchestrator(t, cache, io.Discard, workers)
		checker := &fakeChecker{name: "clang-tidy", result: ToolResult{Status: StatusOK}, results: issues}
		stats := NewStatistics("")
		orch.RunPass("lint", files, []Checker{checker}, ModeCheck, stats)
		return stats.Counts()
	}

	serial := runWith(1)
	parallel := runWith(8)

	assert.Equal(t, serial, parallel)
	assert.Equal(t, 100, serial.Total)
	assert.Equal(t, 2, serial.Issues)
	assert.Equal(t, 1, serial.Warnings)
	assert.Equal(t, 97, serial.OK)
}

func TestRunPassStepsRunInOrderPerFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/project/src/a.cpp")

	var order []string
	var mu sync.Mutex
	mk := func(name string) Checker {
		return &recordingChecker{name: name, order: &order, mu: &mu}
	}

	cache := newTestCache(t, fs, false)
	orch := newTestOrchestrator(t, cache, io.Discard, 4)
	orch.RunPass("lint", []string{"/project/src/a.cpp"}, []Checker{mk("first"), mk("second"), mk("third")}, ModeCheck, NewStatistics(""))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

type recordingChecker struct {
	name  string
	order *[]string
	mu    *sync.Mutex
}

func (c *recordingChecker) Name() string       { return c.name }
func (c *recordingChecker) CanFix() bool       { return false }
func (c *recordingChecker) PackageLevel() bool { return false }
func (c *recordingChecker) Fix(string) bool    { return false }

func (c *recordingChecker) Check(file string) ToolResult {
	c.mu.Lock()
	*c.order = append(*c.order, c.name)
	c.mu.Unlock()
	return ToolResult{Tool: c.name, Status: StatusOK}
}

func (c *recordingChecker) PackageCheck(files []string) map[string]ToolResult {
	return nil
}

func TestRunPassPackageLevelRunsOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{"/project/devutils/src/a.py", "/project/devutils/src/b.py"}
	writeFiles(t, fs, files...)

	cache := newTestCache(t, fs, true)
	var out bytes.Buffer
	orch := newTestOrchestrator(t, cache, &out, 2)
	checker := &fakeChecker{
		name:     "mypy",
		pkgLevel: true,
		result:   ToolResult{Status: StatusOK},
		results: map[string]ToolResult{
			files[1]: {Status: StatusIssue, Message: "bad type"},
		},
	}

	stats := NewStatistics("[HAS_ISSUES]")
	orch.RunPass("lint", files, []Checker{checker}, ModeCheck, stats)

	assert.Equal(t, 1, checker.pkgChecks)
	assert.Equal(t, 0, checker.checkCount())
	assert.Equal(t, 1, stats.Counts().OK)
	assert.Equal(t, 1, stats.Counts().Issues)
	assert.Contains(t, out.String(), "[HAS_ISSUES] devutils/src/b.py")
}

func TestRunPassAggregatesAcrossSteps(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/project/src/a.cpp")

	cache := newTestCache(t, fs, false)
	var out bytes.Buffer
	orch := newTestOrchestrator(t, cache, &out, 1)

	tidy := &fakeChecker{name: "clang-tidy", result: ToolResult{Status: StatusWarning, Message: "shadowed"}}
	check := &fakeChecker{name: "clang-check", result: ToolResult{Status: StatusIssue, Message: "leak"}}

	stats := NewStatistics("[HAS_ISSUES]")
	orch.RunPass("lint", []string{"/project/src/a.cpp"}, []Checker{tidy, check}, ModeCheck, stats)

	assert.Equal(t, 1, stats.Counts().Issues)
	assert.Contains(t, out.String(), "[HAS_ISSUES] src/a.cpp")
	assert.Contains(t, out.String(), "[clang-tidy]\nshadowed")
	assert.Contains(t, out.String(), "[clang-check]\nleak")
}

func TestRunPassPanicFailsOnlyThatFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{"/project/src/a.cpp", "/project/src/b.cpp"}
	writeFiles(t, fs, files...)

	cache := newTestCache(t, fs, false)
	orch := newTestOrchestrator(t, cache, io.Discard, 1)
	checker := &fakeChecker{name: "clang-tidy", result: ToolResult{Status: StatusOK}, panicOn: "/project/src/a.cpp"}

	stats := NewStatistics("")
	orch.RunPass("lint", files, []Checker{checker}, ModeCheck, stats)

	counts := stats.Counts()
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.Errors)
	assert.Equal(t, 1, counts.OK)
}

func TestFixPassAppliesAndRecaches(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{"/project/src/a.cpp"}
	writeFiles(t, fs, files...)

	cache := newTestCache(t, fs, true)
	var out bytes.Buffer
	orch := newTestOrchestrator(t, cache, &out, 1)
	checker := &fakeChecker{
		name:   "clang-format",
		canFix: true,
		fixOK:  true,
		result: ToolResult{Status: StatusIssue, Message: "would reformat"},
	}

	stats := NewStatistics("")
	orch.RunPass("format", files, []Checker{checker}, ModeFix, stats)

	assert.Equal(t, 1, checker.fixCount())
	assert.Equal(t, 1, stats.Counts().Fixed)
	assert.Contains(t, out.String(), "[FIXED] src/a.cpp")

	// The fixed verdict is cached as clean, so the next fix pass skips.
	out.Reset()
	stats = NewStatistics("")
	orch.RunPass("format", files, []Checker{checker}, ModeFix, stats)

	assert.Equal(t, 1, checker.fixCount())
	assert.Equal(t, 1, stats.Counts().Skipped)
	assert.Contains(t, out.String(), "[CACHED:SKIP] src/a.cpp")
}

func TestFixPassCleanFileSkips(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/project/src/a.cpp")

	cache := newTestCache(t, fs, false)
	var out bytes.Buffer
	orch := newTestOrchestrator(t, cache, &out, 1)
	checker := &fakeChecker{name: "clang-format", canFix: true, fixOK: true, result: ToolResult{Status: StatusOK}}

	stats := NewStatistics("")
	orch.RunPass("format", []string{"/project/src/a.cpp"}, []Checker{checker}, ModeFix, stats)

	assert.Equal(t, 0, checker.fixCount())
	assert.Equal(t, 1, stats.Counts().Skipped)
	assert.Contains(t, out.String(), "[SKIP] src/a.cpp")
}

func TestFixPassUnfixableFindingIsPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/project/src/a.cpp")

	cache := newTestCache(t, fs, false)
	var out bytes.Buffer
	orch := newTestOrchestrator(t, cache, &out, 1)

	fixable := &fakeChecker{name: "clang-tidy", canFix: true, fixOK: true, result: ToolResult{Status: StatusIssue, Message: "fixable"}}
	unfixable := &fakeChecker{name: "clang-check", result: ToolResult{Status: StatusIssue, Message: "needs a human"}}

	stats := NewStatistics("")
	orch.RunPass("lint", []string{"/project/src/a.cpp"}, []Checker{fixable, unfixable}, ModeFix, stats)

	assert.Equal(t, 1, fixable.fixCount())
	assert.Equal(t, 1, stats.Counts().Skipped)
	assert.Contains(t, out.String(), "[PARTIAL] src/a.cpp")
	assert.Contains(t, out.String(), "needs a human")
}

func TestFixPassErrorStopsLaterSteps(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/project/src/a.cpp")

	cache := newTestCache(t, fs, false)
	var out bytes.Buffer
	orch := newTestOrchestrator(t, cache, &out, 1)

	broken := &fakeChecker{name: "clang-tidy", result: ToolResult{Status: StatusError, Message: "cannot parse"}}
	later := &fakeChecker{name: "clang-check", result: ToolResult{Status: StatusOK}}

	stats := NewStatistics("")
	orch.RunPass("lint", []string{"/project/src/a.cpp"}, []Checker{broken, later}, ModeFix, stats)

	assert.Equal(t, 0, later.checkCount())
	assert.Equal(t, 1, stats.Counts().Errors)
	assert.Contains(t, out.String(), "[ERROR] src/a.cpp")
}

func TestCheckPassLicenseDetailTags(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{"/project/src/a.cpp", "/project/src/b.cpp"}
	writeFiles(t, fs, files...)

	cache := newTestCache(t, fs, true)
	var out bytes.Buffer
	orch := newTestOrchestrator(t, cache, &out, 1)
	checker := &fakeChecker{
		name: "C/C++",
		results: map[string]ToolResult{
			files[0]: {Status: StatusIssue, Message: "license header is missing", Detail: "missing"},
			files[1]: {Status: StatusIssue, Message: "license header is incorrect", Detail: "incorrect"},
		},
	}

	orch.RunPass("license", files, []Checker{checker}, ModeCheck, NewStatistics(""))
	assert.Contains(t, out.String(), "[MISSING] src/a.cpp")
	assert.Contains(t, out.String(), "[INCORRECT] src/b.cpp")

	// Cached verdicts keep the subtype in their tag.
	out.Reset()
	orch.RunPass("license", files, []Checker{checker}, ModeCheck, NewStatistics(""))
	assert.Contains(t, out.String(), "[CACHED:MISSING] src/a.cpp")
	assert.Contains(t, out.String(), "[CACHED:INCORRECT] src/b.cpp")
}

func TestStatusColorPalette(t *testing.T) {
	assert.True(t, colorOK.Equals(color.New(color.FgGreen)))
	assert.True(t, colorWarning.Equals(color.New(color.FgYellow)))
	assert.True(t, colorIssue.Equals(color.New(color.FgRed)))
	assert.True(t, colorError.Equals(color.New(color.FgRed)))
	assert.True(t, colorSkip.Equals(color.New(color.FgCyan)))
	// Worker crashes and failed fixes render yellow, not the red of an
	// error verdict.
	assert.True(t, colorFailure.Equals(color.New(color.FgYellow)))
}

func TestNewOrchestratorRejectsBadOptions(t *testing.T) {
	cache := newTestCache(t, afero.NewMemMapFs(), false)
	printer := NewStatusPrinter(io.Discard, "/project")

	_, err := NewOrchestrator(cache, printer, nil, WithWorkerCount(0))
	assert.Error(t, err)

	_, err = NewOrchestrator(cache, printer, nil, WithIssueTag(""))
	assert.Error(t, err)
}
