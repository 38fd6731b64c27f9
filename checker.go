package devutils

// Checker is one logical check applied to files of a language category.
// Per-file checkers are invoked once per file; package-level checkers are
// invoked once over the whole file set and their output partitioned per
// file. Modeling the duality here keeps tool-name string comparisons out
// of the orchestration logic.
type Checker interface {
	// Name identifies the checker within its category; it forms the
	// middle segment of cache keys and tags diagnostic messages.
	Name() string

	// CanFix reports whether Fix is able to resolve issue-level findings.
	CanFix() bool

	// PackageLevel reports whether the checker runs once per file set
	// rather than once per file.
	PackageLevel() bool

	// Check runs the checker against one file.
	Check(file string) ToolResult

	// PackageCheck runs the checker once over the whole set and returns
	// one verdict per file. Only called when PackageLevel is true.
	PackageCheck(files []string) map[string]ToolResult

	// Fix attempts to resolve the checker's findings in place and
	// reports whether anything was applied.
	Fix(file string) bool
}

// toolChecker adapts a LintStep to the Checker interface via a
// ToolRunner.
type toolChecker struct {
	step   LintStep
	runner *ToolRunner
}

// NewToolChecker wraps an external tool step as a Checker.
func NewToolChecker(runner *ToolRunner, step LintStep) Checker {
	return &toolChecker{step: step, runner: runner}
}

func (c *toolChecker) Name() string       { return c.step.Tool }
func (c *toolChecker) CanFix() bool       { return c.step.CanFix }
func (c *toolChecker) PackageLevel() bool { return c.step.PackageLevel }

func (c *toolChecker) Check(file string) ToolResult {
	return c.runner.RunCheck(c.step, file)
}

func (c *toolChecker) PackageCheck(files []string) map[string]ToolResult {
	return c.runner.RunPackageCheck(c.step, files)
}

func (c *toolChecker) Fix(file string) bool {
	return c.runner.RunFix(c.step, file)
}
