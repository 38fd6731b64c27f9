package devutils

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	name string
	args []string
}

// fakeCommander records invocations and answers them through a
// caller-supplied function.
type fakeCommander struct {
	mu    sync.Mutex
	calls []fakeCall
	run   func(name string, args ...string) ([]byte, int, error)
}

func (f *fakeCommander) Run(name string, args ...string) ([]byte, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{name: name, args: args})
	f.mu.Unlock()

	if f.run != nil {
		return f.run(name, args...)
	}
	return nil, 0, nil
}

func (f *fakeCommander) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCommander) lastCall() fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func TestClassifyOutput(t *testing.T) {
	tests := []struct {
		name         string
		exitCode     int
		output       string
		exitCodeOnly bool
		want         Status
	}{
		{"clean run", 0, "", false, StatusOK},
		{"clean exit with warning text", 0, "a.cpp:3: warning: shadowed", false, StatusWarning},
		{"clean exit with note text", 0, "a.cpp:3: note: expanded here", false, StatusWarning},
		{"failed with error marker", 1, "a.cpp:3: error: expected ';'", false, StatusError},
		{"failed with traceback", 1, "Traceback (most recent call last):", false, StatusError},
		{"failed with assertion", 1, "Assertion failed: x != null", false, StatusError},
		{"failed with warning marker", 1, "a.cpp:3: warning: unused", false, StatusWarning},
		{"failed without markers", 1, "would reformat a.cpp", false, StatusIssue},
		{"error marker outranks warning marker", 1, "warning: x\nerror: y", false, StatusError},
		{"exit code only clean", 0, "", true, StatusOK},
		{"exit code only failure ignores markers", 1, "a.cpp:3: error: format", true, StatusIssue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := classifyOutput(tt.exitCode, tt.output, tt.exitCodeOnly)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRunCheckAppendsFile(t *testing.T) {
	commander := &fakeCommander{}
	runner := NewToolRunner(commander, nil, "/project")

	step := LintStep{Tool: "clang-tidy", CheckArgs: []string{"-p", "/project/build"}}
	res := runner.RunCheck(step, "/project/src/a.cpp")

	assert.Equal(t, StatusOK, res.Status)
	call := commander.lastCall()
	assert.Equal(t, "clang-tidy", call.name)
	assert.Equal(t, []string{"-p", "/project/build", "/project/src/a.cpp"}, call.args)
}

func TestRunCheckLaunchFailure(t *testing.T) {
	commander := &fakeCommander{
		run: func(string, ...string) ([]byte, int, error) {
			return nil, -1, errors.New("executable file not found")
		},
	}
	runner := NewToolRunner(commander, nil, "/project")

	res := runner.RunCheck(LintStep{Tool: "clang-tidy"}, "/project/src/a.cpp")

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "failed to run clang-tidy")
	assert.Contains(t, res.Message, "not found")
}

func TestRunFix(t *testing.T) {
	t.Run("not fixable never invokes", func(t *testing.T) {
		commander := &fakeCommander{}
		runner := NewToolRunner(commander, nil, "/project")

		assert.False(t, runner.RunFix(LintStep{Tool: "clang-check"}, "/project/src/a.cpp"))
		assert.Equal(t, 0, commander.callCount())
	})

	t.Run("zero exit succeeds", func(t *testing.T) {
		commander := &fakeCommander{}
		runner := NewToolRunner(commander, nil, "/project")

		step := LintStep{Tool: "clang-format", FixArgs: []string{"-i"}, CanFix: true}
		assert.True(t, runner.RunFix(step, "/project/src/a.cpp"))
		assert.Equal(t, []string{"-i", "/project/src/a.cpp"}, commander.lastCall().args)
	})

	t.Run("non-zero exit fails", func(t *testing.T) {
		commander := &fakeCommander{
			run: func(string, ...string) ([]byte, int, error) { return nil, 1, nil },
		}
		runner := NewToolRunner(commander, nil, "/project")

		assert.False(t, runner.RunFix(LintStep{Tool: "ruff", CanFix: true}, "/project/a.py"))
	})
}

func TestToolAvailable(t *testing.T) {
	commander := &fakeCommander{
		run: func(name string, args ...string) ([]byte, int, error) {
			if name == "clang-tidy" {
				return []byte("clang-tidy version 18"), 0, nil
			}
			return nil, -1, errors.New("executable file not found")
		},
	}
	runner := NewToolRunner(commander, nil, "/project")

	assert.True(t, runner.ToolAvailable("clang-tidy"))
	assert.False(t, runner.ToolAvailable("mypy"))
	assert.Equal(t, []string{"--version"}, commander.lastCall().args)
}

func TestRunPackageCheckCleanRun(t *testing.T) {
	commander := &fakeCommander{
		run: func(string, ...string) ([]byte, int, error) {
			return []byte("Success: no issues found"), 0, nil
		},
	}
	runner := NewToolRunner(commander, nil, "/project")

	files := []string{"/project/devutils/src/a.py", "/project/devutils/src/b.py"}
	results := runner.RunPackageCheck(LintStep{Tool: "mypy", PackageLevel: true}, files)

	require.Len(t, results, 2)
	for _, file := range files {
		assert.Equal(t, StatusOK, results[file].Status)
	}
	// One invocation for the whole set.
	assert.Equal(t, 1, commander.callCount())
}

func TestRunPackageCheckPartitionsOutput(t *testing.T) {
	output := "devutils/src/a.py:3: error: bad type\n" +
		"devutils/src/b.py:7: warning: unused variable\n"
	commander := &fakeCommander{
		run: func(string, ...string) ([]byte, int, error) {
			return []byte(output), 1, nil
		},
	}
	runner := NewToolRunner(commander, nil, "/project")

	files := []string{
		"/project/devutils/src/a.py",
		"/project/devutils/src/b.py",
		"/project/devutils/src/c.py",
	}
	results := runner.RunPackageCheck(LintStep{Tool: "mypy", PackageLevel: true}, files)

	assert.Equal(t, StatusError, results["/project/devutils/src/a.py"].Status)
	assert.Contains(t, results["/project/devutils/src/a.py"].Message, "bad type")
	assert.Equal(t, StatusWarning, results["/project/devutils/src/b.py"].Status)
	// A file the output never mentions is assumed clean even though the
	// overall run failed.
	assert.Equal(t, StatusOK, results["/project/devutils/src/c.py"].Status)
}

func TestRunPackageCheckDefaultsToIssue(t *testing.T) {
	commander := &fakeCommander{
		run: func(string, ...string) ([]byte, int, error) {
			return []byte("devutils/src/a.py:1:1: F401 imported but unused"), 1, nil
		},
	}
	runner := NewToolRunner(commander, nil, "/project")

	results := runner.RunPackageCheck(LintStep{Tool: "ruff", PackageLevel: true}, []string{"/project/devutils/src/a.py"})

	assert.Equal(t, StatusIssue, results["/project/devutils/src/a.py"].Status)
}

func TestRunPackageCheckLaunchFailure(t *testing.T) {
	commander := &fakeCommander{
		run: func(string, ...string) ([]byte, int, error) {
			return nil, -1, errors.New("executable file not found")
		},
	}
	runner := NewToolRunner(commander, nil, "/project")

	files := []string{"/project/devutils/src/a.py", "/project/devutils/src/b.py"}
	results := runner.RunPackageCheck(LintStep{Tool: "mypy", PackageLevel: true}, files)

	for _, file := range files {
		assert.Equal(t, StatusError, results[file].Status)
	}
}
