package devutils

import (
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// HeaderChecker verifies and repairs SPDX license headers. It implements
// Checker so license passes run through the same orchestration engine as
// the tool-backed checks, but it reads files directly instead of invoking
// a subprocess. The checker name is the language name, so cache keys come
// out as "license:<language>:<relative-path>".
type HeaderChecker struct {
	fs        afero.Fs
	commander Commander
	language  string
	prefix    string
	license   LicenseConfig
	root      string

	yearMu sync.Mutex
	years  map[string]int
}

// NewHeaderChecker creates a header checker for one language category.
// commander is used to ask git for each file's first-commit year.
func NewHeaderChecker(fsys afero.Fs, commander Commander, language, prefix string, license LicenseConfig, root string) *HeaderChecker {
	return &HeaderChecker{
		fs:        fsys,
		commander: commander,
		language:  language,
		prefix:    prefix,
		license:   license,
		root:      root,
		years:     make(map[string]int),
	}
}

func (h *HeaderChecker) Name() string       { return h.language }
func (h *HeaderChecker) CanFix() bool       { return true }
func (h *HeaderChecker) PackageLevel() bool { return false }

func (h *HeaderChecker) PackageCheck(files []string) map[string]ToolResult {
	results := make(map[string]ToolResult, len(files))
	for _, file := range files {
		results[file] = h.Check(file)
	}
	return results
}

// expectedHeader returns the exact header lines, trailing newlines
// included: the copyright line, the license identifier line, and one
// separating blank line.
func (h *HeaderChecker) expectedHeader(year int) []string {
	return []string{
		fmt.Sprintf("%s SPDX-FileCopyrightText: %d %s\n", h.prefix, year, h.license.Owner),
		fmt.Sprintf("%s SPDX-License-Identifier: %s\n", h.prefix, h.license.SPDX),
		"\n",
	}
}

// copyrightYear resolves the year a file's header must carry: the year of
// its first commit, following renames, falling back to the current year
// for files git does not know yet. Resolved years are memoized per run
// since git history does not change mid-pass.
func (h *HeaderChecker) copyrightYear(file string) int {
	h.yearMu.Lock()
	if year, ok := h.years[file]; ok {
		h.yearMu.Unlock()
		return year
	}
	h.yearMu.Unlock()

	year := time.Now().Year()
	out, exitCode, err := h.commander.Run("git", "-C", h.root, "log", "--follow", "--format=%aI", "--reverse", "--", RelPath(h.root, file))
	if err == nil && exitCode == 0 {
		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		if len(lines) > 0 && lines[0] != "" {
			if t, perr := time.Parse(time.RFC3339, strings.TrimSpace(lines[0])); perr == nil {
				year = t.Year()
			}
		}
	}

	h.yearMu.Lock()
	h.years[file] = year
	h.yearMu.Unlock()
	return year
}

// splitLines splits content into lines with their trailing newlines kept,
// so header comparison is exact down to line endings.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// headerOffset returns the number of leading lines the header must come
// after. Scripts keep their shebang as the very first line.
func headerOffset(lines []string) int {
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#!") {
		return 1
	}
	return 0
}

// Check verifies one file's header. A file with no SPDX lines at the
// expected position is "missing"; a file whose SPDX block deviates from
// the expected text in any way is "incorrect".
func (h *HeaderChecker) Check(file string) ToolResult {
	year := h.copyrightYear(file)

	content, err := afero.ReadFile(h.fs, file)
	if err != nil {
		return ToolResult{Tool: h.language, Status: StatusError, Message: "failed to read file: " + err.Error(), Year: year}
	}

	lines := splitLines(string(content))
	offset := headerOffset(lines)
	expected := h.expectedHeader(year)

	if !h.hasSPDXBlock(lines, offset) {
		return ToolResult{
			Tool:    h.language,
			Status:  StatusIssue,
			Message: "license header is missing",
			Detail:  "missing",
			Year:    year,
		}
	}

	if len(lines) < offset+len(expected) {
		return h.incorrectResult(year)
	}
	for i, want := range expected {
		if lines[offset+i] != want {
			return h.incorrectResult(year)
		}
	}

	return ToolResult{Tool: h.language, Status: StatusOK, Year: year}
}

func (h *HeaderChecker) incorrectResult(year int) ToolResult {
	return ToolResult{
		Tool:    h.language,
		Status:  StatusIssue,
		Message: "license header is incorrect",
		Detail:  "incorrect",
		Year:    year,
	}
}

// hasSPDXBlock reports whether the file carries any SPDX copyright line at
// the header position, correct or not. This is what separates the
// "missing" subtype from "incorrect".
func (h *HeaderChecker) hasSPDXBlock(lines []string, offset int) bool {
	if len(lines) <= offset {
		return false
	}
	return strings.HasPrefix(lines[offset], h.prefix+" SPDX-FileCopyrightText:")
}

// Fix rewrites the file with a correct header: a missing header is
// inserted after the shebang, an incorrect SPDX block is replaced in
// place. Reports false when the header was already correct or the file
// could not be written.
func (h *HeaderChecker) Fix(file string) bool {
	year := h.copyrightYear(file)

	content, err := afero.ReadFile(h.fs, file)
	if err != nil {
		return false
	}

	lines := splitLines(string(content))
	offset := headerOffset(lines)
	expected := h.expectedHeader(year)

	body := lines[offset:]
	if h.hasSPDXBlock(lines, offset) {
		correct := len(body) >= len(expected)
		if correct {
			for i, want := range expected {
				if body[i] != want {
					correct = false
					break
				}
			}
		}
		if correct {
			return false
		}
		body = stripSPDXBlock(body, h.prefix)
	}

	var rebuilt strings.Builder
	for _, line := range lines[:offset] {
		rebuilt.WriteString(line)
	}
	for _, line := range expected {
		rebuilt.WriteString(line)
	}
	for _, line := range body {
		rebuilt.WriteString(line)
	}

	mode := fs.FileMode(0o644)
	if info, serr := h.fs.Stat(file); serr == nil {
		mode = info.Mode()
	}
	return afero.WriteFile(h.fs, file, []byte(rebuilt.String()), mode) == nil
}

// stripSPDXBlock drops the existing SPDX comment lines and the single
// blank line that follows them, leaving the file body.
func stripSPDXBlock(lines []string, prefix string) []string {
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], prefix+" SPDX-") {
		i++
	}
	if i < len(lines) && strings.TrimRight(lines[i], "\n") == "" {
		i++
	}
	return lines[i:]
}
