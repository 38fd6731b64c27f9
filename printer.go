package devutils

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// StatusPrinter serializes per-file status lines from concurrent workers.
// Each file's tag line and its diagnostic block are emitted under one lock
// acquisition so output from different files never interleaves.
type StatusPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	root string
}

// NewStatusPrinter creates a printer writing to out. File paths are shown
// relative to root.
func NewStatusPrinter(out io.Writer, root string) *StatusPrinter {
	return &StatusPrinter{out: out, root: root}
}

// Status prints one file's tag line, plus its diagnostics when present.
func (p *StatusPrinter) Status(c *color.Color, tag, file, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s %s\n", c.Sprint(tag), RelPath(p.root, file))
	if message != "" {
		fmt.Fprintln(p.out, message)
		fmt.Fprintln(p.out)
	}
}

// Line prints one standalone colored line, e.g. a section heading.
func (p *StatusPrinter) Line(c *color.Color, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, c.Sprint(text))
}
