package output

import (
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"
)

// Console renders pipeline events as progress bars on an interactive
// terminal, and as plain lines otherwise. It is driven by a Hub, so
// all methods run on a single goroutine.
type Console struct {
	writer   io.Writer
	terminal bool
	quiet    bool

	bar        *pb.ProgressBar
	deployment string
}

// NewConsole creates a renderer writing to w. When w is not a
// terminal, or quiet is set, bars are replaced by one line per
// deployment.
func NewConsole(w io.Writer, quiet bool) *Console {
	terminal := false
	if f, ok := w.(*os.File); ok {
		terminal = term.IsTerminal(int(f.Fd()))
	}
	return &Console{writer: w, terminal: terminal && !quiet, quiet: quiet}
}

// Consume handles one pipeline event. Pass it to NewHub.
func (c *Console) Consume(e Event) {
	switch e.Kind {
	case EventCollectionStart:
		c.finishBar()
		if !c.quiet {
			fmt.Fprintf(c.writer, "Collection %s (%d deployments)\n", e.Collection, e.Count)
		}

	case EventDeploymentStart:
		c.finishBar()
		c.deployment = e.Deployment
		if c.deployment == "" {
			c.deployment = e.File
		}
		if c.terminal && e.Count > 0 {
			c.bar = pb.New(e.Count)
			c.bar.SetWriter(c.writer)
			c.bar.Set("prefix", c.deployment+" ")
			c.bar.Start()
		}

	case EventFileProgress:
		if c.bar != nil {
			c.bar.Add(e.Count)
		}

	case EventDeploymentComplete:
		c.finishBar()
		if !c.terminal && !c.quiet {
			name := e.Deployment
			if name == "" {
				name = e.File
			}
			fmt.Fprintf(c.writer, "  %s done\n", name)
		}
	}
}

// Close finishes any bar still running
func (c *Console) Close() {
	c.finishBar()
}

func (c *Console) finishBar() {
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
}
