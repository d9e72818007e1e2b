package render

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cory-johannsen/mudclient/internal/ledger"
)

const clearLine = "\r\033[K"

// Console prints ledger changes to w. Streaming entries show their spinner
// on a transient line and are printed for good once frozen.
type Console struct {
	w        io.Writer
	renderer *Renderer

	mu        sync.Mutex
	transient string // ID of the entry on the transient line
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer, renderer *Renderer) *Console {
	return &Console{w: w, renderer: renderer}
}

// Run prints changes until the channel closes or ctx is cancelled.
func (c *Console) Run(ctx context.Context, changes <-chan ledger.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			if err := c.Apply(ch); err != nil {
				return err
			}
		}
	}
}

// Apply prints a single change.
func (c *Console) Apply(ch ledger.Change) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := ch.Entry
	switch {
	case ch.Op == ledger.OpRemove:
		if c.transient == e.ID {
			c.transient = ""
			return c.write(clearLine)
		}
		return nil
	case e.IsStreaming:
		c.transient = e.ID
		return c.write(clearLine + c.renderer.style.Colorize(Dim, e.Text))
	default:
		prefix := ""
		if c.transient != "" {
			prefix = clearLine
			if c.transient == e.ID {
				c.transient = ""
			}
		}
		return c.write(prefix + c.renderer.Entry(e) + "\n")
	}
}

// Println writes a line that is not part of the ledger, such as a prompt or help text.
func (c *Console) Println(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := ""
	if c.transient != "" {
		prefix = clearLine
	}
	return c.write(prefix + text + "\n")
}

func (c *Console) write(s string) error {
	if _, err := io.WriteString(c.w, s); err != nil {
		return fmt.Errorf("writing console output: %w", err)
	}
	return nil
}
