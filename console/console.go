// Package console prints human-readable progress from
// the primary rank only, so that a group of N processes
// does not print everything N times.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/unixpickle/rankcoord/group"
)

const eraseLine = "\x1b[K"

// A Console writes progress output on the primary rank
// and does nothing elsewhere.
type Console struct {
	id  group.Identity
	out io.Writer

	lock      sync.Mutex
	transient bool
}

// New creates a Console for a rank.
func New(id group.Identity, out io.Writer) *Console {
	return &Console{id: id, out: out}
}

// Enabled checks if this rank prints anything.
func (c *Console) Enabled() bool {
	return c.id.Rank() == group.Root
}

// Show replaces the current line with the parts, joined
// by spaces. It is meant for transient progress output.
func (c *Console) Show(parts ...interface{}) {
	if !c.Enabled() {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	io.WriteString(c.out, "\r"+joinParts(parts)+eraseLine)
	c.transient = true
}

// Showln writes the parts as a durable line.
// A pending Show line is overwritten.
func (c *Console) Showln(parts ...interface{}) {
	if !c.Enabled() {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	line := joinParts(parts) + "\n"
	if c.transient {
		line = "\r" + joinParts(parts) + eraseLine + "\n"
		c.transient = false
	}
	io.WriteString(c.out, line)
}

func joinParts(parts []interface{}) string {
	return strings.TrimSuffix(fmt.Sprintln(parts...), "\n")
}
