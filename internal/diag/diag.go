// Package diag accumulates the Info/Warning notices that the container and
// filesystem walkers emit while verifying a 3DS save image. Nothing in this
// package aborts a walk: that decision belongs to the caller, which inspects
// a Collector only after the walk finishes.
package diag

import "fmt"

// Level classifies a diagnostic. Warning reports recoverable corruption;
// Info is purely descriptive.
type Level int

const (
	Info Level = iota
	Warning
)

func (l Level) String() string {
	if l == Warning {
		return "Warning"
	}
	return "Info"
}

// Entry is one recorded diagnostic.
type Entry struct {
	Level   Level
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s: %s", e.Level, e.Message)
}

// Collector accumulates diagnostics during a walk. The zero value is ready
// to use.
type Collector struct {
	entries []Entry
}

func (c *Collector) Infof(format string, args ...any) {
	c.entries = append(c.entries, Entry{Level: Info, Message: fmt.Sprintf(format, args...)})
}

func (c *Collector) Warnf(format string, args ...any) {
	c.entries = append(c.entries, Entry{Level: Warning, Message: fmt.Sprintf(format, args...)})
}

// Entries returns every recorded diagnostic in emission order.
func (c *Collector) Entries() []Entry {
	return c.entries
}

// Warnings returns only the Warning-level entries.
func (c *Collector) Warnings() []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Level == Warning {
			out = append(out, e)
		}
	}
	return out
}

// Merge appends another collector's entries onto c, preserving order.
func (c *Collector) Merge(other *Collector) {
	if other == nil {
		return
	}
	c.entries = append(c.entries, other.entries...)
}
