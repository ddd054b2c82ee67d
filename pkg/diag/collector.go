package diag

import (
	"fmt"
	"strings"
)

// Mode selects how failures propagate through an evaluation.
type Mode int

const (
	// FailFast aborts the current instantiation on the first error.
	FailFast Mode = iota

	// CollectAll records errors and keeps evaluating to completion.
	CollectAll
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case FailFast:
		return "fail-fast"
	case CollectAll:
		return "collect-all"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as printed by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "fail-fast", "failfast":
		return FailFast, nil
	case "collect-all", "collectall", "all":
		return CollectAll, nil
	default:
		return FailFast, fmt.Errorf("unknown error mode %q", s)
	}
}

// List aggregates diagnostics in the order they were reported.
type List []*Error

// Error implements the error interface.
func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(l))
	for _, e := range l {
		b.WriteString("\n  ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Err returns nil for an empty list, the single error for one entry, and the
// list otherwise.
func (l List) Err() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	default:
		return l
	}
}

// Kinds returns the kinds of all errors in order.
func (l List) Kinds() []Kind {
	kinds := make([]Kind, len(l))
	for i, e := range l {
		kinds[i] = e.Kind
	}
	return kinds
}

// Collector routes failures according to a Mode.
type Collector struct {
	mode Mode
	errs List
}

// NewCollector creates a collector for the given mode.
func NewCollector(mode Mode) *Collector {
	return &Collector{mode: mode}
}

// Mode returns the collector's propagation mode.
func (c *Collector) Mode() Mode {
	return c.mode
}

// Report records err. It returns err when evaluation must stop, which is
// always in fail-fast mode and for fatal kinds; otherwise it returns nil and
// the caller continues.
func (c *Collector) Report(err error) error {
	if err == nil {
		return nil
	}
	if list, ok := err.(List); ok {
		var stop error
		for _, e := range list {
			if r := c.Report(e); r != nil && stop == nil {
				stop = r
			}
		}
		return stop
	}
	e := From(err, KindEvaluationFailure)
	if !c.seen(e) {
		c.errs = append(c.errs, e)
	}
	if c.mode == FailFast || e.Kind.Fatal() {
		return e
	}
	return nil
}

// seen reports whether the exact error value was already recorded. Errors
// propagate through nested instantiations and may be reported at each level.
func (c *Collector) seen(e *Error) bool {
	for _, existing := range c.errs {
		if existing == e {
			return true
		}
	}
	return false
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int {
	return len(c.errs)
}

// Errors returns the recorded errors.
func (c *Collector) Errors() List {
	return c.errs
}

// Err returns the recorded errors as a single error, or nil.
func (c *Collector) Err() error {
	return c.errs.Err()
}
