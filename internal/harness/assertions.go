package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docmap/internal/wire"
)

// Expectation check names.
const (
	CheckDirty = "dirty"
	CheckSet   = "set"
	CheckUnset = "unset"
	CheckEmpty = "empty"
)

// AssertionError is returned when an expectation fails.
// It includes the observed change set to help debug the failure.
type AssertionError struct {
	Check    string // Expectation that failed
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Update   string // Observed update document, canonical JSON
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Check)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Update != "" {
		fmt.Fprintf(&buf, "\nUpdate:\n  %s\n", e.Update)
	}

	return buf.String()
}

// Evaluate checks a result against an expectation and returns one message
// per failed check. Returns empty slice (not nil) when everything matches.
func Evaluate(r *Result, e *Expectation) []string {
	errs := []string{}
	update := ""
	if r.ChangeSet != nil {
		if b, err := wire.MarshalCanonical(r.ChangeSet.Update()); err == nil {
			update = string(b)
		}
	}
	fail := func(check, expected, actual string) {
		errs = append(errs, (&AssertionError{
			Check:    check,
			Expected: expected,
			Actual:   actual,
			Update:   update,
		}).Error())
	}

	if r.ChangeSet == nil {
		fail(CheckSet, "a change set", "none built")
		return errs
	}

	if e.Dirty != nil && !slices.Equal(e.Dirty, r.Dirty) {
		fail(CheckDirty, fmt.Sprintf("%v", e.Dirty), fmt.Sprintf("%v", r.Dirty))
	}

	if e.Empty {
		if !r.ChangeSet.Empty() {
			fail(CheckEmpty, "no changes", update)
		}
		return errs
	}

	want, err := expectedSet(e)
	if err != nil {
		fail(CheckSet, e.Set, fmt.Sprintf("unparseable expectation: %v", err))
	} else if !wire.Equal(want, r.ChangeSet.Set) {
		wantJSON, _ := wire.MarshalCanonical(want)
		gotJSON, _ := wire.MarshalCanonical(r.ChangeSet.Set)
		fail(CheckSet, string(wantJSON), string(gotJSON))
	}

	unset := e.Unset
	if unset == nil {
		unset = []string{}
	}
	if !slices.Equal(unset, r.ChangeSet.Unset) {
		fail(CheckUnset, fmt.Sprintf("%v", unset), fmt.Sprintf("%v", r.ChangeSet.Unset))
	}

	return errs
}
