package rules

import "github.com/allewwaly/insight-vmi-sub006/internal/kerr"

// Rule pairs a Filter with the Action it triggers, at a given priority
// (spec.md §4.D: "Each rule has a priority (integer), a filter ... and
// an action"). Location is a file:line string used only in warnings.
type Rule struct {
	Name     string
	Priority int
	Filter   Filter
	Action   Action
	Location string
}

// Warning reports a non-fatal problem encountered while applying a rule
// (spec.md §4.D: "script exceptions are caught and reported as warnings
// with rule location").
type Warning struct {
	Rule     string
	Location string
	Err      error
}

func (w Warning) Error() string {
	return kerr.E(kerr.RuleError, w.Err, "rule %q (%s)", w.Rule, w.Location).Error()
}
