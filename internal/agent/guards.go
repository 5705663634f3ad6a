package agent

import (
	"fmt"

	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/steplog"
)

// loopDetector tracks tool calls repeated in consecutive steps.
type loopDetector struct {
	threshold int
	streak    map[string]int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{
		threshold: threshold,
		streak:    make(map[string]int),
	}
}

// observe registers the calls made by one step. It returns the calls that
// also appeared in the previous step, and whether any of them has now
// appeared in threshold consecutive steps. A step without the call resets
// its streak.
func (d *loopDetector) observe(step steplog.Step) (repeated []string, stuck bool) {
	next := make(map[string]int, len(step.Invocations))
	for _, inv := range step.Invocations {
		sig := steplog.CallSignature(inv.Tool, inv.Args)
		if _, seen := next[sig]; seen {
			continue
		}
		n := d.streak[sig] + 1
		next[sig] = n
		if n >= 2 {
			repeated = append(repeated, sig)
		}
		if n >= d.threshold {
			stuck = true
		}
	}
	d.streak = next
	return repeated, stuck
}

func repeatNotice(sig string) string {
	return fmt.Sprintf("%s was already called with the same arguments in the previous step. "+
		"Use the result you already have or change the query.", sig)
}

// retryCounter counts consecutive failures of one kind.
type retryCounter struct {
	limit int
	n     int
}

func (c *retryCounter) fail() bool {
	c.n++
	return c.n > c.limit
}

func (c *retryCounter) reset() { c.n = 0 }

// tokenTracker accumulates token usage and checks against a budget.
// Each instance is owned by a single run.
type tokenTracker struct {
	budget int
	usage  provider.TokenUsage
}

func newTokenTracker(budget int) *tokenTracker {
	return &tokenTracker{budget: budget}
}

func (t *tokenTracker) add(usage provider.TokenUsage) {
	t.usage = t.usage.Add(usage)
}

// exceeded reports whether the cumulative token usage has reached the budget.
// A zero budget means unlimited and never exceeds.
func (t *tokenTracker) exceeded() bool {
	return t.budget > 0 && t.usage.TotalTokens >= t.budget
}

func (t *tokenTracker) total() provider.TokenUsage {
	return t.usage
}
