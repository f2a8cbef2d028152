package watcher

import (
	"sort"

	"github.com/venkytv/failgate/pkg/checkstatus"
)

// rollup folds the statuses of every check on the stream into the single
// status the gate sees. A failure episode lasts while any check is failing;
// it only ends once none is.
type rollup struct {
	failing map[string]bool
}

func newRollup() *rollup {
	return &rollup{failing: make(map[string]bool)}
}

// apply records msg and returns the aggregate status to hand to the gate.
// Unknown statuses pass through unrecorded so the gate can reject them.
func (r *rollup) apply(msg checkstatus.Message) checkstatus.Status {
	switch msg.Status {
	case checkstatus.Failed:
		r.failing[msg.Check] = true
		return checkstatus.Failed
	case checkstatus.Passed, checkstatus.Stopped:
		delete(r.failing, msg.Check)
		if len(r.failing) > 0 {
			// Another check still fails; the episode goes on.
			return checkstatus.Updating
		}
		return msg.Status
	default:
		return msg.Status
	}
}

func (r *rollup) failingChecks() []string {
	out := make([]string, 0, len(r.failing))
	for check := range r.failing {
		out = append(out, check)
	}
	sort.Strings(out)
	return out
}
