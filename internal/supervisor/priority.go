// Package supervisor implements the supervisor process: a single-pass
// watcher health check, auto-restart, and priority-ordered control-flag
// dispatch (pause/resume/restart, code update/rollback, diagnostics).
package supervisor

import (
	"sort"

	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
)

// priority maps each control handler to its dispatch priority — lower
// number runs first. An unregistered handler gets priority 999 and is
// skipped with a warning rather than executed.
var priority = map[string]int{
	"rollback_code":    10,
	"update_code_deps": 11,
	"update_code":      12,
	"pause_watcher":    20,
	"resume_watcher":   21,
	"restart_watcher":  22,
	"diagnostics":      30,
	"verify_db":        31,
}

const unknownPriority = 999

func priorityOf(handler string) int {
	if p, ok := priority[handler]; ok {
		return p
	}
	return unknownPriority
}

// pendingFlag pairs a parsed flag with its source filename and resolved
// dispatch priority, for sorting.
type pendingFlag struct {
	filename string
	flag     flagfile.Flag
	priority int
}

// sortByPriority orders flags by ascending priority, breaking ties by
// filename so the ordering is deterministic.
func sortByPriority(flags []pendingFlag) {
	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].priority != flags[j].priority {
			return flags[i].priority < flags[j].priority
		}
		return flags[i].filename < flags[j].filename
	})
}
