package supervisor

import "testing"

func TestPriorityOfKnownHandlers(t *testing.T) {
	cases := map[string]int{
		"rollback_code":    10,
		"update_code_deps": 11,
		"update_code":      12,
		"pause_watcher":    20,
		"resume_watcher":   21,
		"restart_watcher":  22,
		"diagnostics":      30,
		"verify_db":        31,
	}
	for handler, want := range cases {
		if got := priorityOf(handler); got != want {
			t.Errorf("priorityOf(%q) = %d, want %d", handler, got, want)
		}
	}
}

func TestPriorityOfUnknownHandler(t *testing.T) {
	if got := priorityOf("something_new"); got != unknownPriority {
		t.Errorf("priorityOf(unknown) = %d, want %d", got, unknownPriority)
	}
}

func TestSortByPriorityOrdersAndBreaksTiesByFilename(t *testing.T) {
	flags := []pendingFlag{
		{filename: "b.flag", priority: 20},
		{filename: "a.flag", priority: 20},
		{filename: "z.flag", priority: 10},
		{filename: "y.flag", priority: 999},
	}
	sortByPriority(flags)

	want := []string{"z.flag", "a.flag", "b.flag", "y.flag"}
	for i, name := range want {
		if flags[i].filename != name {
			t.Errorf("position %d = %q, want %q", i, flags[i].filename, name)
		}
	}
}
