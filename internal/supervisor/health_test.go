package supervisor

import (
	"testing"
	"time"
)

func TestCheckWatcherHealthStoppedWhenNoProcess(t *testing.T) {
	layout := newTestLayout(t)

	state, _, alive := checkWatcherHealth(layout, "Orion-does-not-exist", 300*time.Second)
	if alive {
		t.Error("expected no live process for an unused worker id")
	}
	if state != StateStopped {
		t.Errorf("state = %v, want %v", state, StateStopped)
	}
}
