package task

import (
	"encoding/json"
	"testing"
)

func TestStatusJSON(t *testing.T) {
	t.Parallel()
	for _, s := range []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusTimeout} {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%v) error: %v", s, err)
		}
		if string(b) != `"`+s.String()+`"` {
			t.Fatalf("Marshal(%v) = %s", s, b)
		}
		var back Status
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", b, err)
		}
		if back != s {
			t.Fatalf("round trip: got %v, want %v", back, s)
		}
	}
}

func TestStatusJSONUnknown(t *testing.T) {
	t.Parallel()
	var s Status
	if err := json.Unmarshal([]byte(`"exploded"`), &s); err == nil {
		t.Fatal("expected error for unknown status name")
	}
	if _, err := json.Marshal(Status(42)); err == nil {
		t.Fatal("expected error for out-of-range status")
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()
	terminal := map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusTimeout:   true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Fatalf("%v.Terminal() = %t, want %t", s, got, want)
		}
	}
}
