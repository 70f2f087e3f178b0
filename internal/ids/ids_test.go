package ids

import (
	"strings"
	"testing"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("del")
	if !strings.HasPrefix(id, "del_") {
		t.Fatalf("expected del_ prefix, got %s", id)
	}
	if len(id) != len("del_")+26 {
		t.Fatalf("unexpected length %d for %s", len(id), id)
	}
	if got := WithPrefix("  "); strings.Contains(got, "_") {
		t.Fatalf("blank prefix should yield bare id, got %s", got)
	}
}
