package stats

import (
	"testing"
	"time"
)

func TestRound2(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want float64
	}{
		{12.345, 12.35},
		{12.344, 12.34},
		{0.005, 0.01},
		{-1.005, -1},
		{0, 0},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSnapshot_CopiesInputMap(t *testing.T) {
	t.Parallel()

	lines := map[string]PlayerLine{"p1": {Scored: 5}}
	snapshot := NewSnapshot(lines, time.Now())

	lines["p1"] = PlayerLine{Scored: 99}

	line, ok := snapshot.Line("p1")
	if !ok {
		t.Fatal("p1 missing from snapshot")
	}
	if line.Scored != 5 {
		t.Fatalf("snapshot mutated through input map: scored = %v", line.Scored)
	}
}

func TestSnapshot_NilSafeReads(t *testing.T) {
	t.Parallel()

	var snapshot *Snapshot

	if _, ok := snapshot.Line("p1"); ok {
		t.Fatal("nil snapshot should report missing lines")
	}
	if got := snapshot.Size(); got != 0 {
		t.Fatalf("nil snapshot size = %d, want 0", got)
	}
	if !snapshot.BuiltAt().IsZero() {
		t.Fatal("nil snapshot should have zero build time")
	}
}

func TestStarterSet_Combined(t *testing.T) {
	t.Parallel()

	set := StarterSet{Own: []string{"a", "b"}, Opponent: []string{"c"}}
	combined := set.Combined()

	if len(combined) != 3 {
		t.Fatalf("combined length = %d, want 3", len(combined))
	}
	if combined[0] != "a" || combined[2] != "c" {
		t.Fatalf("combined order unexpected: %v", combined)
	}
}
