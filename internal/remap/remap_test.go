package remap

import "testing"

func TestSetAndResolve(t *testing.T) {
	var tb Table
	tb.Set(7, 3)
	got, err := tb.Resolve(7)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

func TestUnmappedRemoteIDIsError(t *testing.T) {
	var tb Table
	if _, err := tb.Resolve(5); err == nil {
		t.Fatal("expected error for unmapped remote id")
	}
	tb.Set(1, 1)
	if _, err := tb.Resolve(2); err == nil {
		t.Fatal("expected error for remote id never set, even once the table has grown")
	}
}

func TestClearResetsAllMappings(t *testing.T) {
	var tb Table
	tb.Set(1, 10)
	tb.Set(2, 20)
	tb.Clear()
	if _, ok := tb.Local(1); ok {
		t.Fatal("expected mapping 1 to be cleared")
	}
	if _, ok := tb.Local(2); ok {
		t.Fatal("expected mapping 2 to be cleared")
	}
}

func TestSettingUnmappedSentinelClearsMapping(t *testing.T) {
	var tb Table
	tb.Set(4, 9)
	tb.Set(4, Unmapped)
	if _, ok := tb.Local(4); ok {
		t.Fatal("expected remote id 4 to be unmapped after setting it to the sentinel")
	}
}
