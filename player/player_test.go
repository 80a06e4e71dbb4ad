package player

import "testing"

func TestFixed(t *testing.T) {
	var f Fixed
	if _, ok := f.Position(); ok {
		t.Fatal("zero Fixed must report no position")
	}
	f.Set(4200)
	ms, ok := f.Position()
	if !ok || ms != 4200 {
		t.Fatalf("Position() = %d, %v; want 4200, true", ms, ok)
	}
	f.Set(0)
	ms, ok = f.Position()
	if !ok || ms != 0 {
		t.Fatalf("Position() after rewind = %d, %v; want 0, true", ms, ok)
	}
}
