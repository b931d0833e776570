package usbtmc

import "testing"

// TestBTagGenCycling is the "tag cycling" law of spec.md §8: after N
// successful bulk-OUTs the sequence of bTag values used equals
// ((N-1) mod 255) + 1.
func TestBTagGenCycling(t *testing.T) {
	g := newBTagGen()
	for n := 1; n <= 300; n++ {
		want := byte((n-1)%255 + 1)
		got := g.advance()
		if got != want {
			t.Fatalf("after %d advances, got %d want %d", n, got, want)
		}
	}
}

func TestBTagGenCurrentDoesNotAdvance(t *testing.T) {
	g := newBTagGen()
	first := g.current()
	second := g.current()
	if first != second {
		t.Fatalf("current() should be idempotent, got %d then %d", first, second)
	}
}

func TestRTBTagGenRange(t *testing.T) {
	g := newRTBTagGen()
	for i := 0; i < 1000; i++ {
		v := g.advance()
		if v < 2 || v > 127 {
			t.Fatalf("rtb_bTag %d out of [2,127]", v)
		}
	}
}

func TestRTBTagGenWrapsAt127(t *testing.T) {
	g := newRTBTagGen()
	var last byte
	for i := 0; i < 126; i++ {
		last = g.advance()
	}
	if last != 127 {
		t.Fatalf("expected the 126th rtb_bTag to be 127, got %d", last)
	}
	if next := g.advance(); next != 2 {
		t.Fatalf("expected wraparound to 2, got %d", next)
	}
}
