package usbtmc

import "testing"

func TestRingWriteReadFIFO(t *testing.T) {
	var r ring
	for i := 0; i < 10; i++ {
		if !r.write(byte(i)) {
			t.Fatalf("write %d failed unexpectedly", i)
		}
	}
	for i := 0; i < 10; i++ {
		b, ok := r.read()
		if !ok || b != byte(i) {
			t.Fatalf("read %d: got (%d,%v), want %d", i, b, ok, i)
		}
	}
	if _, ok := r.read(); ok {
		t.Fatal("expected read from an empty ring to fail")
	}
}

func TestRingFullRejectsWrite(t *testing.T) {
	var r ring
	for i := 0; i < ringCapacity-1; i++ {
		if !r.write(byte(i)) {
			t.Fatalf("write %d should have succeeded, ring not yet full", i)
		}
	}
	if r.write(0xFF) {
		t.Fatal("expected write to a full ring to fail")
	}
	if r.len() != ringCapacity-1 {
		t.Fatalf("expected len %d, got %d", ringCapacity-1, r.len())
	}
}

func TestRingFlush(t *testing.T) {
	var r ring
	r.write(1)
	r.write(2)
	r.flush()
	if r.len() != 0 {
		t.Fatalf("expected empty ring after flush, got len %d", r.len())
	}
	if !r.write(3) {
		t.Fatal("expected ring to accept writes after flush")
	}
}

func TestRingDrain(t *testing.T) {
	var r ring
	for i := 0; i < 5; i++ {
		r.write(byte(i))
	}
	dst := make([]byte, 3)
	n := r.drain(dst)
	if n != 3 || dst[0] != 0 || dst[1] != 1 || dst[2] != 2 {
		t.Fatalf("unexpected drain result n=%d dst=%v", n, dst)
	}
	if r.len() != 2 {
		t.Fatalf("expected 2 bytes remaining, got %d", r.len())
	}
}

func TestRingPeekDoesNotAdvance(t *testing.T) {
	var r ring
	if _, ok := r.peek(); ok {
		t.Fatal("expected peek on an empty ring to fail")
	}
	r.write(1)
	r.write(2)
	for i := 0; i < 3; i++ {
		b, ok := r.peek()
		if !ok || b != 1 {
			t.Fatalf("peek %d: got (%d,%v), want (1,true)", i, b, ok)
		}
	}
	if r.len() != 2 {
		t.Fatalf("expected peek to leave len unchanged, got %d", r.len())
	}
	b, ok := r.read()
	if !ok || b != 1 {
		t.Fatalf("read after peek: got (%d,%v), want (1,true)", b, ok)
	}
}

func TestRingAvailable(t *testing.T) {
	var r ring
	if got := r.available(); got != ringCapacity-1 {
		t.Fatalf("got %d, want %d", got, ringCapacity-1)
	}
	r.write(1)
	if got := r.available(); got != ringCapacity-2 {
		t.Fatalf("got %d, want %d", got, ringCapacity-2)
	}
}
