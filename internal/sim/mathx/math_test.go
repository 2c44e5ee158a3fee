package mathx

import "testing"

func TestRand_SameSeedSameStream(t *testing.T) {
	a := NewRand(42)
	b := NewRand(42)
	for i := 0; i < 100; i++ {
		if x, y := a.Uint64(), b.Uint64(); x != y {
			t.Fatalf("stream mismatch at %d: %d vs %d", i, x, y)
		}
	}
	if a.Draws() != 100 {
		t.Fatalf("draws=%d want 100", a.Draws())
	}
	if NewRand(1).Uint64() == NewRand(2).Uint64() {
		t.Fatalf("different seeds produced the same first value")
	}
}

func TestRand_IntNInRange(t *testing.T) {
	r := NewRand(7)
	hits := make([]int, 6)
	for i := 0; i < 6000; i++ {
		v := r.IntN(6)
		if v < 0 || v >= 6 {
			t.Fatalf("IntN out of range: %d", v)
		}
		hits[v]++
	}
	for i, h := range hits {
		if h == 0 {
			t.Fatalf("value %d never drawn", i)
		}
	}
}

func TestManhattan(t *testing.T) {
	if d := Manhattan(10, 10, 9, 11); d != 2 {
		t.Fatalf("got %d want 2", d)
	}
	if d := Manhattan(-3, 0, 3, 0); d != 6 {
		t.Fatalf("got %d want 6", d)
	}
}
