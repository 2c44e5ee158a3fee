package palette

import "testing"

func TestColorIndex_DistinctForAllNames(t *testing.T) {
	seen := map[uint8]Color{}
	for _, c := range ColorNames {
		if !ValidColor(c) {
			t.Fatalf("color %q not valid", c)
		}
		idx := ColorIndex(c)
		if prev, ok := seen[idx]; ok {
			t.Fatalf("colors %q and %q share index %d", prev, c, idx)
		}
		seen[idx] = c
	}
	if ValidColor("orange") {
		t.Fatalf("orange should not be a palette color")
	}
}

func TestValidObjectKind(t *testing.T) {
	for _, k := range []Kind{KindKey, KindBall, KindBox, KindDoor} {
		if !ValidObjectKind(k) {
			t.Fatalf("%q should be requestable", k)
		}
	}
	for _, k := range []Kind{KindWall, KindEmpty, "goal"} {
		if ValidObjectKind(k) {
			t.Fatalf("%q should not be requestable", k)
		}
	}
}
