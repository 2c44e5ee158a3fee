package roomgrid

import (
	"errors"
	"testing"

	"roomscene.ai/internal/sim/encoding"
	"roomscene.ai/internal/sim/palette"
)

func newEnv(t *testing.T, seed int64) *Env {
	t.Helper()
	e, err := New(Config{}, seed)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNew_DefaultGeometry(t *testing.T) {
	e := newEnv(t, 0)
	if e.Width() != 19 || e.Height() != 19 {
		t.Fatalf("size=%dx%d want 19x19", e.Width(), e.Height())
	}
	if e.StartPos() != (Pos{X: 9, Y: 9}) {
		t.Fatalf("start=%+v want {9 9}", e.StartPos())
	}
	if got := e.RoomFromPos(e.StartPos()); got != (RoomCoord{Col: 1, Row: 1}) {
		t.Fatalf("start room=%+v want {1 1}", got)
	}
	if e.MaxSteps() != 200 {
		t.Fatalf("max steps=%d want 200", e.MaxSteps())
	}

	center := e.Room(RoomCoord{Col: 1, Row: 1})
	for k := DoorRight; k <= DoorUp; k++ {
		if !center.HasDoorPos[k] || center.Neighbors[k] == nil {
			t.Fatalf("center room missing door slot %d", k)
		}
		if c := e.At(center.DoorPos[k]); c == nil || c.Kind != palette.KindWall {
			t.Fatalf("door slot %d of center room is not on a wall: %+v", k, c)
		}
		if center.Neighbors[k].DoorPos[k.Opposite()] != center.DoorPos[k] {
			t.Fatalf("door slot %d not shared with neighbor", k)
		}
	}

	corner := e.Room(RoomCoord{Col: 0, Row: 0})
	if corner.HasDoorPos[DoorLeft] || corner.HasDoorPos[DoorUp] {
		t.Fatalf("corner room has a slot on the outer wall")
	}
	if e.Room(RoomCoord{Col: 3, Row: 0}) != nil {
		t.Fatalf("expected nil room outside the grid")
	}
}

func TestNew_RejectsBadShape(t *testing.T) {
	if _, err := New(Config{RoomSize: 2}, 1); !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected ErrBadShape, got %v", err)
	}
	if _, err := New(Config{NumCols: -1}, 1); !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected ErrBadShape, got %v", err)
	}
}

func TestAddDoor_LinksBothRooms(t *testing.T) {
	e := newEnv(t, 3)
	east := RoomCoord{Col: 2, Row: 1}
	if err := e.AddDoor(east, DoorLeft, palette.Blue, true); err != nil {
		t.Fatalf("AddDoor: %v", err)
	}
	r := e.Room(east)
	center := e.Room(RoomCoord{Col: 1, Row: 1})
	if r.Doors[DoorLeft] == nil || r.Doors[DoorLeft] != center.Doors[DoorRight] {
		t.Fatalf("door not linked on both sides")
	}
	if !r.Locked {
		t.Fatalf("room with a locked door should be locked")
	}
	c := e.At(r.DoorPos[DoorLeft])
	if c == nil || c.Kind != palette.KindDoor || c.Color != palette.Blue || !c.Locked {
		t.Fatalf("unexpected door cell: %+v", c)
	}
	if e.DoorCount() != 1 {
		t.Fatalf("door count=%d want 1", e.DoorCount())
	}

	if err := e.AddDoor(RoomCoord{Col: 1, Row: 1}, DoorRight, palette.Red, false); !errors.Is(err, ErrDoorExists) {
		t.Fatalf("expected ErrDoorExists from the other side, got %v", err)
	}
	if err := e.AddDoor(RoomCoord{Col: 0, Row: 0}, DoorUp, palette.Red, false); !errors.Is(err, ErrNoNeighbor) {
		t.Fatalf("expected ErrNoNeighbor, got %v", err)
	}
	if err := e.AddDoor(RoomCoord{Col: 1, Row: 1}, 7, palette.Red, false); !errors.Is(err, ErrBadDoorIndex) {
		t.Fatalf("expected ErrBadDoorIndex, got %v", err)
	}
	if err := e.AddDoor(RoomCoord{Col: 5, Row: 5}, DoorUp, palette.Red, false); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("expected ErrNoRoom, got %v", err)
	}
}

func TestAddObject_StaysInsideRoom(t *testing.T) {
	e := newEnv(t, 11)
	room := RoomCoord{Col: 0, Row: 2}
	for i := 0; i < 5; i++ {
		if err := e.AddObject(room, palette.KindBall, palette.Green, nil); err != nil {
			t.Fatalf("AddObject: %v", err)
		}
	}
	r := e.Room(room)
	if len(r.Objects) != 5 || len(e.Objects()) != 5 {
		t.Fatalf("objects=%d placed=%d want 5", len(r.Objects), len(e.Objects()))
	}
	for _, p := range e.Objects() {
		if p.Pos.X <= r.Top.X || p.Pos.X >= r.Top.X+r.Size.X-1 || p.Pos.Y <= r.Top.Y || p.Pos.Y >= r.Top.Y+r.Size.Y-1 {
			t.Fatalf("object outside room interior: %+v", p.Pos)
		}
		if e.At(p.Pos) != p.Cell {
			t.Fatalf("grid does not hold placed object at %+v", p.Pos)
		}
	}
}

func TestAddObject_NeverOnStart(t *testing.T) {
	e := newEnv(t, 5)
	center := RoomCoord{Col: 1, Row: 1}
	// Fill the whole 5x5 interior except the start tile.
	for i := 0; i < 24; i++ {
		if err := e.AddObject(center, palette.KindKey, palette.Red, nil); err != nil {
			t.Fatalf("AddObject %d: %v", i, err)
		}
	}
	if e.At(e.StartPos()) != nil {
		t.Fatalf("start tile was filled")
	}
	if err := e.AddObject(center, palette.KindKey, palette.Red, nil); !errors.Is(err, ErrPlacementExhausted) {
		t.Fatalf("expected ErrPlacementExhausted, got %v", err)
	}
}

func TestAddObject_RejectEverything(t *testing.T) {
	e := newEnv(t, 5)
	err := e.AddObject(RoomCoord{Col: 0, Row: 0}, palette.KindBox, palette.Grey, func(Pos) bool { return true })
	if !errors.Is(err, ErrPlacementExhausted) {
		t.Fatalf("expected ErrPlacementExhausted, got %v", err)
	}
	if len(e.Objects()) != 0 {
		t.Fatalf("rejected object was recorded")
	}
}

func TestConnectAll_ReachesEveryRoom(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		e := newEnv(t, seed)
		if got := len(e.ReachableRooms()); got != 1 {
			t.Fatalf("seed %d: fresh grid reaches %d rooms, want 1", seed, got)
		}
		if err := e.ConnectAll(); err != nil {
			t.Fatalf("seed %d: ConnectAll: %v", seed, err)
		}
		if got := len(e.ReachableRooms()); got != 9 {
			t.Fatalf("seed %d: reachable=%d want 9", seed, got)
		}
		if len(e.Objects()) != 0 {
			t.Fatalf("seed %d: ConnectAll placed objects", seed)
		}
	}
}

func TestConnectAll_KeepsLockedRoomSealed(t *testing.T) {
	e := newEnv(t, 9)
	north := RoomCoord{Col: 1, Row: 0}
	if err := e.AddDoor(north, DoorDown, palette.Purple, true); err != nil {
		t.Fatalf("AddDoor: %v", err)
	}
	if err := e.ConnectAll(); err != nil {
		t.Fatalf("ConnectAll: %v", err)
	}
	r := e.Room(north)
	for k := DoorRight; k <= DoorUp; k++ {
		if k == DoorDown || r.Doors[k] == nil {
			continue
		}
		t.Fatalf("ConnectAll opened wall %d of a locked room", k)
	}
}

func TestConnectAll_AdjacentLockedRoomsFailFast(t *testing.T) {
	e := newEnv(t, 3)
	if err := e.AddDoor(RoomCoord{Col: 1, Row: 0}, DoorDown, palette.Purple, true); err != nil {
		t.Fatalf("AddDoor north: %v", err)
	}
	if err := e.AddDoor(RoomCoord{Col: 2, Row: 1}, DoorLeft, palette.Red, true); err != nil {
		t.Fatalf("AddDoor east: %v", err)
	}
	err := e.ConnectAll()
	if !errors.Is(err, ErrUnconnectable) {
		t.Fatalf("err=%v want ErrUnconnectable", err)
	}
	corner := e.Room(RoomCoord{Col: 2, Row: 0})
	for k := DoorRight; k <= DoorUp; k++ {
		if corner.Doors[k] != nil {
			t.Fatalf("ConnectAll added door %d to the sealed corner", k)
		}
	}
}

func TestConnectAll_OppositeLockedRoomsStillConnect(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		e := newEnv(t, seed)
		if err := e.AddDoor(RoomCoord{Col: 1, Row: 0}, DoorDown, palette.Purple, true); err != nil {
			t.Fatalf("AddDoor north: %v", err)
		}
		if err := e.AddDoor(RoomCoord{Col: 1, Row: 2}, DoorUp, palette.Red, true); err != nil {
			t.Fatalf("AddDoor south: %v", err)
		}
		if err := e.ConnectAll(); err != nil {
			t.Fatalf("seed %d: ConnectAll: %v", seed, err)
		}
		if got := len(e.ReachableRooms()); got != 9 {
			t.Fatalf("seed %d: reachable=%d want 9", seed, got)
		}
	}
}

func TestDigest_SameSeedSameGrid(t *testing.T) {
	build := func(seed int64) *Env {
		e := newEnv(t, seed)
		if err := e.AddObject(RoomCoord{Col: 2, Row: 2}, palette.KindBox, palette.Yellow, nil); err != nil {
			t.Fatalf("AddObject: %v", err)
		}
		if err := e.ConnectAll(); err != nil {
			t.Fatalf("ConnectAll: %v", err)
		}
		return e
	}
	a, b := build(77), build(77)
	if a.Digest() != b.Digest() {
		t.Fatalf("digest mismatch: %s vs %s", a.Digest(), b.Digest())
	}
	if a.Draws() != b.Draws() {
		t.Fatalf("draw count mismatch: %d vs %d", a.Draws(), b.Draws())
	}
	if c := build(78); c.Digest() == a.Digest() {
		t.Fatalf("different seeds produced identical grids")
	}
}

func TestEncodeRLE_CoversEveryTile(t *testing.T) {
	e := newEnv(t, 1)
	ids, err := encoding.DecodeRLE(e.EncodeRLE())
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(ids) != e.Width()*e.Height() {
		t.Fatalf("decoded %d ids want %d", len(ids), e.Width()*e.Height())
	}
	kind, color, _ := encoding.UnpackCell(ids[0])
	if kind != palette.KindIndex(palette.KindWall) || color != palette.ColorIndex(palette.Grey) {
		t.Fatalf("top-left tile should be a grey wall, got kind=%d color=%d", kind, color)
	}
	if len(e.Encode()) != 3*e.Width()*e.Height() {
		t.Fatalf("encode length mismatch")
	}
}
