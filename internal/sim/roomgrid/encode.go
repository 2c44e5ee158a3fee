package roomgrid

import (
	"crypto/sha256"
	"encoding/hex"

	"roomscene.ai/internal/sim/encoding"
	"roomscene.ai/internal/sim/palette"
)

// Encode returns width*height*3 bytes in row-major order: kind index, color
// index, state for each tile. The agent is not part of the encoding.
func (e *Env) Encode() []byte {
	out := make([]byte, 0, len(e.grid)*3)
	for _, c := range e.grid {
		if c == nil {
			out = append(out, palette.KindIndex(palette.KindEmpty), 0, 0)
			continue
		}
		out = append(out, palette.KindIndex(c.Kind), palette.ColorIndex(c.Color), c.state())
	}
	return out
}

// Digest is the hex sha256 of Encode.
func (e *Env) Digest() string {
	sum := sha256.Sum256(e.Encode())
	return hex.EncodeToString(sum[:])
}

// EncodeRLE packs every tile into a palette id and run-length encodes the
// row-major sequence.
func (e *Env) EncodeRLE() string {
	raw := e.Encode()
	ids := make([]uint16, 0, len(e.grid))
	for i := 0; i+2 < len(raw); i += 3 {
		ids = append(ids, encoding.PackCell(raw[i], raw[i+1], raw[i+2]))
	}
	return encoding.EncodeRLE(ids)
}

// DoorCount counts door tiles currently on the grid.
func (e *Env) DoorCount() int {
	n := 0
	for _, c := range e.grid {
		if c != nil && c.Kind == palette.KindDoor {
			n++
		}
	}
	return n
}
