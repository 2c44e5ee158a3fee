package protocol

import "roomscene.ai/internal/sim/instr"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	GridParams      GridParams `json:"grid_params"`
	TuningDigest    string     `json:"tuning_digest,omitempty"`
}

type GridParams struct {
	RoomSize    int  `json:"room_size"`
	NumCols     int  `json:"num_cols"`
	NumRows     int  `json:"num_rows"`
	MaxSteps    int  `json:"max_steps"`
	Distractors bool `json:"distractors"`
}

// GENERATE (client -> server). Zero MaxSteps and a nil Distractors keep the
// server defaults.
type GenerateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ID              string        `json:"id"`
	Seed            int64         `json:"seed"`
	MaxSteps        int           `json:"max_steps,omitempty"`
	Distractors     *bool         `json:"distractors,omitempty"`
	Instrs          []instr.Instr `json:"instrs"`
}

// SCENE (server -> client)
type SceneMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ID              string        `json:"id"`
	SceneID         string        `json:"scene_id"`
	Seed            int64         `json:"seed"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	StartPos        [2]int        `json:"start_pos"`
	StartDir        int           `json:"start_dir"`
	MaxSteps        int           `json:"max_steps"`
	Digest          string        `json:"digest"`
	Grid            string        `json:"grid"`
	Objects         []SceneObject `json:"objects"`
	RoomsReachable  int           `json:"rooms_reachable"`
}

type SceneObject struct {
	Type  string `json:"type"`
	Color string `json:"color"`
	Pos   [2]int `json:"pos"`
	Room  [2]int `json:"room"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(id, code, message string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		ID:              id,
		Code:            code,
		Message:         message,
	}
}
