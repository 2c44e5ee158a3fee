package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Generation request layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrBadInstr   = "E_BAD_INSTR"
	ErrBusy       = "E_BUSY"

	// Generation failures.
	ErrGridTooSmall    = "E_GRID_TOO_SMALL"
	ErrDoorSlots       = "E_DOOR_SLOTS"
	ErrSampling        = "E_SAMPLING"
	ErrDistractorSpace = "E_DISTRACTOR_SPACE"
	ErrPlacement       = "E_PLACEMENT"
	ErrConnect         = "E_CONNECT"
	ErrUnconnectable   = "E_UNCONNECTABLE"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrBadInstr:        {},
	ErrBusy:            {},
	ErrGridTooSmall:    {},
	ErrDoorSlots:       {},
	ErrSampling:        {},
	ErrDistractorSpace: {},
	ErrPlacement:       {},
	ErrConnect:         {},
	ErrUnconnectable:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
