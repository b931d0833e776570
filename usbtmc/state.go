package usbtmc

// CommandState is the command state machine's current state (spec.md
// §4.5). Run dispatches on this value; every transition is a pure
// function of (state, transport result, elapsed time).
type CommandState int

const (
	StateIdle CommandState = iota
	StatePause
	StateReceiveHeader
	StateReceivePayload
	StateInitiateAbortBulkOut
	StateCheckAbortBulkOutStatus
	StateInitiateAbortBulkIn
	StateReadingByAbortBulkIn
	StateCheckAbortBulkInStatus
	StateInitiateClear
	StateCheckClearStatus
	StateReadingByInitiateClear
	StateClearFeature
)

func (s CommandState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePause:
		return "Pause"
	case StateReceiveHeader:
		return "ReceiveHeader"
	case StateReceivePayload:
		return "ReceivePayload"
	case StateInitiateAbortBulkOut:
		return "InitiateAbortBulkOut"
	case StateCheckAbortBulkOutStatus:
		return "CheckAbortBulkOutStatus"
	case StateInitiateAbortBulkIn:
		return "InitiateAbortBulkIn"
	case StateReadingByAbortBulkIn:
		return "ReadingByAbortBulkIn"
	case StateCheckAbortBulkInStatus:
		return "CheckAbortBulkInStatus"
	case StateInitiateClear:
		return "InitiateClear"
	case StateCheckClearStatus:
		return "CheckClearStatus"
	case StateReadingByInitiateClear:
		return "ReadingByInitiateClear"
	case StateClearFeature:
		return "ClearFeature"
	default:
		return "Unknown"
	}
}
