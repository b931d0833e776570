package usbtmc

// InfoCode is the USBTMC info-code taxonomy the engine reports to its
// owner via OnFailed (spec.md §7). Positive values are informational
// (a recovery path completed as intended); negative values are
// failures.
type InfoCode int

const (
	InfoAbortBulkInSucceeded InfoCode = 1
	InfoClearSucceeded       InfoCode = 2

	ErrTransmit                      InfoCode = -1
	ErrRequest                       InfoCode = -2
	ErrReadStatusByte                InfoCode = -3
	ErrReceiveHeaderNakTimeout       InfoCode = -4
	ErrReceiveHeaderFailed           InfoCode = -5
	ErrReceivePayloadNakTimeout      InfoCode = -6
	ErrReceivePayloadFailed          InfoCode = -7
	ErrInitiateAbortBulkOutFailed    InfoCode = -8
	ErrInitiateAbortBulkOutRejected  InfoCode = -9
	ErrCheckAbortBulkOutStatusFailed InfoCode = -10
	ErrInitiateAbortBulkInFailed     InfoCode = -11
	ErrInitiateAbortBulkInRejected   InfoCode = -12
	ErrReadingByAbortBulkInFailed    InfoCode = -13
	ErrCheckAbortBulkInStatusFailed  InfoCode = -14
	ErrInitiateClearFailed           InfoCode = -15
	ErrInitiateClearRejected         InfoCode = -16
	ErrCheckClearStatusFailed        InfoCode = -17
	ErrReadingByInitiateClearFailed  InfoCode = -18
	ErrClearFeatureFailed            InfoCode = -19
)

func (c InfoCode) String() string {
	switch c {
	case InfoAbortBulkInSucceeded:
		return "AbortBulkInSucceeded"
	case InfoClearSucceeded:
		return "ClearSucceeded"
	case ErrTransmit:
		return "TransmitError"
	case ErrRequest:
		return "RequestError"
	case ErrReadStatusByte:
		return "ReadStatusByteError"
	case ErrReceiveHeaderNakTimeout:
		return "ReceiveHeaderNakTimeout"
	case ErrReceiveHeaderFailed:
		return "ReceiveHeaderError"
	case ErrReceivePayloadNakTimeout:
		return "ReceivePayloadNakTimeout"
	case ErrReceivePayloadFailed:
		return "ReceivePayloadError"
	case ErrInitiateAbortBulkOutFailed:
		return "InitiateAbortBulkOutError"
	case ErrInitiateAbortBulkOutRejected:
		return "InitiateAbortBulkOutFailed"
	case ErrCheckAbortBulkOutStatusFailed:
		return "CheckAbortBulkOutStatusError"
	case ErrInitiateAbortBulkInFailed:
		return "InitiateAbortBulkInError"
	case ErrInitiateAbortBulkInRejected:
		return "InitiateAbortBulkInFailed"
	case ErrReadingByAbortBulkInFailed:
		return "ReadingByAbortBulkInError"
	case ErrCheckAbortBulkInStatusFailed:
		return "CheckAbortBulkInStatusError"
	case ErrInitiateClearFailed:
		return "InitiateClearError"
	case ErrInitiateClearRejected:
		return "InitiateClearFailed"
	case ErrCheckClearStatusFailed:
		return "CheckClearStatusError"
	case ErrReadingByInitiateClearFailed:
		return "ReadingByInitiateClearError"
	case ErrClearFeatureFailed:
		return "ClearFeatureError"
	default:
		return "Unknown"
	}
}

// DetailCode supplements an InfoCode with either one of a small fixed
// set of engine-local reasons, or an opaque transport rcode when the
// failure came from the transport itself (spec.md §7).
type DetailCode byte

const (
	DetailFailed         DetailCode = 0xF1
	DetailOverflowed     DetailCode = 0xF2
	DetailUnexpectedSize DetailCode = 0xF3
	DetailBusy           DetailCode = 0xF4
)

// EventSink is the owner-supplied capability set the engine reports to.
// It is a plain interface, not a base type to derive from (spec.md §9).
type EventSink interface {
	// OnRcvdDescr is called once during attach with the raw device
	// descriptor and serial-number string.
	OnRcvdDescr(desc DeviceDescriptor, serialNumber []byte)

	// OnReceived delivers one inbound payload byte, in wire order.
	OnReceived(b byte)

	// OnReadStatusByte delivers the IEEE-488 status byte after a
	// successful ReadStatusByte call.
	OnReadStatusByte(status byte)

	// OnFailed reports a structured failure or recovery-path success.
	// detail is one of the DetailCode constants or a transport rcode.
	OnFailed(info InfoCode, detail byte)
}

// NopSink is an EventSink that discards every notification. Embed it to
// implement only the callbacks a particular owner cares about.
type NopSink struct{}

func (NopSink) OnRcvdDescr(DeviceDescriptor, []byte) {}
func (NopSink) OnReceived(byte)                      {}
func (NopSink) OnReadStatusByte(byte)                {}
func (NopSink) OnFailed(InfoCode, byte)              {}
