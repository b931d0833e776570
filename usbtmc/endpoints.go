package usbtmc

// NAK power policy (USB Host Shield 2.0 naming, carried over from
// original_source/USBTMCHost/usbtmc.h's EpInfo.bmNakPower): NakMaxPower
// tells the transport to retry a NAK'd transfer itself; NakNoWait tells
// it to surface the NAK to the driver immediately instead of retrying.
const (
	NakMaxPower byte = 0x0F
	NakNoWait   byte = 0x00
)

// Endpoint slot indices within a Driver's fixed 4-entry endpoint table
// (spec.md §3 invariant 4).
const (
	epControl     = 0
	epDataIn      = 1
	epDataOut     = 2
	epInterruptIn = 3
	maxEndpoints  = 4
)

// Endpoint records one USB endpoint's address, packet size, toggle
// state, and NAK policy.
type Endpoint struct {
	Address       byte
	MaxPacketSize uint16
	ToggleSend    bool
	ToggleReceive bool
	NakPower      byte
}

// EndpointTable is the driver's fixed 4-slot endpoint record: control,
// bulk-IN, bulk-OUT, interrupt-IN, in that order.
type EndpointTable [maxEndpoints]Endpoint

// newEndpointTable returns a table with the default NAK policy and
// control endpoint 0 max-packet-size populated (spec.md §3 invariant 4).
// Bulk-IN and bulk-OUT/interrupt-IN addresses are filled in during
// attach once the configuration descriptor has been walked.
func newEndpointTable() EndpointTable {
	var t EndpointTable
	t[epControl] = Endpoint{MaxPacketSize: 8}
	t[epDataIn] = Endpoint{NakPower: NakNoWait}
	t[epDataOut] = Endpoint{NakPower: NakMaxPower}
	t[epInterruptIn] = Endpoint{NakPower: NakMaxPower}
	return t
}

// resetToggles clears the send/receive toggle bits of an endpoint,
// performed after a successful CLEAR_FEATURE(ENDPOINT_HALT).
func (e *Endpoint) resetToggles() {
	e.ToggleSend = false
	e.ToggleReceive = false
}
