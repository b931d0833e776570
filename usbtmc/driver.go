package usbtmc

import (
	"errors"
	"fmt"
)

// nakTimeoutMillis is the NAK-retry deadline for ReceiveHeader and
// ReceivePayload (spec.md §4.5/§5).
const nakTimeoutMillis = 5000

// RCode is a transport-reported result code. HostTransport
// implementations that want OnFailed's detail byte to carry their own
// status code (rather than the engine's generic DetailFailed) should
// wrap it in RCode.
type RCode byte

func (r RCode) Error() string { return fmt.Sprintf("usbtmc: transport rcode 0x%02x", byte(r)) }

// Driver is one USBTMC/USB488 engine instance, bound to a single
// attached device. It borrows a HostTransport, Clock, and EventSink for
// its lifetime and must not outlive them (spec.md §5).
type Driver struct {
	transport HostTransport
	clock     Clock
	sink      EventSink

	busAddress   byte
	endpoints    EndpointTable
	capabilities Capabilities

	targetVID, targetPID uint16
	targetSerialPrefix   []byte

	bTag     *bTagGen
	lastBTag byte

	rtbTag     *rtbTagGen
	lastRTBTag byte

	state        CommandState
	resumedState CommandState
	isResume     bool

	waitBeginMillis uint32
	previousMillis  uint32
	timestepMillis  uint32

	requestLength int

	ring           ring
	binTotalSize   int
	binCurrentSize int
	isSentHeader   bool

	// Verbose gates per-endpoint attach diagnostics (SPEC_FULL.md
	// "supplemented features" item 4).
	Verbose bool
}

// NewDriver constructs a Driver bound to transport, clock, and sink. A
// nil sink is replaced with NopSink.
func NewDriver(transport HostTransport, clock Clock, sink EventSink) *Driver {
	if sink == nil {
		sink = NopSink{}
	}
	return &Driver{
		transport: transport,
		clock:     clock,
		sink:      sink,
		endpoints: newEndpointTable(),
		bTag:      newBTagGen(),
		rtbTag:    newRTBTagGen(),
		state:     StateIdle,
	}
}

// SetTargetVIDPID restricts Attach to a device with this vendor/product
// ID. 0 for either field means "any" (spec.md §6).
func (d *Driver) SetTargetVIDPID(vid, pid uint16) {
	d.targetVID, d.targetPID = vid, pid
}

// SetTargetSerialNumber restricts Attach to a device whose serial-number
// string descriptor begins with prefix. A nil/empty prefix disables the
// filter.
func (d *Driver) SetTargetSerialNumber(prefix []byte) {
	d.targetSerialPrefix = prefix
}

// TimeStep sets the minimum interval in milliseconds between the work
// Run performs on successive calls.
func (d *Driver) TimeStep(ms uint32) {
	d.timestepMillis = ms
}

// IsIdle reports whether the engine is in StateIdle.
func (d *Driver) IsIdle() bool { return d.state == StateIdle }

// IsPause reports whether the engine is currently paused.
func (d *Driver) IsPause() bool { return d.state == StatePause }

// IsConnected reports whether a bus address has been assigned.
func (d *Driver) IsConnected() bool { return d.busAddress != 0 }

// State returns the engine's current command state, primarily for
// diagnostics (e.g. statusserver).
func (d *Driver) State() CommandState { return d.state }

// Capabilities returns the capability block recorded at attach.
func (d *Driver) Capabilities() Capabilities { return d.capabilities }

// busy reports whether any of {receive, transmit, abort, clear} is
// currently active (spec.md §3 invariant 5).
func (d *Driver) busy() bool {
	return d.state != StateIdle || !d.TransmitDone()
}

// transportDetail extracts a transport-supplied RCode from err, falling
// back to the generic DetailFailed code.
func transportDetail(err error) byte {
	var rc RCode
	if errors.As(err, &rc) {
		return byte(rc)
	}
	return byte(DetailFailed)
}

func (d *Driver) controlIn(bRequest byte, target byte, wValue, wIndex uint16, buf []byte) error {
	_, err := d.transport.ControlRequest(d.busAddress, target, true, bRequest, wValue, wIndex, buf)
	return err
}

// Request asks the device for up to n bytes via REQUEST_DEV_DEP_MSG_IN.
// It requires the engine to be Idle (spec.md §4.5).
func (d *Driver) Request(n int) error {
	if d.busy() {
		d.sink.OnFailed(ErrRequest, byte(DetailBusy))
		return ErrBusy
	}
	hdr := encodeRequestDevDepMsgIn(d.bTag.current(), uint32(n))
	ep := &d.endpoints[epDataOut]
	_, res, err := d.transport.BulkOut(d.busAddress, ep, hdr[:])
	if res != ResultOK {
		d.sink.OnFailed(ErrRequest, transportDetail(err))
		return wrapTransport("request", err)
	}
	d.lastBTag = d.bTag.advance()
	d.requestLength = n
	d.waitBeginMillis = d.clock.Millis()
	d.state = StateReceiveHeader
	return nil
}

// BeginTransmit declares an outbound message of total bytes and resets
// the transmit ring. It requires the engine to be Idle and not already
// transmitting (spec.md §4.4).
func (d *Driver) BeginTransmit(total int) error {
	if d.busy() {
		d.sink.OnFailed(ErrTransmit, byte(DetailBusy))
		return ErrBusy
	}
	d.ring.flush()
	d.binTotalSize = total
	d.binCurrentSize = total
	d.isSentHeader = false
	return nil
}

// TransmitDone reports whether the caller has fed every byte of the
// message BeginTransmit declared into the ring.
func (d *Driver) TransmitDone() bool {
	return d.binCurrentSize <= 0
}

// TransmitData pushes one payload byte into the transmit ring and, once
// enough has accumulated (or the message is complete), emits a bulk-OUT
// packet. Calling it with no transmit in progress is a silent no-op.
func (d *Driver) TransmitData(b byte) {
	if d.TransmitDone() {
		return
	}
	if !d.ring.write(b) {
		d.abandonTransmit(ErrTransmit, byte(DetailOverflowed))
		return
	}
	d.binCurrentSize--
	d.tryEmitPacket()
}

// Transmit is the fixed-size convenience form of BeginTransmit plus a
// TransmitData loop. Every byte of data is fed into the ring regardless
// of TransmitDone's value partway through the loop — the ring drains
// itself across packets, so stopping early the moment TransmitDone
// becomes true would silently drop any bytes still queued behind a
// completed first packet (spec.md §9, Open Question on the "Transmit
// short form").
func (d *Driver) Transmit(n int, data []byte) error {
	if err := d.BeginTransmit(n); err != nil {
		return err
	}
	for i := 0; i < n && i < len(data); i++ {
		d.TransmitData(data[i])
	}
	return nil
}

// abandonTransmit resets transmit state and schedules a bulk-OUT abort
// if a header had already reached the wire, per the normalized
// TransmitData error path (spec.md §9, Open Question on "dead code").
func (d *Driver) abandonTransmit(info InfoCode, detail byte) {
	hadHeader := d.isSentHeader
	d.ring.flush()
	d.binCurrentSize = 0
	d.isSentHeader = false
	d.sink.OnFailed(info, detail)
	if hadHeader {
		d.state = StateInitiateAbortBulkOut
	}
}

// tryEmitPacket drains the ring into one bulk-OUT packet once either a
// full packet's worth of payload is available or the message is
// complete (spec.md §4.4).
func (d *Driver) tryEmitPacket() {
	ep := &d.endpoints[epDataOut]
	maxPkt := int(ep.MaxPacketSize)
	if maxPkt <= 0 {
		return
	}
	sendingHeader := !d.isSentHeader
	effective := maxPkt
	if sendingHeader {
		effective = maxPkt - headerSize
		if effective <= 0 {
			return
		}
	}

	moreExpected := d.binCurrentSize > 0
	if d.ring.len() < effective && moreExpected {
		return
	}

	n := effective
	if d.ring.len() < n {
		n = d.ring.len()
	}
	if n == 0 {
		return
	}

	var packet [headerSize + ringCapacity]byte
	offset := 0
	if sendingHeader {
		hdr := encodeDevDepMsgOut(d.bTag.current(), uint32(d.binTotalSize), true)
		copy(packet[:headerSize], hdr[:])
		offset = headerSize
	}
	drained := d.ring.drain(packet[offset : offset+n])
	total := offset + drained
	padded := align4(total)
	for i := total; i < padded; i++ {
		packet[i] = 0
	}

	_, res, err := d.transport.BulkOut(d.busAddress, ep, packet[:padded])
	if res != ResultOK {
		d.abandonTransmit(ErrTransmit, transportDetail(err))
		return
	}
	if sendingHeader {
		d.lastBTag = d.bTag.advance()
		d.isSentHeader = true
	}
}

// AbortReceive preempts any active state and begins bulk-IN abort
// recovery. Calling it twice before Run advances the recovery is the
// same as calling it once (spec.md §8); a call made once recovery is
// under way restarts it at InitiateAbortBulkIn.
func (d *Driver) AbortReceive() {
	d.state = StateInitiateAbortBulkIn
}

// AbortTransmit preempts any active state and begins bulk-OUT abort
// recovery.
func (d *Driver) AbortTransmit() {
	d.state = StateInitiateAbortBulkOut
}

// Clear preempts any active state and begins the USBTMC clear sequence.
func (d *Driver) Clear() {
	d.state = StateInitiateClear
}

// Pause requests that the engine suspend its current activity on the
// next Run call, to be resumed later with Unpause.
func (d *Driver) Pause() {
	d.isResume = true
}

// Unpause clears a pending or active pause; the engine resumes its
// preempted activity on the next Run call.
func (d *Driver) Unpause() {
	d.isResume = false
}

// Run advances the engine by at most one transport call. If enabled is
// false the engine is forced to Idle. Run is not a coroutine: it always
// returns promptly, whether or not it made progress (spec.md §5).
func (d *Driver) Run(enabled bool) {
	if !enabled {
		d.state = StateIdle
		return
	}
	now := d.clock.Millis()
	if now-d.previousMillis < d.timestepMillis {
		return
	}
	d.previousMillis = now

	if d.isResume && d.state != StateIdle && d.state != StatePause {
		d.resumedState = d.state
		d.state = StatePause
	}

	switch d.state {
	case StateIdle:
	case StatePause:
		if !d.isResume {
			d.state = d.resumedState
		}
	case StateReceiveHeader:
		d.runReceiveHeader(now)
	case StateReceivePayload:
		d.runReceivePayload(now)
	case StateInitiateAbortBulkOut:
		d.runInitiateAbortBulkOut()
	case StateCheckAbortBulkOutStatus:
		d.runCheckAbortBulkOutStatus()
	case StateInitiateAbortBulkIn:
		d.runInitiateAbortBulkIn()
	case StateReadingByAbortBulkIn:
		d.runReadingByAbortBulkIn()
	case StateCheckAbortBulkInStatus:
		d.runCheckAbortBulkInStatus()
	case StateInitiateClear:
		d.runInitiateClear()
	case StateCheckClearStatus:
		d.runCheckClearStatus()
	case StateReadingByInitiateClear:
		d.runReadingByInitiateClear()
	case StateClearFeature:
		d.runClearFeature()
	}
}

func (d *Driver) runReceiveHeader(now uint32) {
	var buf [64]byte
	ep := &d.endpoints[epDataIn]
	n, res, err := d.transport.BulkIn(d.busAddress, ep, buf[:])
	switch res {
	case ResultNAK:
		if now-d.waitBeginMillis > nakTimeoutMillis {
			d.sink.OnFailed(ErrReceiveHeaderNakTimeout, byte(DetailFailed))
			d.state = StateInitiateAbortBulkIn
		}
		return
	case ResultError:
		d.sink.OnFailed(ErrReceiveHeaderFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	if n < headerSize {
		d.sink.OnFailed(ErrReceiveHeaderFailed, byte(DetailUnexpectedSize))
		d.state = StateIdle
		return
	}
	hdr, herr := decodeDevDepMsgInHeader(buf[:n])
	if herr != nil {
		d.sink.OnFailed(ErrReceiveHeaderFailed, byte(DetailUnexpectedSize))
		d.state = StateIdle
		return
	}
	if int(hdr.TransferSize) < d.requestLength {
		d.requestLength = int(hdr.TransferSize)
	}
	payload := buf[headerSize:n]
	take := len(payload)
	if take > d.requestLength {
		take = d.requestLength
	}
	for i := 0; i < take; i++ {
		d.sink.OnReceived(payload[i])
	}
	d.requestLength -= take
	d.waitBeginMillis = now
	if d.requestLength > 0 {
		d.state = StateReceivePayload
	} else {
		d.state = StateIdle
	}
}

func (d *Driver) runReceivePayload(now uint32) {
	var buf [64]byte
	ep := &d.endpoints[epDataIn]
	n, res, err := d.transport.BulkIn(d.busAddress, ep, buf[:])
	switch res {
	case ResultNAK:
		if now-d.waitBeginMillis > nakTimeoutMillis {
			d.sink.OnFailed(ErrReceivePayloadNakTimeout, byte(DetailFailed))
			d.state = StateInitiateAbortBulkIn
		}
		return
	case ResultError:
		d.sink.OnFailed(ErrReceivePayloadFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	take := n
	if take > d.requestLength {
		take = d.requestLength
	}
	for i := 0; i < take; i++ {
		d.sink.OnReceived(buf[i])
	}
	d.requestLength -= take
	d.waitBeginMillis = now
	if d.requestLength <= 0 {
		d.state = StateIdle
	}
}

func (d *Driver) runInitiateAbortBulkOut() {
	var resp [2]byte
	err := d.controlIn(reqInitiateAbortBulkOut, TargetEndpoint, uint16(d.lastBTag), uint16(d.endpoints[epDataOut].Address), resp[:])
	if err != nil {
		d.sink.OnFailed(ErrInitiateAbortBulkOutFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	if resp[0] == statusSuccess {
		d.state = StateCheckAbortBulkOutStatus
	} else {
		d.sink.OnFailed(ErrInitiateAbortBulkOutRejected, resp[0])
		d.state = StateIdle
	}
}

func (d *Driver) runCheckAbortBulkOutStatus() {
	var resp [8]byte
	err := d.controlIn(reqCheckAbortBulkOutStatus, TargetEndpoint, 0, uint16(d.endpoints[epDataOut].Address), resp[:])
	if err != nil {
		d.sink.OnFailed(ErrCheckAbortBulkOutStatusFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	if resp[0] == statusPending {
		return
	}
	d.state = StateClearFeature
}

func (d *Driver) runInitiateAbortBulkIn() {
	var resp [2]byte
	err := d.controlIn(reqInitiateAbortBulkIn, TargetEndpoint, uint16(d.lastBTag), uint16(d.endpoints[epDataIn].Address), resp[:])
	if err != nil {
		d.sink.OnFailed(ErrInitiateAbortBulkInFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	if resp[0] == statusSuccess {
		d.state = StateReadingByAbortBulkIn
	} else {
		d.sink.OnFailed(ErrInitiateAbortBulkInRejected, resp[0])
		d.state = StateIdle
	}
}

func (d *Driver) runReadingByAbortBulkIn() {
	var buf [64]byte
	ep := &d.endpoints[epDataIn]
	n, res, err := d.transport.BulkIn(d.busAddress, ep, buf[:])
	if res == ResultError {
		d.sink.OnFailed(ErrReadingByAbortBulkInFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	if res == ResultNAK || n < int(ep.MaxPacketSize) {
		d.state = StateCheckAbortBulkInStatus
		return
	}
	// full packet: the device may still be streaming, stay and drain more.
}

// runCheckAbortBulkInStatus evaluates bit 0 of bmAbortBulkIn. The USBTMC
// spec tests bit 0; the original driver this was ported from computed
// `bmAbortBulkIn & 0x01 == 0x01`, which C operator precedence evaluates
// as `bmAbortBulkIn & (0x01 == 0x01)`, i.e. `bmAbortBulkIn & 1` — the
// same result only by coincidence of testing bit 0. This implementation
// uses the explicitly parenthesized, intended form (spec.md §9).
func (d *Driver) runCheckAbortBulkInStatus() {
	var resp [8]byte
	err := d.controlIn(reqCheckAbortBulkInStatus, TargetEndpoint, 0, uint16(d.endpoints[epDataIn].Address), resp[:])
	if err != nil {
		d.sink.OnFailed(ErrCheckAbortBulkInStatusFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	status := resp[0]
	bmAbortBulkIn := resp[1]
	if status == statusPending {
		if (bmAbortBulkIn & 0x01) == 0x01 {
			d.state = StateReadingByAbortBulkIn
		}
		return
	}
	d.sink.OnFailed(InfoAbortBulkInSucceeded, status)
	d.state = StateIdle
}

func (d *Driver) runInitiateClear() {
	var resp [1]byte
	err := d.controlIn(reqInitiateClear, TargetInterface, 0, 0, resp[:])
	if err != nil {
		d.sink.OnFailed(ErrInitiateClearFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	if resp[0] == statusSuccess {
		d.state = StateCheckClearStatus
	} else {
		d.sink.OnFailed(ErrInitiateClearRejected, resp[0])
		d.state = StateIdle
	}
}

// runCheckClearStatus reads a 2-byte CHECK_CLEAR_STATUS response, per the
// USBTMC spec and spec.md §9 (one variant of the original source read 8
// bytes here; that was a bug).
func (d *Driver) runCheckClearStatus() {
	var resp [2]byte
	err := d.controlIn(reqCheckClearStatus, TargetInterface, 0, 0, resp[:])
	if err != nil {
		d.sink.OnFailed(ErrCheckClearStatusFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	status := resp[0]
	bmClear := resp[1]
	if status == statusPending {
		if (bmClear & 0x01) == 0x01 {
			d.state = StateReadingByInitiateClear
		}
		return
	}
	d.state = StateClearFeature
}

func (d *Driver) runReadingByInitiateClear() {
	var buf [64]byte
	ep := &d.endpoints[epDataIn]
	n, res, err := d.transport.BulkIn(d.busAddress, ep, buf[:])
	if res == ResultError {
		d.sink.OnFailed(ErrReadingByInitiateClearFailed, transportDetail(err))
		d.state = StateIdle
		return
	}
	if res == ResultNAK || n < int(ep.MaxPacketSize) {
		d.state = StateCheckClearStatus
		return
	}
}

func (d *Driver) runClearFeature() {
	ep := &d.endpoints[epDataOut]
	err := d.transport.ClearHalt(d.busAddress, ep)
	if err != nil {
		d.sink.OnFailed(ErrClearFeatureFailed, transportDetail(err))
	} else {
		ep.resetToggles()
		d.sink.OnFailed(InfoClearSucceeded, 0)
	}
	d.state = StateIdle
}
