package usbtmc

// ReadStatusByte issues READ_STATUS_BYTE and returns the IEEE-488 status
// byte (spec.md §4.6). It is a synchronous control/interrupt exchange,
// not part of the Run() state machine: the underlying transfers are
// small and do not block on device-side processing the way bulk
// transfers can.
//
// When the device is SR1-capable (Capabilities.IsSR1), reports a USB488
// interface (Capabilities.IsUSB488Interface), and has an interrupt-IN
// endpoint, the status byte is read from that endpoint once
// it signals the rtb_bTag used for this request; otherwise the byte
// returned in the control response itself is used.
func (d *Driver) ReadStatusByte() (byte, error) {
	tag := d.rtbTag.current()
	var resp [3]byte
	err := d.controlIn(reqReadStatusByte, TargetInterface, uint16(tag), 0, resp[:])
	d.lastRTBTag = d.rtbTag.advance()
	if err != nil {
		d.sink.OnFailed(ErrReadStatusByte, transportDetail(err))
		return 0, wrapTransport("read status byte", err)
	}
	if resp[0] != statusSuccess {
		d.sink.OnFailed(ErrReadStatusByte, byte(DetailFailed))
		return 0, &LastError{Info: ErrReadStatusByte, Detail: byte(DetailFailed)}
	}

	status := resp[2]
	if d.capabilities.IsSR1() && d.capabilities.IsUSB488Interface() && d.endpoints[epInterruptIn].Address != 0 {
		var irq [2]byte
		n, res, _ := d.transport.InterruptIn(d.busAddress, &d.endpoints[epInterruptIn], irq[:])
		if res == ResultOK && n >= 2 && irq[0]&0x80 != 0 && irq[0]&0x7F == tag {
			status = irq[1]
		}
	}

	d.sink.OnReadStatusByte(status)
	return status, nil
}
