package usbtmc

import "testing"

// TestReadStatusByteSR1Path is scenario 5 of spec.md §8.
func TestReadStatusByteSR1Path(t *testing.T) {
	tr := &fakeTransport{}
	sink := &recordingSink{}
	d := NewDriver(tr, &fakeClock{}, sink)
	d.busAddress = 5
	d.endpoints[epInterruptIn] = Endpoint{Address: 0x83, MaxPacketSize: 8}
	d.capabilities = Capabilities{
		USB488InterfaceCapabilities: 0b00000100, // D2 = is USB488 interface
		USB488DeviceCapabilities:    0b00000100, // D2 = SR1
	}

	var gotBRequest byte
	tr.controlRequest = func(addr, target byte, dir bool, bRequest byte, wValue, wIndex uint16, buf []byte) (int, error) {
		gotBRequest = bRequest
		buf[0], buf[1], buf[2] = statusSuccess, 0x00, 0x00
		return len(buf), nil
	}
	tr.interruptIn = func(addr byte, ep *Endpoint, buf []byte) (int, Result, error) {
		buf[0] = 0x80 | 2 // rtb_bTag used for this request (generator starts at 2)
		buf[1] = 0x50
		return 2, ResultOK, nil
	}

	status, err := d.ReadStatusByte()
	if err != nil {
		t.Fatalf("ReadStatusByte: %v", err)
	}
	if gotBRequest != reqReadStatusByte {
		t.Fatalf("expected READ_STATUS_BYTE control request, got bRequest %#02x", gotBRequest)
	}
	if status != 0x50 {
		t.Fatalf("got status %#02x, want 0x50", status)
	}
	if len(sink.statusBytes) != 1 || sink.statusBytes[0] != 0x50 {
		t.Fatalf("expected OnReadStatusByte(0x50), got %v", sink.statusBytes)
	}
}

// TestReadStatusByteSR1WithoutUSB488InterfaceUsesControlResponse covers
// a device that sets the Device-capabilities SR1 bit but not the
// USB488 interface bit: the interrupt-IN correlation path must not be
// trusted, since SR1 only applies to a genuine USB488 interface
// (spec.md §4.6).
func TestReadStatusByteSR1WithoutUSB488InterfaceUsesControlResponse(t *testing.T) {
	tr := &fakeTransport{}
	sink := &recordingSink{}
	d := NewDriver(tr, &fakeClock{}, sink)
	d.busAddress = 5
	d.endpoints[epInterruptIn] = Endpoint{Address: 0x83, MaxPacketSize: 8}
	d.capabilities = Capabilities{USB488DeviceCapabilities: 0b00000100} // D2 = SR1, interface bit unset

	tr.controlRequest = func(addr, target byte, dir bool, bRequest byte, wValue, wIndex uint16, buf []byte) (int, error) {
		buf[0], buf[1], buf[2] = statusSuccess, 0x00, 0x42
		return len(buf), nil
	}
	tr.interruptIn = func(addr byte, ep *Endpoint, buf []byte) (int, Result, error) {
		t.Fatal("InterruptIn should not be called without the USB488 interface capability bit")
		return 0, ResultOK, nil
	}

	status, err := d.ReadStatusByte()
	if err != nil {
		t.Fatalf("ReadStatusByte: %v", err)
	}
	if status != 0x42 {
		t.Fatalf("got status %#02x, want 0x42 (control response value)", status)
	}
}

func TestReadStatusByteWithoutSR1UsesControlResponse(t *testing.T) {
	tr := &fakeTransport{}
	sink := &recordingSink{}
	d := NewDriver(tr, &fakeClock{}, sink)
	d.busAddress = 5
	// No interrupt-IN endpoint recorded, and device is not SR1-capable.

	tr.controlRequest = func(addr, target byte, dir bool, bRequest byte, wValue, wIndex uint16, buf []byte) (int, error) {
		buf[0], buf[1], buf[2] = statusSuccess, 0x00, 0x42
		return len(buf), nil
	}

	status, err := d.ReadStatusByte()
	if err != nil {
		t.Fatalf("ReadStatusByte: %v", err)
	}
	if status != 0x42 {
		t.Fatalf("got status %#02x, want 0x42", status)
	}
}

func TestReadStatusByteControlFailure(t *testing.T) {
	tr := &fakeTransport{}
	sink := &recordingSink{}
	d := NewDriver(tr, &fakeClock{}, sink)
	d.busAddress = 5

	tr.controlRequest = func(addr, target byte, dir bool, bRequest byte, wValue, wIndex uint16, buf []byte) (int, error) {
		buf[0] = statusFailed
		return len(buf), nil
	}

	if _, err := d.ReadStatusByte(); err == nil {
		t.Fatal("expected an error when the control response status is not success")
	}
	found := false
	for _, f := range sink.failures {
		if f.info == ErrReadStatusByte {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a ReadStatusByteError notification")
	}
}
