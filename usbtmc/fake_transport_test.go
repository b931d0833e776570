package usbtmc

// fakeTransport is a HostTransport double built from per-call closures;
// tests set only the closures the scenario under test actually
// exercises. A nil closure returns an innocuous zero result rather than
// panicking, so tests that don't care about a given call can leave it
// unset.
type fakeTransport struct {
	getDeviceDescriptor func(addr byte) (DeviceDescriptor, error)
	getStringDescriptor func(addr, idx byte) ([]byte, error)
	setAddress          func(addr byte) error
	setConfiguration    func(addr, cfg byte) error
	setEndpointInfo     func(addr byte, table *EndpointTable) error
	getConfigDescriptor func(addr, cfgIndex byte, visit EndpointVisitor) error
	controlRequest      func(addr, target byte, dir bool, bRequest byte, wValue, wIndex uint16, buf []byte) (int, error)
	bulkOut             func(addr byte, ep *Endpoint, data []byte) (int, Result, error)
	bulkIn              func(addr byte, ep *Endpoint, buf []byte) (int, Result, error)
	interruptIn         func(addr byte, ep *Endpoint, buf []byte) (int, Result, error)
	clearHalt           func(addr byte, ep *Endpoint) error
	allocAddress        func(parent byte, lowSpeed bool, port byte) (byte, error)
	freeAddress         func(addr byte)
}

func (f *fakeTransport) GetDeviceDescriptor(addr byte) (DeviceDescriptor, error) {
	if f.getDeviceDescriptor == nil {
		return DeviceDescriptor{}, nil
	}
	return f.getDeviceDescriptor(addr)
}

func (f *fakeTransport) GetStringDescriptor(addr, idx byte) ([]byte, error) {
	if f.getStringDescriptor == nil {
		return nil, nil
	}
	return f.getStringDescriptor(addr, idx)
}

func (f *fakeTransport) SetAddress(addr byte) error {
	if f.setAddress == nil {
		return nil
	}
	return f.setAddress(addr)
}

func (f *fakeTransport) SetConfiguration(addr, cfg byte) error {
	if f.setConfiguration == nil {
		return nil
	}
	return f.setConfiguration(addr, cfg)
}

func (f *fakeTransport) SetEndpointInfo(addr byte, table *EndpointTable) error {
	if f.setEndpointInfo == nil {
		return nil
	}
	return f.setEndpointInfo(addr, table)
}

func (f *fakeTransport) GetConfigDescriptor(addr, cfgIndex byte, visit EndpointVisitor) error {
	if f.getConfigDescriptor == nil {
		return nil
	}
	return f.getConfigDescriptor(addr, cfgIndex, visit)
}

func (f *fakeTransport) ControlRequest(addr, target byte, dir bool, bRequest byte, wValue, wIndex uint16, buf []byte) (int, error) {
	if f.controlRequest == nil {
		return len(buf), nil
	}
	return f.controlRequest(addr, target, dir, bRequest, wValue, wIndex, buf)
}

func (f *fakeTransport) BulkOut(addr byte, ep *Endpoint, data []byte) (int, Result, error) {
	if f.bulkOut == nil {
		return len(data), ResultOK, nil
	}
	return f.bulkOut(addr, ep, data)
}

func (f *fakeTransport) BulkIn(addr byte, ep *Endpoint, buf []byte) (int, Result, error) {
	if f.bulkIn == nil {
		return 0, ResultOK, nil
	}
	return f.bulkIn(addr, ep, buf)
}

func (f *fakeTransport) InterruptIn(addr byte, ep *Endpoint, buf []byte) (int, Result, error) {
	if f.interruptIn == nil {
		return 0, ResultOK, nil
	}
	return f.interruptIn(addr, ep, buf)
}

func (f *fakeTransport) ClearHalt(addr byte, ep *Endpoint) error {
	if f.clearHalt == nil {
		return nil
	}
	return f.clearHalt(addr, ep)
}

func (f *fakeTransport) AllocAddress(parent byte, lowSpeed bool, port byte) (byte, error) {
	if f.allocAddress == nil {
		return 2, nil
	}
	return f.allocAddress(parent, lowSpeed, port)
}

func (f *fakeTransport) FreeAddress(addr byte) {
	if f.freeAddress != nil {
		f.freeAddress(addr)
	}
}

type fakeClock struct{ ms uint32 }

func (c *fakeClock) Millis() uint32 { return c.ms }

type failure struct {
	info   InfoCode
	detail byte
}

// recordingSink is an EventSink that keeps everything it is told, for
// assertions.
type recordingSink struct {
	descr       *DeviceDescriptor
	serial      []byte
	received    []byte
	statusBytes []byte
	failures    []failure
}

func (s *recordingSink) OnRcvdDescr(d DeviceDescriptor, serial []byte) {
	cp := d
	s.descr = &cp
	s.serial = append([]byte(nil), serial...)
}

func (s *recordingSink) OnReceived(b byte) { s.received = append(s.received, b) }

func (s *recordingSink) OnReadStatusByte(b byte) { s.statusBytes = append(s.statusBytes, b) }

func (s *recordingSink) OnFailed(info InfoCode, detail byte) {
	s.failures = append(s.failures, failure{info, detail})
}
