package usbtmc

// Clock is the wall-clock source the driver borrows for NAK timeouts and
// Run() tick throttling. It is the only notion of time the protocol
// engine has; it never reads a real clock itself (spec.md §1, §5).
type Clock interface {
	// Millis returns a free-running millisecond counter. It must not
	// wrap in any run shorter than the device's NAK timeout.
	Millis() uint32
}

// Result is the outcome of a single bulk or interrupt transfer attempt.
type Result int

const (
	// ResultOK means the transfer completed and n is valid.
	ResultOK Result = iota
	// ResultNAK means the endpoint NAK'd; valid only for endpoints
	// configured with NakNoWait (bulk-IN per spec.md §3 invariant 4).
	ResultNAK
	// ResultError means the transport failed the transfer for a reason
	// other than NAK; rcode carries the opaque transport error.
	ResultError
)

// DeviceDescriptor is the subset of the USB device descriptor the driver
// needs: vendor/product filtering, control endpoint 0 packet size, and
// the configuration/serial-string indices to walk next.
type DeviceDescriptor struct {
	VendorID          uint16
	ProductID         uint16
	MaxPacketSize0    byte
	NumConfigurations byte
	SerialNumberIndex byte
}

// EndpointDescriptor is one endpoint descriptor surfaced while walking a
// configuration descriptor during attach.
type EndpointDescriptor struct {
	Address       byte // bit 7 set = IN
	Attributes    byte // bits 1:0 = transfer type; 0x02 bulk, 0x03 interrupt
	MaxPacketSize uint16
	Interval      byte
}

// IsIn reports whether this is an IN endpoint.
func (e EndpointDescriptor) IsIn() bool { return e.Address&0x80 != 0 }

// IsBulk reports whether this endpoint is a bulk endpoint.
func (e EndpointDescriptor) IsBulk() bool { return e.Attributes&0x03 == 0x02 }

// IsInterrupt reports whether this endpoint is an interrupt endpoint.
func (e EndpointDescriptor) IsInterrupt() bool { return e.Attributes&0x03 == 0x03 }

// EndpointVisitor is called once per endpoint descriptor found while
// walking a configuration, with the owning interface's class/subclass/
// protocol triple so the caller can recognize a USBTMC USB488 interface
// (application-specific class 0xFE, USBTMC subclass 0x03, USB488
// protocol 0x01).
type EndpointVisitor func(ifaceClass, ifaceSubClass, ifaceProtocol byte, ep EndpointDescriptor)

// HostTransport is the host-side USB stack the driver is built on top
// of: device enumeration, address allocation, control transfers, and
// bulk/interrupt transfers. It is an external collaborator (spec.md §1)
// — this package only ever calls it, never implements it; see
// usbhost/libusb for a concrete implementation over gousb.
type HostTransport interface {
	// GetDeviceDescriptor reads the device descriptor of the device at
	// addr (0 during attach, before an address has been assigned).
	GetDeviceDescriptor(addr byte) (DeviceDescriptor, error)

	// GetStringDescriptor reads string descriptor index idx (e.g. the
	// serial number) from the device at addr.
	GetStringDescriptor(addr byte, idx byte) ([]byte, error)

	// SetAddress assigns addr to the device currently at address 0.
	SetAddress(addr byte) error

	// SetConfiguration selects configuration cfg on the device at addr.
	SetConfiguration(addr byte, cfg byte) error

	// SetEndpointInfo installs the driver's endpoint table as the
	// transport's record for the device at addr, preserving toggle
	// state the transport tracks per endpoint.
	SetEndpointInfo(addr byte, table *EndpointTable) error

	// GetConfigDescriptor walks configuration index cfgIndex of the
	// device at addr, invoking visit once per endpoint descriptor
	// found.
	GetConfigDescriptor(addr byte, cfgIndex byte, visit EndpointVisitor) error

	// ControlRequest issues a class- or standard-specific control
	// transfer. dir selects device-to-host (true) or host-to-device.
	// buf is filled (dir==true) or sent (dir==false); it returns the
	// byte count actually transferred.
	ControlRequest(addr byte, target byte, dir bool, bRequest byte, wValue, wIndex uint16, buf []byte) (int, error)

	// BulkOut writes data to endpoint ep.Address of the device at addr.
	BulkOut(addr byte, ep *Endpoint, data []byte) (int, Result, error)

	// BulkIn reads up to len(buf) bytes from endpoint ep.Address of the
	// device at addr, one packet at a time.
	BulkIn(addr byte, ep *Endpoint, buf []byte) (int, Result, error)

	// InterruptIn reads up to len(buf) bytes from an interrupt-IN
	// endpoint.
	InterruptIn(addr byte, ep *Endpoint, buf []byte) (int, Result, error)

	// ClearHalt issues a standard CLEAR_FEATURE(ENDPOINT_HALT) against
	// the given endpoint.
	ClearHalt(addr byte, ep *Endpoint) error

	// AllocAddress reserves a bus address for a device enumerating
	// under parent/port.
	AllocAddress(parent byte, lowSpeed bool, port byte) (byte, error)

	// FreeAddress releases a bus address obtained from AllocAddress.
	FreeAddress(addr byte)
}

// Control-request targets (USBTMC spec Table 15/16).
const (
	TargetEndpoint  byte = 0x02
	TargetInterface byte = 0x01
)
