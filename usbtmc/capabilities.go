package usbtmc

import (
	"encoding/binary"
	"fmt"

	"github.com/nasa-jpl/usbtmc-host/util"
)

// capabilitiesSize is the fixed length of the GET_CAPABILITIES response
// (spec.md §4.1). The byte layout below follows
// original_source/USBTMCHost/usbtmc.h's USBTMC_CAPABILITIES struct: 12
// bytes this driver does not interpret (status/bcdUSBTMC/USBTMC-only
// capability bits), bcdUSB488, USB488 interface capabilities, USB488
// device capabilities, then 8 reserved bytes.
const capabilitiesSize = 24

// Capabilities is the parsed GET_CAPABILITIES response.
type Capabilities struct {
	BcdUSB488                   uint16
	USB488InterfaceCapabilities byte
	USB488DeviceCapabilities    byte
}

// parseCapabilities parses a 24-byte GET_CAPABILITIES response.
func parseCapabilities(buf []byte) (Capabilities, error) {
	var c Capabilities
	if len(buf) < capabilitiesSize {
		return c, fmt.Errorf("usbtmc: short GET_CAPABILITIES response, got %d bytes want %d", len(buf), capabilitiesSize)
	}
	c.BcdUSB488 = binary.LittleEndian.Uint16(buf[12:14])
	c.USB488InterfaceCapabilities = buf[14]
	c.USB488DeviceCapabilities = buf[15]
	return c, nil
}

// SupportsTrigger reports USB488Interface.D0 (the TRIGGER message is
// forwarded to the function layer).
func (c Capabilities) SupportsTrigger() bool {
	return util.GetBit(c.USB488InterfaceCapabilities, 0)
}

// SupportsRENControl reports USB488Interface.D1 (REN_CONTROL,
// GO_TO_LOCAL, and LOCAL_LOCKOUT are accepted).
func (c Capabilities) SupportsRENControl() bool {
	return util.GetBit(c.USB488InterfaceCapabilities, 1)
}

// IsUSB488Interface reports USB488Interface.D2.
func (c Capabilities) IsUSB488Interface() bool {
	return util.GetBit(c.USB488InterfaceCapabilities, 2)
}

// UnderstandsMandatorySCPI reports USB488Device.D3.
func (c Capabilities) UnderstandsMandatorySCPI() bool {
	return util.GetBit(c.USB488DeviceCapabilities, 3)
}

// IsSR1 reports USB488Device.D2: the device is SR1-capable and uses its
// interrupt-IN endpoint to carry status-byte notifications
// (spec.md §4.6).
func (c Capabilities) IsSR1() bool {
	return util.GetBit(c.USB488DeviceCapabilities, 2)
}

// IsRL1 reports USB488Device.D1.
func (c Capabilities) IsRL1() bool {
	return util.GetBit(c.USB488DeviceCapabilities, 1)
}

// IsDT1 reports USB488Device.D0.
func (c Capabilities) IsDT1() bool {
	return util.GetBit(c.USB488DeviceCapabilities, 0)
}
