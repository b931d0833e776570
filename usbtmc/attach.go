package usbtmc

import (
	"bytes"
	"log"
	"time"

	"github.com/cenkalti/backoff"
)

// usbClassAppSpecific, usbSubclassTMC, and usb488Protocol identify the
// USBTMC USB488 interface during the configuration-descriptor walk
// (USBTMC spec §4.1, original_source/USBTMCHostV2/usbtmc.cpp's
// ConfigDescParser<USB_CLASS_APP_SPECIFIC, 0x03, 0x01, ...>).
const (
	usbClassAppSpecific = 0xFE
	usbSubclassTMC      = 0x03
	usb488Protocol      = 0x01
)

// renAssert is wValue for the USB488 REN_CONTROL request: assert REN.
const renAssert = 0x01

// capabilitiesRetryMax bounds the GET_CAPABILITIES retry loop below; a
// device that never answers after this many attempts is treated as
// FailOnInit the way original_source's Init() does on first failure, but
// this port gives transient USB errors a few chances to clear first
// (SPEC_FULL.md DOMAIN STACK: cenkalti/backoff).
const capabilitiesRetryMax = 4

// Attach runs the full USBTMC device lifecycle against a device newly
// seen at address 0 under parent/port (spec.md §4.2). On any failure the
// bus address, if one was allocated, is released and the driver is left
// unattached.
func (d *Driver) Attach(parent, port byte, lowSpeed bool) error {
	if lowSpeed {
		return ErrLowSpeedUnsupported
	}
	if d.IsConnected() {
		return ErrNotSupported
	}

	desc, err := d.transport.GetDeviceDescriptor(0)
	if err != nil {
		return wrapTransport("get device descriptor", err)
	}

	if d.targetVID != 0 && desc.VendorID != d.targetVID {
		return ErrNotSupported
	}
	if d.targetPID != 0 && desc.ProductID != d.targetPID {
		return ErrNotSupported
	}

	var serial []byte
	if desc.SerialNumberIndex != 0 {
		serial, err = d.transport.GetStringDescriptor(0, desc.SerialNumberIndex)
		if err != nil {
			return wrapTransport("get serial number", err)
		}
	}
	if len(d.targetSerialPrefix) > 0 && !bytes.HasPrefix(serial, d.targetSerialPrefix) {
		return ErrNotSupported
	}

	addr, err := d.transport.AllocAddress(parent, lowSpeed, port)
	if err != nil {
		return wrapTransport("allocate address", err)
	}

	if err := d.attachAt(addr, desc); err != nil {
		d.transport.FreeAddress(addr)
		d.busAddress = 0
		d.endpoints = newEndpointTable()
		return err
	}

	d.sink.OnRcvdDescr(desc, serial)
	return nil
}

func (d *Driver) attachAt(addr byte, desc DeviceDescriptor) error {
	d.endpoints[epControl].MaxPacketSize = uint16(desc.MaxPacketSize0)

	if err := d.transport.SetAddress(addr); err != nil {
		return wrapTransport("set address", err)
	}
	d.busAddress = addr

	if err := d.transport.SetEndpointInfo(addr, &d.endpoints); err != nil {
		return wrapTransport("set endpoint info", err)
	}

	cfgFound := -1
	for i := 0; i < int(desc.NumConfigurations); i++ {
		found, err := d.walkConfig(addr, byte(i))
		if err != nil {
			return wrapTransport("get config descriptor", err)
		}
		if found {
			cfgFound = i
			break
		}
	}
	if cfgFound < 0 {
		return ErrNotSupported
	}
	if d.endpoints[epDataIn].Address == 0 || d.endpoints[epDataOut].Address == 0 {
		return ErrNotSupported
	}

	if err := d.transport.SetConfiguration(addr, byte(cfgFound)); err != nil {
		return wrapTransport("set configuration", err)
	}
	if err := d.transport.SetEndpointInfo(addr, &d.endpoints); err != nil {
		return wrapTransport("set endpoint info", err)
	}

	caps, err := d.fetchCapabilities()
	if err != nil {
		return err
	}
	d.capabilities = caps

	if caps.SupportsRENControl() {
		var status [1]byte
		if err := d.controlIn(reqRenControl, TargetInterface, renAssert, 0, status[:]); err != nil {
			return wrapTransport("ren control", err)
		}
		if status[0] != statusSuccess {
			return ErrNotSupported
		}
	}

	return nil
}

// walkConfig asks the transport to enumerate one configuration's
// interfaces and endpoints, placing any USBTMC USB488 bulk/interrupt
// endpoints into their fixed slots. It reports whether a qualifying
// interface (bulk-IN and bulk-OUT both present) was found — matching
// original_source's bNumEP > 1 re-probe loop across configurations
// (SPEC_FULL.md "supplemented features").
func (d *Driver) walkConfig(addr, cfgIndex byte) (bool, error) {
	foundBulkIn, foundBulkOut := false, false
	err := d.transport.GetConfigDescriptor(addr, cfgIndex, func(class, subclass, protocol byte, ep EndpointDescriptor) {
		if class != usbClassAppSpecific || subclass != usbSubclassTMC || protocol != usb488Protocol {
			return
		}
		switch {
		case ep.IsInterrupt() && ep.IsIn():
			d.endpoints[epInterruptIn] = Endpoint{Address: ep.Address, MaxPacketSize: ep.MaxPacketSize, NakPower: NakMaxPower}
		case ep.IsBulk() && ep.IsIn():
			d.endpoints[epDataIn] = Endpoint{Address: ep.Address, MaxPacketSize: ep.MaxPacketSize, NakPower: NakNoWait}
			foundBulkIn = true
		case ep.IsBulk() && !ep.IsIn():
			d.endpoints[epDataOut] = Endpoint{Address: ep.Address, MaxPacketSize: ep.MaxPacketSize, NakPower: NakMaxPower}
			foundBulkOut = true
		default:
			return
		}
		if d.Verbose {
			log.Printf("usbtmc: attach: endpoint %#02x class %#02x/%#02x/%#02x maxpkt %d", ep.Address, class, subclass, protocol, ep.MaxPacketSize)
		}
	})
	if err != nil {
		return false, err
	}
	return foundBulkIn && foundBulkOut, nil
}

// fetchCapabilities issues GET_CAPABILITIES with a short exponential
// backoff: some USBTMC devices answer the very first post-enumeration
// control request with a transient stall while their function layer is
// still settling.
func (d *Driver) fetchCapabilities() (Capabilities, error) {
	var caps Capabilities
	attempt := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 0

	op := func() error {
		attempt++
		var buf [capabilitiesSize]byte
		if err := d.controlIn(reqGetCapabilities, TargetInterface, 0, 0, buf[:]); err != nil {
			if attempt >= capabilitiesRetryMax {
				return backoff.Permanent(err)
			}
			return err
		}
		parsed, perr := parseCapabilities(buf[:])
		if perr != nil {
			if attempt >= capabilitiesRetryMax {
				return backoff.Permanent(perr)
			}
			return perr
		}
		caps = parsed
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return Capabilities{}, wrapTransport("get capabilities", err)
	}
	return caps, nil
}
