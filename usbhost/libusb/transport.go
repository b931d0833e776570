// Package libusb implements usbtmc.HostTransport over
// github.com/google/gousb, the libusb binding used by
// nasa-jpl-golaborate/usbtmc's USBDevice (SPEC_FULL.md DOMAIN STACK).
//
// gousb devices are already enumerated and addressed by the host
// operating system by the time an application can open them, so this
// transport cannot perform the raw GET_DESCRIPTOR(addr=0)/SET_ADDRESS
// dance a bare-metal USB host stack does. Instead it keeps its own
// table of synthetic addresses the usbtmc.Driver can reason about, and
// treats address 0 as "the device currently being attached, already
// open but not yet admitted into the table". SetAddress only moves a
// pending device into that table; it issues no USB traffic.
package libusb

import (
	"fmt"
	"sync"

	"github.com/google/gousb"
	"github.com/pkg/errors"

	"github.com/nasa-jpl/usbtmc-host/usbtmc"
)

// reqClearFeature and featEndpointHalt are the standard control request
// and feature selector ClearHalt issues against an endpoint, since
// gousb does not surface libusb_clear_halt directly.
const (
	reqClearFeature  = 0x01
	featEndpointHalt = 0x00
)

// bmRequestType recipients/directions used when building Control calls.
const (
	rtEndpointIn  = 0x80 | 0x02
	rtEndpointOut = 0x00 | 0x02
)

type attachedDevice struct {
	dev     *gousb.Device
	cfg     *gousb.Config
	iface   *gousb.Interface
	closers []func()
	inEps   map[byte]*gousb.InEndpoint
	outEps  map[byte]*gousb.OutEndpoint
}

// Transport is a usbtmc.HostTransport backed by a libusb context. The
// zero value is not usable; construct with New.
type Transport struct {
	ctx *gousb.Context

	mu      sync.Mutex
	devices map[byte]*attachedDevice
	nextPID byte // synthetic address allocator, starts at 2 (0 and 1 are reserved)

	pending    *gousb.Device // opened by GetDeviceDescriptor(0), awaiting SetAddress
	pendingKey string
	claimed    map[string]bool // bus/address keys already admitted, so re-scans skip them
}

// New opens a libusb context. Call Close when done to release it.
func New() *Transport {
	return &Transport{
		ctx:     gousb.NewContext(),
		devices: make(map[byte]*attachedDevice),
		nextPID: 2,
		claimed: make(map[string]bool),
	}
}

// Close releases every attached device and the underlying libusb
// context.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr := range t.devices {
		t.releaseLocked(addr)
	}
	if t.pending != nil {
		t.pending.Close()
		t.pending = nil
	}
	return t.ctx.Close()
}

func busKey(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("%d:%d", desc.Bus, desc.Address)
}

// GetDeviceDescriptor reads the device descriptor at addr. addr==0
// scans for a not-yet-claimed device on the bus and opens it as the
// pending attachment; any other addr must already be in the table.
func (t *Transport) GetDeviceDescriptor(addr byte) (usbtmc.DeviceDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if addr != 0 {
		ad, ok := t.devices[addr]
		if !ok {
			return usbtmc.DeviceDescriptor{}, fmt.Errorf("libusb: no device at address %d", addr)
		}
		return deviceDescriptorOf(ad.dev.Desc), nil
	}

	if t.pending != nil {
		return deviceDescriptorOf(t.pending.Desc), nil
	}

	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return !t.claimed[busKey(desc)]
	})
	if err != nil {
		return usbtmc.DeviceDescriptor{}, errors.Wrap(err, "libusb: enumerate devices")
	}
	for i, d := range devs {
		if i == 0 {
			continue
		}
		d.Close() // only the first candidate stays open
	}
	if len(devs) == 0 {
		return usbtmc.DeviceDescriptor{}, fmt.Errorf("libusb: no unclaimed device found")
	}

	d := devs[0]
	if err := d.SetAutoDetach(true); err != nil {
		d.Close()
		return usbtmc.DeviceDescriptor{}, errors.Wrap(err, "libusb: set auto detach")
	}
	t.pending = d
	t.pendingKey = busKey(d.Desc)
	return deviceDescriptorOf(d.Desc), nil
}

func deviceDescriptorOf(desc *gousb.DeviceDesc) usbtmc.DeviceDescriptor {
	return usbtmc.DeviceDescriptor{
		VendorID:          uint16(desc.Vendor),
		ProductID:         uint16(desc.Product),
		MaxPacketSize0:    byte(desc.MaxControlPacketSize),
		NumConfigurations: byte(len(desc.Configs)),
		SerialNumberIndex: 3, // gousb resolves string indices internally; see GetStringDescriptor
	}
}

// GetStringDescriptor reads string descriptor idx. gousb resolves the
// serial number through Device.SerialNumber rather than a raw index,
// so idx is ignored for the pending device and kept only to satisfy
// usbtmc.HostTransport.
func (t *Transport) GetStringDescriptor(addr byte, idx byte) ([]byte, error) {
	dev, err := t.deviceAt(addr)
	if err != nil {
		return nil, err
	}
	s, err := dev.SerialNumber()
	if err != nil {
		return nil, errors.Wrap(err, "libusb: get serial number")
	}
	return []byte(s), nil
}

func (t *Transport) deviceAt(addr byte) (*gousb.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if addr == 0 {
		if t.pending == nil {
			return nil, fmt.Errorf("libusb: no pending device")
		}
		return t.pending, nil
	}
	ad, ok := t.devices[addr]
	if !ok {
		return nil, fmt.Errorf("libusb: no device at address %d", addr)
	}
	return ad.dev, nil
}

// SetAddress admits the pending device (opened by GetDeviceDescriptor
// at addr 0) into the address table under addr. No USB traffic is
// generated; see the package doc comment.
func (t *Transport) SetAddress(addr byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return fmt.Errorf("libusb: no pending device to address")
	}
	t.devices[addr] = &attachedDevice{
		dev:    t.pending,
		inEps:  make(map[byte]*gousb.InEndpoint),
		outEps: make(map[byte]*gousb.OutEndpoint),
	}
	t.claimed[t.pendingKey] = true
	t.pending = nil
	t.pendingKey = ""
	return nil
}

// SetConfiguration selects configuration cfg (0-indexed in the
// usbtmc.Driver's bookkeeping). It opens no endpoints; the
// SetEndpointInfo call that follows it during attach does that.
func (t *Transport) SetConfiguration(addr byte, cfg byte) error {
	t.mu.Lock()
	ad, ok := t.devices[addr]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("libusb: no device at address %d", addr)
	}

	cfgDesc, ok := ad.dev.Desc.Configs[int(cfg)+1]
	if !ok {
		return fmt.Errorf("libusb: device has no configuration index %d", cfg)
	}
	c, err := ad.dev.Config(cfgDesc.Number)
	if err != nil {
		return errors.Wrap(err, "libusb: set configuration")
	}
	ad.cfg = c
	return nil
}

// SetEndpointInfo opens (or re-opens) the interface carrying the
// endpoints named in table, claiming the interface on first call.
func (t *Transport) SetEndpointInfo(addr byte, table *usbtmc.EndpointTable) error {
	t.mu.Lock()
	ad, ok := t.devices[addr]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("libusb: no device at address %d", addr)
	}
	if ad.cfg == nil {
		return nil // called once before SetConfiguration during attachAt; nothing to do yet
	}

	ifaceNum, altNum, epNums := findInterfaceFor(ad.cfg.Desc, table)
	if ifaceNum < 0 {
		return fmt.Errorf("libusb: no interface matches the classified endpoints")
	}

	iface, err := ad.cfg.Interface(ifaceNum, altNum)
	if err != nil {
		return errors.Wrap(err, "libusb: claim interface")
	}
	ad.iface = iface

	for _, epNum := range epNums {
		in, err := iface.InEndpoint(epNum)
		if err == nil {
			ad.inEps[byte(0x80|epNum)] = in
			continue
		}
		out, err := iface.OutEndpoint(epNum)
		if err != nil {
			return errors.Wrapf(err, "libusb: open endpoint %d", epNum)
		}
		ad.outEps[byte(epNum)] = out
	}
	return nil
}

// findInterfaceFor locates the interface/alt-setting owning the
// endpoints the driver classified during attach.
func findInterfaceFor(cfg gousb.ConfigDesc, table *usbtmc.EndpointTable) (int, int, []int) {
	want := map[byte]bool{}
	for _, ep := range table {
		if ep.Address != 0 {
			want[ep.Address] = true
		}
	}
	for _, iface := range cfg.Interfaces {
		for _, alt := range iface.AltSettings {
			nums := map[int]bool{}
			for epAddr, epDesc := range alt.Endpoints {
				if want[byte(epAddr)] {
					nums[epDesc.Number] = true
				}
			}
			if len(nums) == 0 {
				continue
			}
			out := make([]int, 0, len(nums))
			for n := range nums {
				out = append(out, n)
			}
			return iface.Number, alt.Number, out
		}
	}
	return -1, -1, nil
}

// GetConfigDescriptor walks configuration cfgIndex's interfaces and
// invokes visit once per endpoint (nasa-jpl-golaborate/usbtmc.go has no
// equivalent; grounded on the teacher's gousb usage style plus
// other_examples' gousb descriptor walking conventions).
func (t *Transport) GetConfigDescriptor(addr byte, cfgIndex byte, visit usbtmc.EndpointVisitor) error {
	dev, err := t.deviceAt(addr)
	if err != nil {
		return err
	}
	cfgDesc, ok := dev.Desc.Configs[int(cfgIndex)+1]
	if !ok {
		return fmt.Errorf("libusb: device has no configuration index %d", cfgIndex)
	}
	for _, iface := range cfgDesc.Interfaces {
		for _, alt := range iface.AltSettings {
			for epAddr, epDesc := range alt.Endpoints {
				visit(byte(alt.Class), byte(alt.SubClass), byte(alt.Protocol), usbtmc.EndpointDescriptor{
					Address:       byte(epAddr),
					Attributes:    transferTypeAttribute(epDesc.TransferType),
					MaxPacketSize: uint16(epDesc.MaxPacketSize),
					Interval:      byte(epDesc.Interval.Milliseconds()),
				})
			}
		}
	}
	return nil
}

func transferTypeAttribute(tt gousb.TransferType) byte {
	switch tt {
	case gousb.TransferTypeBulk:
		return 0x02
	case gousb.TransferTypeInterrupt:
		return 0x03
	default:
		return byte(tt)
	}
}

// ControlRequest issues a vendor/class control transfer against target
// (usbtmc.TargetInterface or usbtmc.TargetEndpoint).
func (t *Transport) ControlRequest(addr byte, target byte, dir bool, bRequest byte, wValue, wIndex uint16, buf []byte) (int, error) {
	dev, err := t.deviceAt(addr)
	if err != nil {
		return 0, err
	}
	rType := byte(0x21) // class, interface recipient by default
	if target == usbtmc.TargetEndpoint {
		rType = 0x22
	}
	if dir {
		rType |= 0x80
	}
	n, err := dev.Control(rType, bRequest, wValue, wIndex, buf)
	if err != nil {
		return 0, errors.Wrap(err, "libusb: control transfer")
	}
	return n, nil
}

// BulkOut writes data to the bulk-OUT endpoint classified into ep.
func (t *Transport) BulkOut(addr byte, ep *usbtmc.Endpoint, data []byte) (int, usbtmc.Result, error) {
	ad, err := t.attachedAt(addr)
	if err != nil {
		return 0, usbtmc.ResultError, err
	}
	out, ok := ad.outEps[ep.Address]
	if !ok {
		return 0, usbtmc.ResultError, fmt.Errorf("libusb: endpoint %#02x not open", ep.Address)
	}
	n, err := out.Write(data)
	return n, resultFor(err), wrapIfErr(err)
}

// BulkIn reads from the bulk-IN endpoint classified into ep.
func (t *Transport) BulkIn(addr byte, ep *usbtmc.Endpoint, buf []byte) (int, usbtmc.Result, error) {
	ad, err := t.attachedAt(addr)
	if err != nil {
		return 0, usbtmc.ResultError, err
	}
	in, ok := ad.inEps[ep.Address]
	if !ok {
		return 0, usbtmc.ResultError, fmt.Errorf("libusb: endpoint %#02x not open", ep.Address)
	}
	n, err := in.Read(buf)
	return n, resultFor(err), wrapIfErr(err)
}

// InterruptIn reads from the interrupt-IN endpoint classified into ep.
func (t *Transport) InterruptIn(addr byte, ep *usbtmc.Endpoint, buf []byte) (int, usbtmc.Result, error) {
	return t.BulkIn(addr, ep, buf)
}

func resultFor(err error) usbtmc.Result {
	if err == nil {
		return usbtmc.ResultOK
	}
	return usbtmc.ResultError
}

func wrapIfErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, "libusb: transfer")
}

// ClearHalt issues CLEAR_FEATURE(ENDPOINT_HALT) against ep; gousb does
// not surface libusb_clear_halt, so this goes out over Control.
func (t *Transport) ClearHalt(addr byte, ep *usbtmc.Endpoint) error {
	dev, err := t.deviceAt(addr)
	if err != nil {
		return err
	}
	rt := byte(rtEndpointOut)
	if ep.Address&0x80 != 0 {
		rt = rtEndpointIn
	}
	_, err = dev.Control(rt&^0x80, reqClearFeature, featEndpointHalt, uint16(ep.Address), nil)
	return wrapIfErr(err)
}

// AllocAddress hands out the next synthetic address; gousb devices are
// already addressed by the OS, so this only reserves a slot in our own
// table (see the package doc comment).
func (t *Transport) AllocAddress(parent byte, lowSpeed bool, port byte) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	addr := t.nextPID
	t.nextPID++
	if t.nextPID == 0 {
		t.nextPID = 2
	}
	return addr, nil
}

// FreeAddress releases a synthetic address and closes the underlying
// device handle.
func (t *Transport) FreeAddress(addr byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked(addr)
}

func (t *Transport) releaseLocked(addr byte) {
	ad, ok := t.devices[addr]
	if !ok {
		return
	}
	if ad.dev != nil {
		ad.dev.Close()
	}
	delete(t.devices, addr)
}

func (t *Transport) attachedAt(addr byte) (*attachedDevice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ad, ok := t.devices[addr]
	if !ok {
		return nil, fmt.Errorf("libusb: no device at address %d", addr)
	}
	return ad, nil
}

var _ usbtmc.HostTransport = (*Transport)(nil)
