package usbtmc

import "testing"

func TestParseCapabilities(t *testing.T) {
	buf := make([]byte, capabilitiesSize)
	buf[12], buf[13] = 0x10, 0x02 // bcdUSB488 = 0x0210
	buf[14] = 0b00000111          // trigger, REN_CONTROL, USB488 interface
	buf[15] = 0b00001111          // DT1, RL1, SR1, mandatory SCPI

	caps, err := parseCapabilities(buf)
	if err != nil {
		t.Fatalf("parseCapabilities: %v", err)
	}
	if caps.BcdUSB488 != 0x0210 {
		t.Errorf("BcdUSB488 = %#04x, want 0x0210", caps.BcdUSB488)
	}
	if !caps.SupportsTrigger() || !caps.SupportsRENControl() || !caps.IsUSB488Interface() {
		t.Errorf("expected all interface capability bits set, got %+v", caps)
	}
	if !caps.IsDT1() || !caps.IsRL1() || !caps.IsSR1() || !caps.UnderstandsMandatorySCPI() {
		t.Errorf("expected all device capability bits set, got %+v", caps)
	}
}

func TestParseCapabilitiesClearBits(t *testing.T) {
	buf := make([]byte, capabilitiesSize)
	caps, err := parseCapabilities(buf)
	if err != nil {
		t.Fatalf("parseCapabilities: %v", err)
	}
	if caps.SupportsTrigger() || caps.SupportsRENControl() || caps.IsSR1() {
		t.Errorf("expected all capability bits clear, got %+v", caps)
	}
}

func TestParseCapabilitiesShort(t *testing.T) {
	if _, err := parseCapabilities(make([]byte, 10)); err == nil {
		t.Fatal("expected an error for a short GET_CAPABILITIES response")
	}
}
