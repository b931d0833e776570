package config

import "testing"

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	c, err := Load("does-not-exist.yml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.StatusAddr != ":8765" {
		t.Errorf("StatusAddr = %q, want :8765", c.StatusAddr)
	}
	if c.TimestepMillis != 10 {
		t.Errorf("TimestepMillis = %d, want 10", c.TimestepMillis)
	}
}

func TestParseHexID(t *testing.T) {
	cases := []struct {
		in   string
		want uint16
	}{
		{"", 0},
		{"0x0957", 0x0957},
		{"0X1755", 0x1755},
		{"ab", 0x00ab},
	}
	for _, c := range cases {
		got, err := parseHexID(c.in)
		if err != nil {
			t.Fatalf("parseHexID(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("parseHexID(%q) = %#04x, want %#04x", c.in, got, c.want)
		}
	}
}

func TestVendorProductIDs(t *testing.T) {
	f := AttachFilter{VendorID: "0x0957", ProductID: "0x1755"}
	vid, pid, err := f.VendorProductIDs()
	if err != nil {
		t.Fatalf("VendorProductIDs: %v", err)
	}
	if vid != 0x0957 || pid != 0x1755 {
		t.Errorf("got vid=%#04x pid=%#04x", vid, pid)
	}
}

func TestVendorProductIDsRejectsBadHex(t *testing.T) {
	f := AttachFilter{VendorID: "zz"}
	if _, _, err := f.VendorProductIDs(); err == nil {
		t.Fatal("expected an error for invalid hex")
	}
}
