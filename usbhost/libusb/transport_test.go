package libusb

import (
	"testing"

	"github.com/google/gousb"
)

func TestTransferTypeAttribute(t *testing.T) {
	cases := map[gousb.TransferType]byte{
		gousb.TransferTypeBulk:      0x02,
		gousb.TransferTypeInterrupt: 0x03,
	}
	for tt, want := range cases {
		if got := transferTypeAttribute(tt); got != want {
			t.Errorf("transferTypeAttribute(%v) = %#02x, want %#02x", tt, got, want)
		}
	}
}

func TestResultFor(t *testing.T) {
	if resultFor(nil) != 0 {
		t.Error("expected ResultOK for a nil error")
	}
	if resultFor(errBoom) == 0 {
		t.Error("expected a non-OK result for a non-nil error")
	}
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
