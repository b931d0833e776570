package usbtmc

import "testing"

func TestAlign4(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 2: 4, 3: 4, 4: 4, 5: 8, 18: 20, 20: 20}
	for in, want := range cases {
		if got := align4(in); got != want {
			t.Errorf("align4(%d) = %d, want %d", in, got, want)
		}
	}
}

// TestEncodeDevDepMsgOut matches the *IDN? scenario in spec.md §8: a
// 6-byte payload tagged 1 produces header bytes 01 01 FE 00 06 00 00 00
// 01 00 00 00.
func TestEncodeDevDepMsgOut(t *testing.T) {
	hdr := encodeDevDepMsgOut(1, 6, true)
	want := [headerSize]byte{0x01, 0x01, 0xFE, 0x00, 0x06, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	if hdr != want {
		t.Errorf("got % x, want % x", hdr, want)
	}
}

func TestEncodeDevDepMsgOutEOMClear(t *testing.T) {
	hdr := encodeDevDepMsgOut(1, 6, false)
	if hdr[8] != 0 {
		t.Errorf("expected EOM bit clear, got bmTransferAttributes=%#02x", hdr[8])
	}
}

// TestEncodeRequestDevDepMsgIn matches the Request(1024) scenario in
// spec.md §8: 02 02 FD 00 00 04 00 00 00 00 00 00.
func TestEncodeRequestDevDepMsgIn(t *testing.T) {
	hdr := encodeRequestDevDepMsgIn(2, 1024)
	want := [headerSize]byte{0x02, 0x02, 0xFD, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if hdr != want {
		t.Errorf("got % x, want % x", hdr, want)
	}
}

func TestDecodeDevDepMsgInHeader(t *testing.T) {
	buf := make([]byte, headerSize+4)
	buf[0] = msgDevDepMsgIn
	buf[1] = 9
	buf[2] = ^byte(9)
	buf[4], buf[5], buf[6], buf[7] = 40, 0, 0, 0
	buf[8] = eomBit

	hdr, err := decodeDevDepMsgInHeader(buf)
	if err != nil {
		t.Fatalf("decodeDevDepMsgInHeader: %v", err)
	}
	if hdr.BTag != 9 || hdr.BTagInverse != ^byte(9) || hdr.TransferSize != 40 || !hdr.EOM {
		t.Errorf("got %+v", hdr)
	}
}

func TestDecodeDevDepMsgInHeaderShort(t *testing.T) {
	if _, err := decodeDevDepMsgInHeader(make([]byte, 4)); err == nil {
		t.Fatal("expected an error for a short header")
	}
}
