package hid

import (
	"bytes"
	"errors"
	"testing"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		modifier byte
		keys     []byte
		want     []byte
	}{
		{
			name: "letter a",
			keys: []byte{0x04, 0, 0, 0, 0, 0},
			want: []byte{0xa1, 0x01, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			name:     "shift with six keys",
			modifier: ModLeftShift,
			keys:     []byte{1, 2, 3, 4, 5, 6},
			want:     []byte{0xa1, 0x01, 0x02, 0x00, 1, 2, 3, 4, 5, 6},
		},
		{
			name:     "all modifiers",
			modifier: 0xff,
			keys:     make([]byte, KeySlots),
			want:     []byte{0xa1, 0x01, 0xff, 0x00, 0, 0, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Encode(tt.modifier, tt.keys)
			if err != nil {
				t.Fatalf("Encode returned error: %v", err)
			}

			if !bytes.Equal(r.Bytes(), tt.want) {
				t.Errorf("Encode = % x, want % x", r.Bytes(), tt.want)
			}

			if r.Modifier() != tt.modifier {
				t.Errorf("Modifier = %#x, want %#x", r.Modifier(), tt.modifier)
			}

			if !bytes.Equal(r.Keys(), tt.keys) {
				t.Errorf("Keys = % x, want % x", r.Keys(), tt.keys)
			}
		})
	}
}

func TestEncodeLayoutForAllModifiers(t *testing.T) {
	keys := []byte{0x04, 0x05, 0x06, 0x07, 0x08, 0x09}

	for m := 0; m <= 0xff; m++ {
		r, err := Encode(byte(m), keys)
		if err != nil {
			t.Fatalf("Encode(%#x) returned error: %v", m, err)
		}

		b := r.Bytes()
		if len(b) != ReportLength || len(b[2:]) != BootReportLength {
			t.Fatalf("report length = %d, want %d", len(b), ReportLength)
		}

		if b[0] != 0xa1 || b[1] != 0x01 || b[2] != byte(m) || b[3] != 0x00 {
			t.Fatalf("Encode(%#x) header = % x", m, b[:4])
		}
	}
}

func TestEncodeInvalidLength(t *testing.T) {
	for _, n := range []int{0, 1, 5, 7, 12} {
		_, err := Encode(0, make([]byte, n))
		if !errors.Is(err, errorkinds.ErrInvalidReportLength) {
			t.Errorf("Encode with %d keys: err = %v, want ErrInvalidReportLength", n, err)
		}
	}

	if _, err := Encode(0, nil); !errors.Is(err, errorkinds.ErrInvalidReportLength) {
		t.Errorf("Encode with nil keys: err = %v", err)
	}
}

func TestRelease(t *testing.T) {
	want := []byte{0xa1, 0x01, 0, 0, 0, 0, 0, 0, 0, 0}
	if r := Release(); !bytes.Equal(r.Bytes(), want) {
		t.Errorf("Release = % x, want % x", r.Bytes(), want)
	}
}
