// Package hid builds the keyboard input reports and control channel
// replies of the Bluetooth HID profile.
package hid

import (
	"context"
	"strconv"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

// The input report layout.
const (
	// BootReportLength is the length of a boot keyboard report:
	// modifier, reserved, and the key code slots.
	BootReportLength = 8

	// ReportLength is the length of a report on the interrupt channel,
	// including the HIDP header and report ID.
	ReportLength = BootReportLength + 2

	// KeySlots is the number of simultaneous key codes in a report.
	KeySlots = 6

	// HeaderInput is the HIDP header for a DATA transaction carrying an input report.
	HeaderInput byte = TransData | ReportTypeInput

	// ReportIDKeyboard is the report ID of the keyboard collection in the SDP record.
	ReportIDKeyboard byte = 0x01
)

// Report is an encoded keyboard input report:
// [0xA1, 0x01, modifier, 0x00, k0, k1, k2, k3, k4, k5].
// The two header bytes are followed by the boot keyboard report, whose
// reserved byte is always zero.
type Report [ReportLength]byte

// Encode builds an input report. Exactly KeySlots key codes must be
// provided, with unused slots set to zero.
func Encode(modifier byte, keys []byte) (Report, error) {
	var r Report

	if len(keys) != KeySlots {
		return r, fault.Wrap(errorkinds.ErrInvalidReportLength,
			fctx.With(context.Background(),
				"error_at", "hid-encode-report",
				"length", strconv.Itoa(len(keys)),
			),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("Expected "+strconv.Itoa(KeySlots)+" key codes"),
		)
	}

	r[0] = HeaderInput
	r[1] = ReportIDKeyboard
	r[2] = modifier
	copy(r[4:], keys)

	return r, nil
}

// Release returns a report with no keys and modifiers pressed.
func Release() Report {
	return Report{HeaderInput, ReportIDKeyboard}
}

// Modifier returns the modifier byte of the report.
func (r Report) Modifier() byte {
	return r[2]
}

// Keys returns the key codes of the report.
func (r Report) Keys() []byte {
	return r[4:]
}

// Bytes returns the report as a byte slice.
func (r Report) Bytes() []byte {
	return r[:]
}
