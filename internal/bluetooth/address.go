package bluetooth

import (
	"strings"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

// Address represents a Bluetooth device address (BD_ADDR).
// The bytes are stored in display order, so Address{0xAA, ...}
// is printed as "AA:...".
type Address [AddressLength]byte

const (
	// AddressLength is the number of bytes in a Bluetooth address.
	AddressLength = 6

	// AddressStringLength is the length of a formatted address, including separators.
	AddressStringLength = 17
)

const hexDigits = "0123456789ABCDEF"

// ParseAddress parses an address in the AA:BB:CC:DD:EE:FF format.
func ParseAddress(s string) (Address, error) {
	var addr Address

	if len(s) != AddressStringLength {
		return addr, errorkinds.ErrInvalidAddress
	}

	for i := range addr {
		pos := i * 3
		if i > 0 && s[pos-1] != ':' {
			return Address{}, errorkinds.ErrInvalidAddress
		}

		hi, ok := fromHex(s[pos])
		if !ok {
			return Address{}, errorkinds.ErrInvalidAddress
		}

		lo, ok := fromHex(s[pos+1])
		if !ok {
			return Address{}, errorkinds.ErrInvalidAddress
		}

		addr[i] = hi<<4 | lo
	}

	return addr, nil
}

// AddressFromPath extracts an address from a BlueZ device object path,
// for example /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func AddressFromPath(path string) (Address, bool) {
	idx := strings.LastIndex(path, "/dev_")
	if idx < 0 {
		return Address{}, false
	}

	addr, err := ParseAddress(strings.ReplaceAll(path[idx+5:], "_", ":"))
	if err != nil {
		return Address{}, false
	}

	return addr, true
}

// AddressFromKernel converts a little-endian address, as stored by the
// kernel in bdaddr_t, to an Address.
func AddressFromKernel(b [AddressLength]byte) Address {
	var addr Address
	for i := range b {
		addr[i] = b[AddressLength-1-i]
	}

	return addr
}

// String returns the address formatted as AA:BB:CC:DD:EE:FF.
func (a Address) String() string {
	var sb strings.Builder
	sb.Grow(AddressStringLength)

	for i, c := range a {
		if i > 0 {
			sb.WriteByte(':')
		}

		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0f])
	}

	return sb.String()
}

// IsNil reports whether the address is all zeros (BDADDR_ANY).
func (a Address) IsNil() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// go-codec calls this to decode the "Address" property of a D-Bus
// variant map into an Address.
func (a *Address) UnmarshalText(data []byte) error {
	addr, err := ParseAddress(string(data))
	if err != nil {
		return err
	}

	*a = addr

	return nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 0xA, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 0xA, true
	}

	return 0, false
}
