package session

import (
	"io"

	"github.com/darkhz/btkbd/internal/bluetooth"
)

// Channel is a connected HID channel.
type Channel interface {
	io.ReadWriteCloser
}

// Listener accepts HID channels on a single PSM.
type Listener interface {
	// Accept blocks until a peer connects, or the listener is closed.
	Accept() (Channel, bluetooth.Address, error)
	Close() error
}

// Transport opens listeners for the HID channels.
type Transport interface {
	Listen(addr bluetooth.Address, psm uint16) (Listener, error)
}
