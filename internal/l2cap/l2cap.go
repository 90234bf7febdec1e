//go:build linux

// Package l2cap provides sequenced-packet L2CAP sockets over the
// Bluetooth BR/EDR transport, for the HID control and interrupt channels.
package l2cap

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/session"
)

// Backlog is the listen backlog of each socket, one peer at a time.
const Backlog = 1

// Transport opens L2CAP listeners.
type Transport struct{}

// Listener is a listening L2CAP socket.
type Listener struct {
	psm  uint16
	file *os.File
	raw  interface {
		Read(func(fd uintptr) bool) error
	}

	closed atomic.Bool
}

// Conn is a connected L2CAP socket.
type Conn struct {
	*os.File

	closed atomic.Bool
}

// Listen creates a socket bound to the provided adapter address and PSM,
// and starts listening on it.
func (Transport) Listen(addr bluetooth.Address, psm uint16) (session.Listener, error) {
	return Listen(addr, psm)
}

// Listen creates a socket bound to the provided adapter address and PSM,
// and starts listening on it.
func Listen(addr bluetooth.Address, psm uint16) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, bindError(err, "l2cap-socket", addr, psm)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, bindError(err, "l2cap-setsockopt", addr, psm)
	}

	// SockaddrL2 takes the address in display order and
	// reverses it into bdaddr_t itself.
	if err := unix.Bind(fd, &unix.SockaddrL2{PSM: psm, Addr: addr}); err != nil {
		unix.Close(fd)
		return nil, bindError(err, "l2cap-bind", addr, psm)
	}

	if err := unix.Listen(fd, Backlog); err != nil {
		unix.Close(fd)
		return nil, bindError(err, "l2cap-listen", addr, psm)
	}

	l, err := newListener(fd, psm)
	if err != nil {
		return nil, bindError(err, "l2cap-rawconn", addr, psm)
	}

	return l, nil
}

// newListener wraps a listening, non-blocking socket descriptor.
func newListener(fd int, psm uint16) (*Listener, error) {
	file := os.NewFile(uintptr(fd), "l2cap-psm"+strconv.Itoa(int(psm)))
	raw, err := file.SyscallConn()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &Listener{psm: psm, file: file, raw: raw}, nil
}

// Accept blocks until a peer connects, and returns the connected channel
// and the address of the peer. Closing the listener unblocks Accept.
func (l *Listener) Accept() (session.Channel, bluetooth.Address, error) {
	var (
		nfd  int
		sa   unix.Sockaddr
		aerr error
	)

	err := l.raw.Read(func(fd uintptr) bool {
		for {
			nfd, sa, aerr = unix.Accept4(int(fd), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
			if aerr != unix.EINTR {
				break
			}
		}

		return aerr != unix.EAGAIN
	})
	if err == nil {
		err = aerr
	}
	if err != nil {
		if l.closed.Load() || errors.Is(err, os.ErrClosed) {
			err = errorkinds.ErrSessionClosed
		}

		return nil, bluetooth.Address{}, err
	}

	var peer bluetooth.Address
	if l2, ok := sa.(*unix.SockaddrL2); ok {
		// Accepted addresses are returned in kernel byte order.
		peer = bluetooth.AddressFromKernel(l2.Addr)
	}

	return NewConn(nfd, "l2cap-psm"+strconv.Itoa(int(l.psm))+"-"+peer.String()), peer, nil
}

// Close closes the listener.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	return l.file.Close()
}

// NewConn wraps a connected, non-blocking socket descriptor.
func NewConn(fd int, name string) *Conn {
	return &Conn{File: os.NewFile(uintptr(fd), name)}
}

// Close closes the connection. Closing an already closed
// connection is a no-op.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	return c.File.Close()
}

// bindError wraps socket setup errors.
func bindError(err error, at string, addr bluetooth.Address, psm uint16) error {
	return fault.Wrap(errors.Join(errorkinds.ErrBind, err),
		fctx.With(context.Background(),
			"error_at", at,
			"address", addr.String(),
			"psm", strconv.Itoa(int(psm)),
		),
		ftag.With(ftag.Internal),
		fmsg.With("Cannot listen on L2CAP PSM "+strconv.Itoa(int(psm))),
	)
}
