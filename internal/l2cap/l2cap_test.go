//go:build linux

package l2cap

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/hid"
)

func socketPair(t *testing.T) (*Conn, int) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })

	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatal(err)
	}

	return NewConn(fds[0], "test"), fds[1]
}

// unixListener returns a listener over a sequenced-packet unix socket,
// and the address to connect to.
func unixListener(t *testing.T) (*Listener, *unix.SockaddrUnix) {
	t.Helper()

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}

	addr := &unix.SockaddrUnix{Name: filepath.Join(t.TempDir(), "l2cap.sock")}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		t.Fatalf("bind: %v", err)
	}
	if err := unix.Listen(fd, Backlog); err != nil {
		unix.Close(fd)
		t.Fatalf("listen: %v", err)
	}

	l, err := newListener(fd, hid.PSMInterrupt)
	if err != nil {
		t.Fatalf("listener: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	return l, addr
}

func TestConnFraming(t *testing.T) {
	conn, peer := socketPair(t)
	defer conn.Close()

	report := []byte{0xA1, 0x01, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00}
	if n, err := conn.Write(report); err != nil || n != len(report) {
		t.Fatalf("write = %d, %v", n, err)
	}

	buf := make([]byte, 64)
	n, err := unix.Read(peer, buf)
	if err != nil || !bytes.Equal(buf[:n], report) {
		t.Fatalf("peer read = %x, %v, want %x", buf[:n], err, report)
	}

	for _, packet := range [][]byte{{0x71}, {0x90, 0x01}} {
		if _, err := unix.Write(peer, packet); err != nil {
			t.Fatal(err)
		}
	}

	for _, want := range [][]byte{{0x71}, {0x90, 0x01}} {
		n, err := conn.Read(buf)
		if err != nil || !bytes.Equal(buf[:n], want) {
			t.Fatalf("read = %x, %v, want %x", buf[:n], err, want)
		}
	}
}

func TestConnCloseTwice(t *testing.T) {
	conn, _ := socketPair(t)

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := conn.Write([]byte{0xA1}); err == nil {
		t.Fatal("write succeeded on a closed connection")
	}
}

func TestListenerAccept(t *testing.T) {
	l, addr := unixListener(t)

	client, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(client)

	if err := unix.Connect(client, addr); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ch, peer, err := l.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer ch.Close()

	if !peer.IsNil() {
		t.Errorf("peer = %s, want none for a unix socket", peer)
	}

	if _, err := unix.Write(client, []byte{0x71}); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 8)
	if n, err := ch.Read(buf); err != nil || n != 1 || buf[0] != 0x71 {
		t.Fatalf("read = %x, %v", buf[:n], err)
	}
}

func TestListenerCloseUnblocksAccept(t *testing.T) {
	l, _ := unixListener(t)

	errc := make(chan error, 1)
	go func() {
		_, _, err := l.Accept()
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, errorkinds.ErrSessionClosed) {
			t.Fatalf("accept = %v, want ErrSessionClosed", err)
		}

	case <-time.After(2 * time.Second):
		t.Fatal("accept was not unblocked by close")
	}

	if _, _, err := l.Accept(); !errors.Is(err, errorkinds.ErrSessionClosed) {
		t.Fatalf("accept after close = %v, want ErrSessionClosed", err)
	}
}
