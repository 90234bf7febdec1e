package session

import (
	"errors"
	"io"
	"sync"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
)

type fakeChannel struct {
	reads  chan []byte
	closed chan struct{}

	writes     [][]byte
	shortWrite bool
	closeCount int
	once       sync.Once
	mu         sync.Mutex
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		reads:  make(chan []byte, 4),
		closed: make(chan struct{}),
	}
}

func (c *fakeChannel) Read(p []byte) (int, error) {
	select {
	case b := <-c.reads:
		return copy(p, b), nil

	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return 0, errors.New("write on closed channel")
	default:
	}

	c.writes = append(c.writes, append([]byte{}, p...))
	if c.shortWrite {
		return len(p) - 1, nil
	}

	return len(p), nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closeCount++
	c.mu.Unlock()

	c.once.Do(func() { close(c.closed) })

	return nil
}

func (c *fakeChannel) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([][]byte{}, c.writes...)
}

func (c *fakeChannel) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type acceptResult struct {
	ch   Channel
	peer bluetooth.Address
}

type fakeListener struct {
	addr bluetooth.Address
	psm  uint16

	conns  chan acceptResult
	closed chan struct{}
	once   sync.Once
}

func (l *fakeListener) Accept() (Channel, bluetooth.Address, error) {
	select {
	case c := <-l.conns:
		return c.ch, c.peer, nil

	case <-l.closed:
		return nil, bluetooth.Address{}, errorkinds.ErrSessionClosed
	}
}

func (l *fakeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeListener) IsClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// connect hands a channel to the next Accept call.
func (l *fakeListener) connect(ch Channel, peer bluetooth.Address) {
	l.conns <- acceptResult{ch: ch, peer: peer}
}

type fakeTransport struct {
	bound chan *fakeListener
	fail  map[uint16]error

	mu sync.Mutex
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		bound: make(chan *fakeListener, 8),
		fail:  make(map[uint16]error),
	}
}

func (t *fakeTransport) Listen(addr bluetooth.Address, psm uint16) (Listener, error) {
	t.mu.Lock()
	err := t.fail[psm]
	t.mu.Unlock()

	if err != nil {
		return nil, err
	}

	l := &fakeListener{
		addr:   addr,
		psm:    psm,
		conns:  make(chan acceptResult, 1),
		closed: make(chan struct{}),
	}
	t.bound <- l

	return l, nil
}

type fakeCloser struct {
	count int
	mu    sync.Mutex
}

func (f *fakeCloser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count++

	return nil
}

func (f *fakeCloser) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.count
}
