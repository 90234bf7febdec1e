package bluez

import (
	"io"
	"sync"
)

type fakeHandler struct {
	released     int
	canceled     int
	connected    []string
	requested    []string
	disconnected []string
	fds          []io.Closer

	mu sync.Mutex
}

func (f *fakeHandler) ProfileReleased() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.released++
}

func (f *fakeHandler) ProfileConnected(device string, fd io.Closer) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = append(f.connected, device)
	f.fds = append(f.fds, fd)
}

func (f *fakeHandler) DisconnectRequested(device string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requested = append(f.requested, device)
}

func (f *fakeHandler) ConnectionCanceled() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.canceled++
}

func (f *fakeHandler) DeviceDisconnected(device string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnected = append(f.disconnected, device)
}
