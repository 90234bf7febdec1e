// Package session manages the HID keyboard session with a single host:
// listening on the control and interrupt channels, tracking the connection
// state, and sending input reports.
package session

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/eventbus"
	"github.com/darkhz/btkbd/internal/hid"
)

// Manager holds the keyboard session.
// All state transitions happen within Run, which consumes the events
// posted by the profile callbacks, the signal watcher and the accept routine.
type Manager struct {
	transport Transport
	address   bluetooth.Address
	bus       *eventbus.Bus
	log       *logrus.Entry

	events chan any
	done   chan struct{}

	state      State
	gen        uint64
	ctrlL      Listener
	intrL      Listener
	ctrl       Channel
	intr       Channel
	peer       bluetooth.Address
	id         string
	profileFD  io.Closer
	closed     bool
	sent       atomic.Uint64
	doneOnce   sync.Once
	controller *hid.Controller

	mu sync.Mutex
}

// Options holds the session manager options.
type Options struct {
	// Address is the adapter address the channels are bound to.
	Address bluetooth.Address

	// Transport opens the channel listeners.
	Transport Transport

	// Events receives the session state changes. It may be nil.
	Events *eventbus.Bus

	// Logger is the base logger. It may be nil.
	Logger *logrus.Entry
}

type (
	acceptedEvent struct {
		gen        uint64
		ctrl, intr Channel
		peer       bluetooth.Address
		err        error
	}

	disconnectedEvent struct {
		gen    uint64
		device string
		reason string
	}

	profileConnectedEvent struct {
		device string
		fd     io.Closer
	}

	disconnectRequestedEvent struct {
		device string
	}

	rearmEvent    struct{}
	releasedEvent struct{}
	canceledEvent struct{}
)

// eventQueueSize is the capacity of the event queue.
const eventQueueSize = 16

// NewManager returns a new session manager in the idle state.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Manager{
		transport: opts.Transport,
		address:   opts.Address,
		bus:       opts.Events,
		log:       logger.WithField("component", "session"),
		events:    make(chan any, eventQueueSize),
		done:      make(chan struct{}),
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Sent returns the number of reports sent since the manager was created.
func (m *Manager) Sent() uint64 {
	return m.sent.Load()
}

// StartListening opens the control and interrupt listeners, and starts
// accepting the next host connection. It is a no-op if the manager is
// already listening or connected.
func (m *Manager) StartListening() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errorkinds.ErrSessionClosed
	}

	if m.state != StateIdle {
		return nil
	}

	ctrlL, err := m.transport.Listen(m.address, hid.PSMControl)
	if err != nil {
		return listenError(err, hid.PSMControl)
	}

	intrL, err := m.transport.Listen(m.address, hid.PSMInterrupt)
	if err != nil {
		ctrlL.Close()
		return listenError(err, hid.PSMInterrupt)
	}

	m.gen++
	m.ctrlL, m.intrL = ctrlL, intrL
	m.setState(StateListening)

	go m.accept(m.gen, ctrlL, intrL)

	return nil
}

// SendKeys sends a single input report on the interrupt channel.
func (m *Manager) SendKeys(modifier byte, keys []byte) error {
	report, err := hid.Encode(modifier, keys)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.intr == nil {
		return fault.Wrap(errorkinds.ErrNotConnected,
			fctx.With(context.Background(), "error_at", "session-send-keys", "state", m.state.String()),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot send keys, no host is connected"),
		)
	}

	n, err := m.intr.Write(report.Bytes())
	if err == nil && n != hid.ReportLength {
		err = errorkinds.ErrShortWrite
	}
	if err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(),
				"error_at", "session-send-keys",
				"id", m.id,
				"written", strconv.Itoa(n),
			),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot send the report to the host"),
		)
	}

	m.sent.Inc()
	m.log.WithFields(logrus.Fields{"id": m.id, "report": report.Bytes()}).Trace("Report sent")

	return nil
}

// Run processes session events until the profile is released
// or the context is canceled. All open sockets are closed on return.
func (m *Manager) Run(ctx context.Context) error {
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-m.events:
			if m.handle(ev) {
				return nil
			}
		}
	}
}

// ProfileReleased stops the session.
func (m *Manager) ProfileReleased() {
	m.post(releasedEvent{})
}

// ProfileConnected stores the descriptor that was handed over with
// a new profile connection.
func (m *Manager) ProfileConnected(device string, fd io.Closer) {
	if !m.post(profileConnectedEvent{device: device, fd: fd}) {
		fd.Close()
	}
}

// DisconnectRequested closes the held profile descriptor, if any.
func (m *Manager) DisconnectRequested(device string) {
	m.post(disconnectRequestedEvent{device: device})
}

// ConnectionCanceled is called when a profile request was canceled.
func (m *Manager) ConnectionCanceled() {
	m.post(canceledEvent{})
}

// DeviceDisconnected tears the session down and schedules listening
// again, if the device is the connected host.
func (m *Manager) DeviceDisconnected(device string) {
	m.post(disconnectedEvent{device: device, reason: "device disconnected"})
}

// handle applies an event. It returns true when the loop must stop.
func (m *Manager) handle(ev any) bool {
	switch ev := ev.(type) {
	case acceptedEvent:
		m.connected(ev)

	case disconnectedEvent:
		m.disconnected(ev)

	case rearmEvent:
		if err := m.StartListening(); err != nil {
			m.log.WithError(err).Error("Cannot listen for connections")
			m.bus.Publish(bluetooth.EventError, err)
		}

	case profileConnectedEvent:
		m.mu.Lock()
		if m.profileFD != nil {
			m.profileFD.Close()
		}
		m.profileFD = ev.fd
		m.mu.Unlock()

		m.log.WithField("device", ev.device).Info("Profile connection")

	case disconnectRequestedEvent:
		m.mu.Lock()
		if m.profileFD != nil {
			m.profileFD.Close()
			m.profileFD = nil
		}
		m.mu.Unlock()

		m.log.WithField("device", ev.device).Info("Profile disconnection requested")

	case canceledEvent:
		m.log.Info("Profile request canceled")

	case releasedEvent:
		m.log.Info("Profile released")
		return true
	}

	return false
}

// connected moves the session to the connected state once both channels are accepted.
func (m *Manager) connected(ev acceptedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.gen != m.gen || m.state != StateListening {
		closeChannels(ev.ctrl, ev.intr)
		return
	}

	if ev.err != nil {
		m.closeListeners()
		m.setState(StateIdle)

		m.log.WithError(ev.err).Error("Cannot accept connections")
		m.bus.Publish(bluetooth.EventError, ev.err)

		return
	}

	m.closeListeners()

	m.ctrl, m.intr = ev.ctrl, ev.intr
	m.peer = ev.peer
	m.id = xid.New().String()
	m.controller = &hid.Controller{}
	m.setState(StateConnected)

	go m.readControl(m.gen, m.id, m.ctrl, m.controller)
}

// disconnected closes the channels of the connected session, and posts a re-arm.
func (m *Manager) disconnected(ev disconnectedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return
	}

	if ev.gen != 0 && ev.gen != m.gen {
		return
	}

	if ev.device != "" && !m.peer.IsNil() {
		if addr, ok := bluetooth.AddressFromPath(ev.device); ok && addr != m.peer {
			return
		}
	}

	m.log.WithFields(logrus.Fields{
		"id":     m.id,
		"reason": ev.reason,
		"sent":   m.sent.Load(),
	}).Info("Host disconnected")

	closeChannels(m.ctrl, m.intr)
	m.ctrl, m.intr = nil, nil
	m.peer = bluetooth.Address{}
	m.id = ""
	m.setState(StateIdle)

	go m.post(rearmEvent{})
}

// accept waits for the control channel and then the interrupt channel.
// Interrupt channels from any other peer than the control channel's are closed.
func (m *Manager) accept(gen uint64, ctrlL, intrL Listener) {
	m.log.Info("Waiting for connections")

	ctrl, peer, err := ctrlL.Accept()
	if err != nil {
		m.post(acceptedEvent{gen: gen, err: err})
		return
	}

	m.log.WithField("peer", peer.String()).Info("Connected on the control channel")

	for {
		intr, ipeer, err := intrL.Accept()
		if err != nil {
			ctrl.Close()
			m.post(acceptedEvent{gen: gen, err: err})
			return
		}

		if ipeer == peer {
			m.log.WithField("peer", ipeer.String()).Info("Connected on the interrupt channel")
			m.post(acceptedEvent{gen: gen, ctrl: ctrl, intr: intr, peer: peer})

			return
		}

		m.log.WithFields(logrus.Fields{
			"peer":           peer.String(),
			"interrupt_peer": ipeer.String(),
		}).Warn("Rejected an interrupt channel from a different peer")

		intr.Close()
	}
}

// readControl answers the host's requests on the control channel.
// A read error ends the session.
func (m *Manager) readControl(gen uint64, id string, ctrl Channel, controller *hid.Controller) {
	buf := make([]byte, 64)

	for {
		n, err := ctrl.Read(buf)
		if err != nil {
			reason := "control channel closed"
			if !errors.Is(err, io.EOF) {
				reason = err.Error()
			}

			m.post(disconnectedEvent{gen: gen, reason: reason})

			return
		}

		result := controller.Handle(buf[:n])
		if result.Reply != nil {
			if _, err := ctrl.Write(result.Reply); err != nil {
				m.log.WithError(err).WithField("id", id).Warn("Cannot reply on the control channel")
			}
		}

		if result.Unplug {
			m.post(disconnectedEvent{gen: gen, reason: "virtual cable unplug"})
			return
		}
	}
}

// post adds an event to the queue. It returns false without posting
// once the manager has stopped.
func (m *Manager) post(ev any) bool {
	select {
	case m.events <- ev:
		return true

	case <-m.done:
		return false
	}
}

// shutdown closes every socket owned by the manager.
func (m *Manager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.doneOnce.Do(func() { close(m.done) })

	m.closeListeners()
	closeChannels(m.ctrl, m.intr)
	m.ctrl, m.intr = nil, nil

	if m.profileFD != nil {
		m.profileFD.Close()
		m.profileFD = nil
	}

	m.setState(StateIdle)
}

// closeListeners closes the listeners. The lock must be held.
func (m *Manager) closeListeners() {
	for _, l := range []Listener{m.ctrlL, m.intrL} {
		if l != nil {
			l.Close()
		}
	}

	m.ctrlL, m.intrL = nil, nil
}

// setState sets and publishes the session state. The lock must be held.
func (m *Manager) setState(state State) {
	if m.state == state {
		return
	}

	m.state = state
	m.bus.Publish(bluetooth.EventSession, Event{State: state, Peer: m.peer, ID: m.id})
}

func closeChannels(channels ...Channel) {
	for _, c := range channels {
		if c != nil {
			c.Close()
		}
	}
}

func listenError(err error, psm uint16) error {
	return fault.Wrap(err,
		fctx.With(context.Background(), "error_at", "session-listen", "psm", strconv.Itoa(int(psm))),
		ftag.With(ftag.Internal),
		fmsg.With("Cannot listen for HID connections"),
	)
}
