// Package daemon assembles the keyboard daemon: it loads the service record,
// configures the adapter, registers the HID profile, exports the keyboard
// service and runs the session until it is stopped.
package daemon

import (
	"context"
	"errors"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/bluez"
	"github.com/darkhz/btkbd/internal/config"
	"github.com/darkhz/btkbd/internal/eventbus"
	"github.com/darkhz/btkbd/internal/hid"
	"github.com/darkhz/btkbd/internal/sdp"
	"github.com/darkhz/btkbd/internal/service"
	"github.com/darkhz/btkbd/internal/session"
)

// Daemon owns the Bluez client, the session manager and the keyboard service.
type Daemon struct {
	cfg       *config.Config
	transport session.Transport
	connect   func(bluez.ClientOptions) (*bluez.Client, error)

	record  sdp.Record
	client  *bluez.Client
	manager *session.Manager
	service *service.Service
	bus     *eventbus.Bus
	log     *logrus.Entry
}

// Options holds the daemon options.
type Options struct {
	// Config holds the validated configuration values.
	Config *config.Config

	// Transport opens the L2CAP listeners.
	Transport session.Transport

	// Connect connects to Bluez. It defaults to bluez.Connect.
	Connect func(bluez.ClientOptions) (*bluez.Client, error)

	// Logger is the base logger. It may be nil.
	Logger *logrus.Entry
}

// New returns a new daemon.
func New(opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	connect := opts.Connect
	if connect == nil {
		connect = bluez.Connect
	}

	return &Daemon{
		cfg:       opts.Config,
		transport: opts.Transport,
		connect:   connect,
		bus:       eventbus.New(),
		log:       logger,
	}
}

// Events returns the event bus of the daemon.
func (d *Daemon) Events() *eventbus.Bus {
	return d.bus
}

// Manager returns the session manager. It is nil until the daemon is started.
func (d *Daemon) Manager() *session.Manager {
	return d.manager
}

// Start brings the keyboard up. The service record is read before anything
// else, so that an unreadable record aborts startup before any socket is bound.
// If Start fails, Close must still be called.
func (d *Daemon) Start() error {
	record, err := sdp.Load(d.cfg.Values.SDPRecord)
	if err != nil {
		return err
	}

	d.record = record
	d.checkRecord()

	client, err := d.connect(bluez.ClientOptions{
		Adapter: d.cfg.Values.Adapter,
		Events:  d.bus,
		Logger:  d.log,
	})
	if err != nil {
		return err
	}

	d.client = client

	if err := d.cfg.ValidateSessionValues(client); err != nil {
		return err
	}

	adapter, err := client.Configure(bluez.AdapterOptions{
		Powered:             d.cfg.Values.Powered,
		Alias:               d.cfg.Values.Alias,
		Discoverable:        d.cfg.Values.Discoverable,
		DiscoverableTimeout: d.cfg.Values.DiscoverableTimeout,
	})
	if err != nil {
		return err
	}

	address, err := client.Address()
	if err != nil {
		return err
	}

	d.manager = session.NewManager(session.Options{
		Address:   address,
		Transport: d.transport,
		Events:    d.bus,
		Logger:    d.log,
	})

	profile := bluez.DefaultProfileOptions(dbus.ObjectPath(d.cfg.Values.ProfilePath), record.XML)
	profile.UUID = d.cfg.Values.ProfileUUID
	profile.InterfaceName = d.cfg.Values.ProfileInterface

	if err := client.RegisterProfile(profile, d.manager); err != nil {
		return err
	}

	d.service = service.New(client.Conn(), service.Options{
		Name:   d.cfg.Values.ServiceName,
		Sender: d.manager,
		Logger: d.log,
	})
	if err := d.service.Export(); err != nil {
		return err
	}

	if err := d.manager.StartListening(); err != nil {
		return err
	}

	d.log.WithFields(logrus.Fields{
		"adapter": adapter.UniqueName,
		"address": address.String(),
		"alias":   adapter.Alias,
	}).Info("Keyboard is ready")

	return nil
}

// Run runs the session and watches the Bluez signals, until the context is
// canceled or the profile is released.
func (d *Daemon) Run(ctx context.Context) error {
	if d.manager == nil || d.client == nil {
		return fault.Wrap(errors.New("daemon is not started"),
			fctx.With(context.Background(), "error_at", "daemon-run"),
			ftag.With(ftag.Internal),
			fmsg.With("The daemon must be started before it is run"),
		)
	}

	sub := d.bus.Subscribe(bluetooth.EventSession, bluetooth.EventDevice, bluetooth.EventError)
	defer sub.Unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()

		return d.manager.Run(runCtx)
	})
	g.Go(func() error {
		return d.client.WatchSignals(runCtx, d.manager)
	})
	g.Go(func() error {
		d.logEvents(runCtx, sub)

		return nil
	})

	return g.Wait()
}

// Close releases the service name, unregisters the profile and
// closes the bus connection.
func (d *Daemon) Close() error {
	var errs []error

	if d.service != nil {
		errs = append(errs, d.service.Close())
	}

	if d.client != nil {
		errs = append(errs, d.client.Close())
	}

	d.bus.Close()

	return errors.Join(errs...)
}

// checkRecord warns if the record advertises other PSMs than the ones
// the session listens on.
func (d *Daemon) checkRecord() {
	if d.record.ControlPSM == hid.PSMControl && d.record.InterruptPSM == hid.PSMInterrupt {
		return
	}

	d.log.WithFields(logrus.Fields{
		"path":           d.cfg.Values.SDPRecord,
		"control":        d.record.ControlPSM,
		"interrupt":      d.record.InterruptPSM,
		"want_control":   hid.PSMControl,
		"want_interrupt": hid.PSMInterrupt,
	}).Warn("The SDP record advertises different PSMs than the ones the keyboard listens on")
}

// logEvents logs the events published on the event bus.
func (d *Daemon) logEvents(ctx context.Context, sub eventbus.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return

		case data, ok := <-sub.C:
			if !ok {
				return
			}

			logEvent(d.log, data)
		}
	}
}

// logEvent logs a single event.
func logEvent(log *logrus.Entry, data any) {
	switch ev := data.(type) {
	case session.Event:
		entry := log.WithField("state", ev.State.String())
		if !ev.Peer.IsNil() {
			entry = entry.WithField("peer", ev.Peer.String())
		}
		if ev.ID != "" {
			entry = entry.WithField("id", ev.ID)
		}

		entry.Info("Session state changed")

	case bluetooth.DeviceData:
		log.WithFields(logrus.Fields{
			"device":    ev.Address.String(),
			"name":      ev.Name,
			"connected": ev.Connected,
		}).Debug("Device event")

	case error:
		log.WithError(ev).Warn("Asynchronous error")
	}
}
