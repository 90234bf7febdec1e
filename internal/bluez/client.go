// Package bluez is the control-plane client of the BlueZ daemon. It configures
// the adapter, registers the HID profile and watches for device disconnections
// over the system DBus.
package bluez

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/eventbus"
)

// EventHandler receives the profile callbacks and device events.
// Implementations must not block.
type EventHandler interface {
	// ProfileReleased is called when Bluez releases the profile.
	ProfileReleased()

	// ProfileConnected is called on a new profile connection. The
	// handler owns the descriptor and must close it.
	ProfileConnected(device string, fd io.Closer)

	// DisconnectRequested is called when Bluez requests the profile
	// connection to a device to be closed.
	DisconnectRequested(device string)

	// ConnectionCanceled is called when a profile request was canceled.
	ConnectionCanceled()

	// DeviceDisconnected is called when a device is no longer connected.
	DeviceDisconnected(device string)
}

// Client describes a Bluez DBus session bound to a single adapter.
type Client struct {
	systemBus   *dbus.Conn
	adapterPath dbus.ObjectPath
	adapterName string

	profile *profile
	paths   *pathConverter
	bus     *eventbus.Bus
	log     *logrus.Entry
}

// ClientOptions holds the client options.
type ClientOptions struct {
	// Adapter is the kernel name of the adapter, for example "hci0".
	Adapter string

	// Events receives device events. It may be nil.
	Events *eventbus.Bus

	// Logger is the base logger. It may be nil.
	Logger *logrus.Entry
}

// Connect connects to the system bus and returns a new client.
func Connect(opts ClientOptions) (*Client, error) {
	systemBus, err := dbus.SystemBus()
	if err != nil {
		return nil,
			fault.Wrap(errors.Join(errorkinds.ErrBusConnect, err),
				fctx.With(context.Background(), "error_at", "start-systembus"),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot initialize system DBus"),
			)
	}

	return NewClient(systemBus, opts), nil
}

// NewClient returns a new client that uses the provided bus connection.
func NewClient(systemBus *dbus.Conn, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Client{
		systemBus:   systemBus,
		adapterName: opts.Adapter,
		adapterPath: AdapterPath(opts.Adapter),
		paths:       newPathConverter(),
		bus:         opts.Events,
		log:         logger.WithFields(logrus.Fields{"component": "bluez", "adapter": opts.Adapter}),
	}
}

// AdapterPath returns the Bluez DBus path of an adapter.
func AdapterPath(name string) dbus.ObjectPath {
	return dbus.ObjectPath(BluezAdapterPathPrefix + name)
}

// Conn returns the underlying system bus connection.
func (c *Client) Conn() *dbus.Conn {
	return c.systemBus
}

// Close unregisters the profile if it is registered,
// and closes the system bus connection.
func (c *Client) Close() error {
	if err := c.UnregisterProfile(); err != nil {
		c.log.WithError(err).Warn("Cannot unregister profile")
	}

	if err := c.systemBus.Close(); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "stop-systembus"),
			ftag.With(ftag.Internal),
			fmsg.With("Error while closing system bus"),
		)
	}

	return nil
}

// Adapters returns the adapters that are known to Bluez, sorted by name.
func (c *Client) Adapters() ([]bluetooth.AdapterData, error) {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	if err := c.systemBus.Object(BluezBusName, "/").
		Call(DbusObjectManagerIface, 0).
		Store(&objects); err != nil {
		return nil, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "adapters-managed-objects"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot fetch the Bluez objects"),
		)
	}

	adapters := make([]bluetooth.AdapterData, 0, 1)

	for path, object := range objects {
		for iface, values := range object {
			switch iface {
			case BluezAdapterIface:
				adapter, err := c.convertAdapter(path, values)
				if err != nil {
					return nil, err
				}

				adapters = append(adapters, adapter)

			case BluezDeviceIface:
				c.storeDevice(path, values)
			}
		}
	}

	slices.SortFunc(adapters, func(a, b bluetooth.AdapterData) int {
		return strings.Compare(a.UniqueName, b.UniqueName)
	})

	return adapters, nil
}

// convertAdapter decodes the adapter properties, and records the adapter path.
func (c *Client) convertAdapter(path dbus.ObjectPath, values map[string]dbus.Variant) (bluetooth.AdapterData, error) {
	var adapter bluetooth.AdapterData

	if err := properties.decode(values, &adapter, "Address"); err != nil {
		return adapter, fault.Wrap(err,
			fctx.With(context.Background(),
				"error_at", "adapter-map-decode",
				"path", string(path),
			),
			ftag.With(ftag.Internal),
			fmsg.With("Error converting adapter data"),
		)
	}

	adapter.UniqueName = filepath.Base(string(path))
	c.paths.AddDbusPath(DbusPathAdapter, path, adapter.Address)

	return adapter, nil
}

// storeDevice decodes the device properties, and records the device path.
func (c *Client) storeDevice(path dbus.ObjectPath, values map[string]dbus.Variant) (bluetooth.DeviceData, bool) {
	var device bluetooth.DeviceData

	if err := properties.decode(values, &device, "Address"); err != nil {
		c.log.WithError(err).WithField("path", path).Debug("Cannot decode device properties")
		return device, false
	}

	device.Path = string(path)
	c.paths.AddDbusPath(DbusPathDevice, path, device.Address)

	return device, true
}
