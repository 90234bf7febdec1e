package bluez

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

// ProfileOptions holds the options of the profile that is registered with Bluez.
type ProfileOptions struct {
	// Path is the object path the profile is exported on.
	Path dbus.ObjectPath

	// UUID is the service class UUID of the profile.
	UUID string

	// InterfaceName is the interface that Bluez calls the profile
	// methods on, usually "org.bluez.Profile1".
	InterfaceName string

	Role                  string
	RequireAuthentication bool
	RequireAuthorization  bool
	AutoConnect           bool

	// ServiceRecord is the SDP record, in the Bluez XML format.
	ServiceRecord string
}

// DefaultProfileOptions returns the options of the HID keyboard profile.
func DefaultProfileOptions(path dbus.ObjectPath, record string) ProfileOptions {
	return ProfileOptions{
		Path:          path,
		UUID:          HIDServiceUUID,
		InterfaceName: BluezProfileIface,
		Role:          "server",
		AutoConnect:   true,
		ServiceRecord: record,
	}
}

// Validate checks the profile options.
func (o ProfileOptions) Validate() error {
	var err error

	switch {
	case !o.Path.IsValid():
		err = fmt.Errorf("invalid profile path '%s'", o.Path)

	case o.InterfaceName == "":
		err = errors.New("no profile interface name specified")

	case o.ServiceRecord == "":
		err = errors.New("no service record specified")

	default:
		if _, uerr := uuid.Parse(o.UUID); uerr != nil {
			err = fmt.Errorf("invalid profile UUID '%s': %w", o.UUID, uerr)
		}
	}

	if err != nil {
		return fault.Wrap(errors.Join(errorkinds.ErrRegistrationRejected, err),
			fctx.With(context.Background(), "error_at", "profile-validate-options"),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("Invalid profile options"),
		)
	}

	return nil
}

// Map returns the options as a RegisterProfile options dictionary.
func (o ProfileOptions) Map() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Role":                  dbus.MakeVariant(o.Role),
		"RequireAuthentication": dbus.MakeVariant(o.RequireAuthentication),
		"RequireAuthorization":  dbus.MakeVariant(o.RequireAuthorization),
		"AutoConnect":           dbus.MakeVariant(o.AutoConnect),
		"ServiceRecord":         dbus.MakeVariant(o.ServiceRecord),
	}
}

// profile implements the Bluez profile interface, and forwards all calls
// to the event handler.
type profile struct {
	path    dbus.ObjectPath
	iface   string
	handler EventHandler
	log     *logrus.Entry
}

// RegisterProfile exports the profile on the bus and registers it with Bluez.
// A profile can be registered once per client.
func (c *Client) RegisterProfile(opts ProfileOptions, handler EventHandler) error {
	if c.profile != nil {
		return fault.Wrap(errorkinds.ErrProfileRegistered,
			fctx.With(context.Background(),
				"error_at", "profile-register-twice",
				"path", string(c.profile.path),
			),
			ftag.With(ftag.AlreadyExists),
			fmsg.With("The profile is already registered"),
		)
	}

	if err := opts.Validate(); err != nil {
		return err
	}

	p := &profile{
		path:    opts.Path,
		iface:   opts.InterfaceName,
		handler: handler,
		log:     c.log.WithField("path", string(opts.Path)),
	}

	if err := p.export(c.systemBus); err != nil {
		return fault.Wrap(errors.Join(errorkinds.ErrRegistrationRejected, err),
			fctx.With(context.Background(),
				"error_at", "profile-export",
				"path", string(opts.Path),
			),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot export the profile"),
		)
	}

	if err := c.callProfileManager("RegisterProfile", opts.Path, opts.UUID, opts.Map()).Store(); err != nil {
		p.unexport(c.systemBus)

		return fault.Wrap(errors.Join(errorkinds.ErrRegistrationRejected, err),
			fctx.With(context.Background(),
				"error_at", "profile-register",
				"path", string(opts.Path),
				"uuid", opts.UUID,
			),
			ftag.With(ftag.Internal),
			fmsg.With("Bluez rejected the profile registration"),
		)
	}

	c.profile = p
	p.log.WithField("uuid", opts.UUID).Info("Profile registered")

	return nil
}

// UnregisterProfile unregisters and unexports the profile.
// It is a no-op if no profile is registered.
func (c *Client) UnregisterProfile() error {
	p := c.profile
	if p == nil {
		return nil
	}

	c.profile = nil
	defer p.unexport(c.systemBus)

	if err := c.callProfileManager("UnregisterProfile", p.path).Store(); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(),
				"error_at", "profile-unregister",
				"path", string(p.path),
			),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot unregister the profile"),
		)
	}

	p.log.Info("Profile unregistered")

	return nil
}

// callProfileManager calls the ProfileManager1 interface with the provided arguments.
func (c *Client) callProfileManager(method string, args ...any) *dbus.Call {
	return c.systemBus.Object(BluezBusName, BluezProfileManagerPath).
		Call(BluezProfileManagerIface+"."+method, 0, args...)
}

// export exports the profile methods and their introspection data.
func (p *profile) export(conn *dbus.Conn) error {
	if err := conn.Export(p, p.path, p.iface); err != nil {
		return err
	}

	node := &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    p.iface,
				Methods: introspect.Methods(p),
			},
		},
	}

	if err := conn.Export(introspect.NewIntrospectable(node), p.path, DbusIntrospectableIface); err != nil {
		conn.Export(nil, p.path, p.iface)
		return err
	}

	return nil
}

// unexport removes the profile from the bus.
func (p *profile) unexport(conn *dbus.Conn) {
	conn.Export(nil, p.path, p.iface)
	conn.Export(nil, p.path, DbusIntrospectableIface)
}

// Release is called when Bluez unregisters the profile.
func (p *profile) Release() *dbus.Error {
	p.log.Info("Release")
	p.handler.ProfileReleased()

	return nil
}

// NewConnection is called when a new connection to the profile is made.
// The descriptor is handed over to the event handler.
func (p *profile) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, properties map[string]dbus.Variant) *dbus.Error {
	fields := logrus.Fields{
		"device": string(device),
		"fd":     int(fd),
	}

	keys := make([]string, 0, len(properties))
	for key := range properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := properties[key].Value()

		switch key {
		case "Version", "Features":
			if v, ok := value.(uint16); ok {
				fields[key] = fmt.Sprintf("0x%04x", v)
				continue
			}
		}

		fields[key] = value
	}

	p.log.WithFields(fields).Info("NewConnection")
	p.handler.ProfileConnected(string(device), os.NewFile(uintptr(fd), "profile-"+string(device)))

	return nil
}

// RequestDisconnection is called when Bluez requests the profile
// connection to a device to be closed.
func (p *profile) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	p.log.WithField("device", string(device)).Info("RequestDisconnection")
	p.handler.DisconnectRequested(string(device))

	return nil
}

// Cancel is called when a profile request was canceled.
func (p *profile) Cancel() *dbus.Error {
	p.log.Info("Cancel")
	p.handler.ConnectionCanceled()

	return nil
}
