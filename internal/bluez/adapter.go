package bluez

import (
	"context"
	"errors"
	"strconv"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
)

// AdapterOptions holds the adapter properties that are set on startup.
type AdapterOptions struct {
	// Powered powers the adapter on before it is configured.
	Powered bool

	// Alias is the name that remote hosts see during discovery.
	Alias string

	// Discoverable makes the adapter visible to remote hosts.
	Discoverable bool

	// DiscoverableTimeout is the number of seconds the adapter stays
	// discoverable. Zero disables the timeout.
	DiscoverableTimeout uint32
}

// Configure checks that the adapter exists, and sets its properties.
func (c *Client) Configure(opts AdapterOptions) (bluetooth.AdapterData, error) {
	adapter, err := c.Properties()
	if err != nil {
		return adapter, err
	}

	if opts.Powered && !adapter.Powered {
		if err := c.SetPowered(true); err != nil {
			return adapter, err
		}

		adapter.Powered = true
	}

	if err := c.SetAlias(opts.Alias); err != nil {
		return adapter, err
	}

	if err := c.SetDiscoverableTimeout(opts.DiscoverableTimeout); err != nil {
		return adapter, err
	}

	if err := c.SetDiscoverable(opts.Discoverable); err != nil {
		return adapter, err
	}

	adapter.Alias = opts.Alias
	adapter.DiscoverableTimeout = opts.DiscoverableTimeout
	adapter.Discoverable = opts.Discoverable

	c.log.WithFields(logrus.Fields{
		"address":      adapter.Address.String(),
		"alias":        adapter.Alias,
		"discoverable": adapter.Discoverable,
		"timeout":      adapter.DiscoverableTimeout,
	}).Info("Adapter configured")

	return adapter, nil
}

// Properties returns all the properties of the adapter.
func (c *Client) Properties() (bluetooth.AdapterData, error) {
	values := make(map[string]dbus.Variant)
	if err := c.systemBus.Object(BluezBusName, c.adapterPath).
		Call(DbusGetAllPropertiesIface, 0, BluezAdapterIface).
		Store(&values); err != nil {
		return bluetooth.AdapterData{}, c.unavailable(err, "adapter-get-properties")
	}

	adapter, err := c.convertAdapter(c.adapterPath, values)
	if err != nil {
		return adapter, c.unavailable(err, "adapter-decode-properties")
	}

	return adapter, nil
}

// Address returns the address of the adapter.
func (c *Client) Address() (bluetooth.Address, error) {
	if address, ok := c.paths.Address(DbusPathAdapter, c.adapterPath); ok {
		return address, nil
	}

	var value string
	if err := c.getProperty("Address", &value); err != nil {
		return bluetooth.Address{}, err
	}

	address, err := bluetooth.ParseAddress(value)
	if err != nil {
		return address, c.unavailable(err, "adapter-parse-address")
	}

	c.paths.AddDbusPath(DbusPathAdapter, c.adapterPath, address)

	return address, nil
}

// Alias returns the alias of the adapter.
func (c *Client) Alias() (string, error) {
	var alias string

	return alias, c.getProperty("Alias", &alias)
}

// SetAlias sets the alias of the adapter.
func (c *Client) SetAlias(alias string) error {
	return c.setProperty("Alias", alias)
}

// Powered returns the powered state of the adapter.
func (c *Client) Powered() (bool, error) {
	var powered bool

	return powered, c.getProperty("Powered", &powered)
}

// SetPowered sets the powered state of the adapter.
func (c *Client) SetPowered(enable bool) error {
	return c.setProperty("Powered", enable)
}

// Discoverable returns the discoverable state of the adapter.
func (c *Client) Discoverable() (bool, error) {
	var discoverable bool

	return discoverable, c.getProperty("Discoverable", &discoverable)
}

// SetDiscoverable sets the discoverable state of the adapter.
func (c *Client) SetDiscoverable(enable bool) error {
	return c.setProperty("Discoverable", enable)
}

// DiscoverableTimeout returns the discoverable timeout of the adapter, in seconds.
func (c *Client) DiscoverableTimeout() (uint32, error) {
	var timeout uint32

	return timeout, c.getProperty("DiscoverableTimeout", &timeout)
}

// SetDiscoverableTimeout sets the discoverable timeout of the adapter, in seconds.
func (c *Client) SetDiscoverableTimeout(timeout uint32) error {
	return c.setProperty("DiscoverableTimeout", timeout)
}

// getProperty fetches an adapter property into value.
func (c *Client) getProperty(key string, value any) error {
	var variant dbus.Variant

	if err := c.systemBus.Object(BluezBusName, c.adapterPath).
		Call(DbusGetPropertiesIface, 0, BluezAdapterIface, key).
		Store(&variant); err != nil {
		return c.unavailable(err, "adapter-get-"+key)
	}

	if err := variant.Store(value); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(),
				"error_at", "adapter-store-"+key,
				"adapter", c.adapterName,
			),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot decode the adapter property "+strconv.Quote(key)),
		)
	}

	return nil
}

// setProperty sets an adapter property.
// The value's Go type determines the DBus signature, so
// DiscoverableTimeout must be passed as an uint32.
func (c *Client) setProperty(key string, value any) error {
	if err := c.systemBus.Object(BluezBusName, c.adapterPath).Call(
		DbusSetPropertiesIface, 0, BluezAdapterIface,
		key, dbus.MakeVariant(value),
	).Store(); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(),
				"error_at", "adapter-set-"+key,
				"adapter", c.adapterName,
			),
			ftag.With(ftag.Internal),
			fmsg.With("An error occurred on setting the adapter property "+strconv.Quote(key)),
		)
	}

	return nil
}

// unavailable wraps errors that occur when the adapter cannot be reached.
func (c *Client) unavailable(err error, at string) error {
	return fault.Wrap(errors.Join(errorkinds.ErrAdapterUnavailable, err),
		fctx.With(context.Background(),
			"error_at", at,
			"adapter", c.adapterName,
		),
		ftag.With(ftag.Internal),
		fmsg.With("Adapter "+strconv.Quote(c.adapterName)+" is unavailable"),
	)
}
