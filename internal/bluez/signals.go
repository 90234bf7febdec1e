package bluez

import (
	"context"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
)

// WatchSignals watches the Bluez signals until the context is canceled,
// or the bus connection is closed. Device disconnections are forwarded
// to the event handler.
func (c *Client) WatchSignals(ctx context.Context, handler EventHandler) error {
	for _, match := range []string{matchInterfacesAdded, matchPropertiesChanged} {
		if err := c.systemBus.BusObject().Call(DbusSignalAddMatchIface, 0, match).Store(); err != nil {
			return fault.Wrap(err,
				fctx.With(context.Background(), "error_at", "signal-add-match", "match", match),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot watch for Bluez signals"),
			)
		}
	}

	ch := make(chan *dbus.Signal, 16)
	c.systemBus.Signal(ch)

	defer func() {
		c.systemBus.RemoveSignal(ch)

		for _, match := range []string{matchInterfacesAdded, matchPropertiesChanged} {
			c.systemBus.BusObject().Call(DbusSignalRemoveMatchIface, 0, match)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case signal, ok := <-ch:
			if !ok {
				return nil
			}

			c.parseSignalData(signal, handler)
		}
	}
}

// parseSignalData parses Bluez DBus signal data.
func (c *Client) parseSignalData(signal *dbus.Signal, handler EventHandler) {
	if signal == nil || len(signal.Body) < 2 {
		return
	}

	switch signal.Name {
	case DbusSignalPropertyChangedIface:
		objectInterfaceName, ok := signal.Body[0].(string)
		if !ok || objectInterfaceName != BluezDeviceIface {
			return
		}

		propertyMap, ok := signal.Body[1].(map[string]dbus.Variant)
		if !ok {
			c.signalError(signal, "pchanged-device-decode")
			return
		}

		connected, ok := propertyMap["Connected"]
		if !ok {
			return
		}

		state, ok := connected.Value().(bool)
		if !ok {
			c.signalError(signal, "pchanged-device-connected")
			return
		}

		address, _ := c.paths.Address(DbusPathDevice, signal.Path)
		device := bluetooth.DeviceData{
			Path:      string(signal.Path),
			Address:   address,
			Connected: state,
		}

		c.log.WithFields(logrus.Fields{
			"device":    device.Address.String(),
			"connected": state,
		}).Debug("Device connection changed")

		c.bus.Publish(bluetooth.EventDevice, device)

		if !state {
			handler.DeviceDisconnected(device.Path)
		}

	case DbusSignalInterfacesAddedIface:
		objectPath, ok := signal.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}

		nestedPropertyMap, ok := signal.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			c.signalError(signal, "padded-decode")
			return
		}

		for iftype, values := range nestedPropertyMap {
			switch iftype {
			case BluezAdapterIface:
				if _, err := c.convertAdapter(objectPath, values); err != nil {
					c.signalError(signal, "padded-adapter-decode")
				}

			case BluezDeviceIface:
				device, ok := c.storeDevice(objectPath, values)
				if !ok {
					c.signalError(signal, "padded-device-decode")
					continue
				}

				c.log.WithFields(logrus.Fields{
					"device": device.Address.String(),
					"name":   device.Name,
				}).Debug("Device added")

				c.bus.Publish(bluetooth.EventDevice, device)
			}
		}
	}
}

// signalError logs and publishes a signal parsing error.
func (c *Client) signalError(signal *dbus.Signal, at string) {
	err := fault.Wrap(errorkinds.ErrEventDataParse,
		fctx.With(context.Background(),
			"error_at", at,
			"path", string(signal.Path),
			"name", signal.Name,
		),
		ftag.With(ftag.Internal),
		fmsg.With("Bluez event handler error"),
	)

	c.log.WithError(err).Warn("Cannot parse signal")
	c.bus.Publish(bluetooth.EventError, err)
}
