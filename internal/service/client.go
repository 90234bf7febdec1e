package service

import (
	"context"
	"errors"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

// ErrServiceUnknown is returned when the keyboard service is not running.
var ErrServiceUnknown = errors.New("keyboard service is not running")

// Client calls the keyboard service.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	name string
}

// NewClient returns a client of the service with the provided bus name.
func NewClient(conn *dbus.Conn, name string) *Client {
	if name == "" {
		name = DefaultName
	}

	return &Client{
		conn: conn,
		obj:  conn.Object(name, DefaultPath),
		name: name,
	}
}

// SendKeys sends a report with the provided modifier and key codes.
func (c *Client) SendKeys(modifier byte, keys []byte) error {
	if err := c.obj.Call(c.name+"."+methodSendKeys, 0, modifier, keys).Store(); err != nil {
		return fault.Wrap(errors.Join(ClientError(c.name, err), err),
			fctx.With(context.Background(), "error_at", "client-send-keys", "name", c.name),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot send keys"),
		)
	}

	return nil
}

// ClientError converts a DBus error returned by the service with the
// provided interface name to an error kind. It returns nil if the error
// is not a known DBus error.
func ClientError(iface string, err error) error {
	var derr dbus.Error
	if !errors.As(err, &derr) {
		var pderr *dbus.Error
		if !errors.As(err, &pderr) {
			return nil
		}

		derr = *pderr
	}

	switch derr.Name {
	case ErrorName(iface, ErrorNotConnected):
		return errorkinds.ErrNotConnected

	case ErrorName(iface, ErrorInvalidReportLength):
		return errorkinds.ErrInvalidReportLength

	case "org.freedesktop.DBus.Error.ServiceUnknown", "org.freedesktop.DBus.Error.NameHasNoOwner":
		return ErrServiceUnknown
	}

	return nil
}
