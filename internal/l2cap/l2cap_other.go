//go:build !linux

package l2cap

import (
	"context"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/session"
)

// Transport opens L2CAP listeners.
type Transport struct{}

// Listen always fails, L2CAP sockets are only supported on Linux.
func (Transport) Listen(addr bluetooth.Address, _ uint16) (session.Listener, error) {
	return nil, fault.Wrap(errorkinds.ErrBind,
		fctx.With(context.Background(), "error_at", "l2cap-unsupported", "address", addr.String()),
		ftag.With(ftag.Internal),
		fmsg.With("L2CAP sockets are not supported on this platform"),
	)
}
