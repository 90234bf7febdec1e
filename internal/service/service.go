// Package service exposes the keyboard on the system bus, so that other
// processes can send keys to the connected host.
package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/sirupsen/logrus"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

// The default service names.
const (
	DefaultName = "org.yaptb.btkbservice"
	DefaultPath = dbus.ObjectPath("/org/yaptb/btkbservice")

	methodSendKeys = "send_keys"
)

// The DBus error kinds returned by the service. The full error name
// is the service interface name, followed by ".Error." and the kind.
const (
	ErrorNotConnected        = "NotConnected"
	ErrorInvalidReportLength = "InvalidReportLength"
	ErrorFailed              = "Failed"
)

// Sender sends keyboard reports to the connected host.
type Sender interface {
	SendKeys(modifier byte, keys []byte) error
}

// Service is the exported keyboard service.
type Service struct {
	conn   *dbus.Conn
	name   string
	iface  string
	path   dbus.ObjectPath
	sender Sender
	log    *logrus.Entry

	exported bool
}

// Options holds the service options.
type Options struct {
	// Name is the bus name, which is also used as the interface name.
	Name string

	// Path is the object path. It defaults to DefaultPath.
	Path dbus.ObjectPath

	// Sender receives the keys.
	Sender Sender

	// Logger is the base logger. It may be nil.
	Logger *logrus.Entry
}

// methods is exported to the bus instead of the Service's Go methods.
type methods struct {
	s *Service
}

// New returns a new service.
func New(conn *dbus.Conn, opts Options) *Service {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Service{
		conn:   conn,
		name:   opts.Name,
		iface:  opts.Name,
		path:   opts.Path,
		sender: opts.Sender,
		log:    logger.WithFields(logrus.Fields{"component": "service", "name": opts.Name}),
	}
}

// Export exports the service object and acquires the bus name.
func (s *Service) Export() error {
	m := methods{s: s}

	if err := s.conn.ExportWithMap(m, map[string]string{"SendKeys": methodSendKeys}, s.path, s.iface); err != nil {
		return s.exportError(err, "service-export")
	}

	node := &introspect.Node{
		Name: string(s.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: s.iface,
				Methods: []introspect.Method{
					{
						Name: methodSendKeys,
						Args: []introspect.Arg{
							{Name: "modifier", Type: "y", Direction: "in"},
							{Name: "keys", Type: "ay", Direction: "in"},
						},
					},
				},
			},
		},
	}

	if err := s.conn.Export(introspect.NewIntrospectable(node), s.path, "org.freedesktop.DBus.Introspectable"); err != nil {
		s.unexport()
		return s.exportError(err, "service-export-introspect")
	}

	reply, err := s.conn.RequestName(s.name, dbus.NameFlagDoNotQueue)
	if err == nil && reply != dbus.RequestNameReplyPrimaryOwner {
		err = errors.New("name is already owned, reply " + strconv.Itoa(int(reply)))
	}
	if err != nil {
		s.unexport()
		return s.exportError(err, "service-request-name")
	}

	s.exported = true
	s.log.WithField("path", string(s.path)).Info("Service exported")

	return nil
}

// Close releases the bus name and unexports the service object.
func (s *Service) Close() error {
	if !s.exported {
		return nil
	}

	s.exported = false
	s.unexport()

	if _, err := s.conn.ReleaseName(s.name); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "service-release-name", "name", s.name),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot release the service name"),
		)
	}

	return nil
}

// SendKeys is the bus method that sends a report with the provided
// modifier and key codes.
func (m methods) SendKeys(modifier byte, keys []byte) *dbus.Error {
	if err := m.s.sender.SendKeys(modifier, keys); err != nil {
		m.s.log.WithError(err).WithFields(logrus.Fields{
			"modifier": modifier,
			"keys":     keys,
		}).Debug("Cannot send keys")

		return DBusError(m.s.iface, err)
	}

	return nil
}

// ErrorName returns the DBus error name of the kind, for the interface.
func ErrorName(iface, kind string) string {
	return iface + ".Error." + kind
}

// DBusError converts an error to a DBus error named after the interface.
func DBusError(iface string, err error) *dbus.Error {
	kind := ErrorFailed

	switch {
	case errors.Is(err, errorkinds.ErrNotConnected):
		kind = ErrorNotConnected

	case errors.Is(err, errorkinds.ErrInvalidReportLength):
		kind = ErrorInvalidReportLength
	}

	message := fmsg.GetIssue(err)
	if message == "" {
		message = err.Error()
	}

	return dbus.NewError(ErrorName(iface, kind), []any{message})
}

func (s *Service) unexport() {
	s.conn.Export(nil, s.path, s.iface)
	s.conn.Export(nil, s.path, "org.freedesktop.DBus.Introspectable")
}

func (s *Service) exportError(err error, at string) error {
	return fault.Wrap(err,
		fctx.With(context.Background(),
			"error_at", at,
			"name", s.name,
			"path", string(s.path),
		),
		ftag.With(ftag.Internal),
		fmsg.With("Cannot export the keyboard service"),
	)
}
