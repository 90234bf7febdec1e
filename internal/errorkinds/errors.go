package errorkinds

import "errors"

// The different startup error types.
// These are fatal, and the daemon exits when any of them is returned.
var (
	ErrAdapterUnavailable   = errors.New("adapter is unavailable")
	ErrRegistrationRejected = errors.New("profile registration was rejected")
	ErrProfileRegistered    = errors.New("profile is already registered")
	ErrResourceRead         = errors.New("cannot read resource")
	ErrPermission           = errors.New("insufficient privileges")
	ErrBusConnect           = errors.New("cannot connect to the system bus")
)

// The different session error types.
var (
	ErrBind                = errors.New("cannot bind socket")
	ErrNotConnected        = errors.New("no host is connected")
	ErrInvalidReportLength = errors.New("invalid report length")
	ErrShortWrite          = errors.New("report was partially written")
	ErrSessionClosed       = errors.New("session is closed")
)

// The different parsing error types.
var (
	ErrInvalidAddress = errors.New("invalid Bluetooth address")
	ErrInvalidKey     = errors.New("invalid key")
	ErrEventDataParse = errors.New("error parsing event data")
)

