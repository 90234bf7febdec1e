package bluez

import (
	"github.com/godbus/dbus/v5"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/darkhz/btkbd/internal/bluetooth"
)

// DbusPathType represents the type of DBus path in the Bluez DBus service.
type DbusPathType int

// The different Bluez DBus path types.
const (
	DbusPathDevice DbusPathType = iota
	DbusPathAdapter
)

// dbusPath holds the Bluez DBus path and its type.
type dbusPath struct {
	pathType DbusPathType
	path     dbus.ObjectPath
}

// pathConverter maps Bluez DBus paths to their respective Bluetooth addresses.
type pathConverter struct {
	paths *xsync.MapOf[dbusPath, bluetooth.Address]
}

// newPathConverter returns a new path converter.
func newPathConverter() *pathConverter {
	return &pathConverter{paths: xsync.NewMapOf[dbusPath, bluetooth.Address]()}
}

// AddDbusPath adds a mapping of a Bluez DBus path and a Bluetooth address.
func (d *pathConverter) AddDbusPath(pathType DbusPathType, path dbus.ObjectPath, address bluetooth.Address) {
	d.paths.Store(dbusPath{pathType: pathType, path: path}, address)
}

// Address returns the Bluetooth address that is mapped to the provided Bluez DBus path.
// Device paths that were never seen are resolved from the path itself.
func (d *pathConverter) Address(pathType DbusPathType, path dbus.ObjectPath) (bluetooth.Address, bool) {
	if address, ok := d.paths.Load(dbusPath{pathType: pathType, path: path}); ok {
		return address, true
	}

	if pathType == DbusPathDevice {
		return bluetooth.AddressFromPath(string(path))
	}

	return bluetooth.Address{}, false
}
