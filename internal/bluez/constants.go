package bluez

import "github.com/godbus/dbus/v5"

// The DBus specific bus and property names.
const (
	DbusGetPropertiesIface    = "org.freedesktop.DBus.Properties.Get"
	DbusGetAllPropertiesIface = "org.freedesktop.DBus.Properties.GetAll"
	DbusSetPropertiesIface    = "org.freedesktop.DBus.Properties.Set"
	DbusObjectManagerIface    = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	DbusIntrospectableIface   = "org.freedesktop.DBus.Introspectable"

	DbusSignalAddMatchIface        = "org.freedesktop.DBus.AddMatch"
	DbusSignalRemoveMatchIface     = "org.freedesktop.DBus.RemoveMatch"
	DbusSignalPropertyChangedIface = "org.freedesktop.DBus.Properties.PropertiesChanged"
	DbusSignalInterfacesAddedIface = "org.freedesktop.DBus.ObjectManager.InterfacesAdded"

	BluezBusName             = "org.bluez"
	BluezAdapterIface        = "org.bluez.Adapter1"
	BluezDeviceIface         = "org.bluez.Device1"
	BluezProfileIface        = "org.bluez.Profile1"
	BluezProfileManagerIface = "org.bluez.ProfileManager1"
	BluezProfileManagerPath  = dbus.ObjectPath("/org/bluez")
	BluezAdapterPathPrefix   = "/org/bluez/"
)

// The HID service class UUID (0x1124).
const HIDServiceUUID = "00001124-0000-1000-8000-00805f9b34fb"

// The signal match rules used to watch for device disconnections.
const (
	matchInterfacesAdded   = "type='signal',sender='org.bluez',interface='org.freedesktop.DBus.ObjectManager',member='InterfacesAdded'"
	matchPropertiesChanged = "type='signal',sender='org.bluez',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged',arg0='org.bluez.Device1'"
)
