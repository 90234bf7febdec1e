package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/sdp"
	"github.com/darkhz/btkbd/ui/keybindings"
	"github.com/darkhz/btkbd/ui/theme"
)

// The default configuration values.
const (
	DefaultAdapter          = "hci0"
	DefaultAlias            = "DeskPi_BTKb"
	DefaultProfilePath      = "/bluez/yaptb/btkb_profile"
	DefaultProfileInterface = "org.bluez.Profile1"
	DefaultProfileUUID      = "00001124-0000-1000-8000-00805f9b34fb"
	DefaultServiceName      = "org.yaptb.btkbservice"
	DefaultLogLevel         = "info"
)

// maxAliasLength is the maximum length of a Bluetooth device name.
const maxAliasLength = 248

// Values describes the possible configuration values that a user can
// modify and supply to the daemon.
type Values struct {
	Adapter             string            `koanf:"adapter"`
	Alias               string            `koanf:"alias"`
	Discoverable        bool              `koanf:"discoverable"`
	DiscoverableTimeout uint32            `koanf:"discoverable-timeout"`
	Powered             bool              `koanf:"powered"`
	SDPRecord           string            `koanf:"sdp-record"`
	ProfilePath         string            `koanf:"profile-path"`
	ProfileInterface    string            `koanf:"profile-interface"`
	ProfileUUID         string            `koanf:"profile-uuid"`
	ServiceName         string            `koanf:"service-name"`
	LogLevel            string            `koanf:"log-level"`
	Theme               map[string]string `koanf:"theme"`
	Keybindings         map[string]string `koanf:"keybindings"`

	SelectedAdapter *bluetooth.AdapterData   `koanf:"-"`
	Level           logrus.Level             `koanf:"-"`
	Kb              *keybindings.Keybindings `koanf:"-"`
}

// AdapterLister lists the adapters that are present on the system.
type AdapterLister interface {
	Adapters() ([]bluetooth.AdapterData, error)
}

// DefaultValues returns the default configuration values.
func DefaultValues() Values {
	return Values{
		Adapter:          DefaultAdapter,
		Alias:            DefaultAlias,
		Discoverable:     true,
		Powered:          true,
		ProfilePath:      DefaultProfilePath,
		ProfileInterface: DefaultProfileInterface,
		ProfileUUID:      DefaultProfileUUID,
		ServiceName:      DefaultServiceName,
		LogLevel:         DefaultLogLevel,
		Theme:            map[string]string{},
		Keybindings:      map[string]string{},
	}
}

// Map returns the values that can be saved to the configuration file.
func (v *Values) Map() map[string]any {
	return map[string]any{
		"adapter":              v.Adapter,
		"alias":                v.Alias,
		"discoverable":         v.Discoverable,
		"discoverable-timeout": v.DiscoverableTimeout,
		"powered":              v.Powered,
		"sdp-record":           v.SDPRecord,
		"profile-path":         v.ProfilePath,
		"profile-interface":    v.ProfileInterface,
		"profile-uuid":         v.ProfileUUID,
		"service-name":         v.ServiceName,
		"log-level":            v.LogLevel,
		"theme":                v.Theme,
		"keybindings":          v.Keybindings,
	}
}

// validateValues validates all configuration values.
func (v *Values) validateValues() error {
	for _, validate := range []func() error{
		v.validateAdapterName,
		v.validateAlias,
		v.validateSDPRecord,
		v.validateProfile,
		v.validateServiceName,
		v.validateLogLevel,
		v.validateKeybindings,
		v.validateTheme,
	} {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

// validateSessionValues validates all configuration values that require a bus session.
func (v *Values) validateSessionValues(lister AdapterLister) error {
	adapters, err := lister.Adapters()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		if adapter.UniqueName == v.Adapter {
			v.SelectedAdapter = &adapter
			return nil
		}

		names = append(names, adapter.UniqueName)
	}

	available := "none"
	if len(names) > 0 {
		available = strings.Join(names, ", ")
	}

	return fault.Wrap(errorkinds.ErrAdapterUnavailable,
		fctx.With(context.Background(),
			"error_at", "config-validate-adapter",
			"adapter", v.Adapter,
		),
		ftag.With(ftag.Internal),
		fmsg.With(fmt.Sprintf("%s: The adapter does not exist (available: %s)", v.Adapter, available)),
	)
}

// validateAdapterName validates that the adapter is specified by its kernel name, like "hci0".
func (v *Values) validateAdapterName() error {
	index, ok := strings.CutPrefix(v.Adapter, "hci")
	if ok {
		if _, err := strconv.ParseUint(index, 10, 16); err == nil {
			return nil
		}
	}

	return fmt.Errorf("%s: invalid adapter name, expected a name like 'hci0'", v.Adapter)
}

// validateAlias validates the name that remote hosts see during discovery.
func (v *Values) validateAlias() error {
	switch {
	case strings.TrimSpace(v.Alias) == "":
		return errors.New("the adapter alias cannot be empty")

	case len(v.Alias) > maxAliasLength:
		return fmt.Errorf("the adapter alias is longer than %d bytes", maxAliasLength)
	}

	return nil
}

// validateSDPRecord sets the default path of the service record, if none was provided.
func (v *Values) validateSDPRecord() error {
	if v.SDPRecord == "" {
		v.SDPRecord = sdp.DefaultPath()
	}

	return nil
}

// validateProfile validates the profile path, interface and UUID.
func (v *Values) validateProfile() error {
	if !dbus.ObjectPath(v.ProfilePath).IsValid() {
		return fmt.Errorf("%s: invalid profile object path", v.ProfilePath)
	}

	if !validInterfaceName(v.ProfileInterface) {
		return fmt.Errorf("%s: invalid profile interface name", v.ProfileInterface)
	}

	if _, err := uuid.Parse(v.ProfileUUID); err != nil {
		return fmt.Errorf("%s: invalid profile UUID: %w", v.ProfileUUID, err)
	}

	return nil
}

// validateServiceName validates the bus name of the keyboard service.
func (v *Values) validateServiceName() error {
	if !validInterfaceName(v.ServiceName) {
		return fmt.Errorf("%s: invalid service name", v.ServiceName)
	}

	return nil
}

// validateLogLevel validates the log level.
func (v *Values) validateLogLevel() error {
	level, err := logrus.ParseLevel(v.LogLevel)
	if err != nil {
		return fmt.Errorf("%s: invalid log level", v.LogLevel)
	}

	v.Level = level

	return nil
}

// validateKeybindings validates the keybindings of the relay.
func (v *Values) validateKeybindings() error {
	v.Kb = keybindings.NewKeybindings()
	if len(v.Keybindings) == 0 {
		return nil
	}

	return v.Kb.Validate(v.Keybindings)
}

// validateTheme validates the theme of the relay.
func (v *Values) validateTheme() error {
	if len(v.Theme) == 0 {
		return nil
	}

	return theme.ParseThemeConfig(v.Theme)
}

// validInterfaceName reports whether name is a valid DBus interface or bus name,
// that is, at least two dot-separated elements made of [A-Za-z0-9_], none of which
// starts with a digit.
func validInterfaceName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}

	elements := strings.Split(name, ".")
	if len(elements) < 2 {
		return false
	}

	for _, element := range elements {
		if element == "" || (element[0] >= '0' && element[0] <= '9') {
			return false
		}

		for _, r := range element {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			default:
				return false
			}
		}
	}

	return true
}
