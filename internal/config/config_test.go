package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/knadh/koanf/parsers/hjson"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/darkhz/btkbd/internal/bluetooth"
	"github.com/darkhz/btkbd/internal/errorkinds"
)

// loadWithArgs runs a minimal command-line application with the
// provided arguments, and loads the configuration within it.
func loadWithArgs(t *testing.T, args ...string) *Config {
	t.Helper()

	cfg := NewConfig()
	app := &cli.App{
		Name: "btkbd",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config"},
			&cli.StringFlag{Name: "adapter"},
			&cli.StringFlag{Name: "alias"},
			&cli.BoolFlag{Name: "discoverable"},
			&cli.UintFlag{Name: "discoverable-timeout"},
			&cli.StringFlag{Name: "log-level"},
		},
		Action: func(cliCtx *cli.Context) error {
			cliCtx.Command.Name = "global"

			return cfg.Load(koanf.New("."), cliCtx)
		},
	}

	if err := app.Run(append([]string{"btkbd"}, args...)); err != nil {
		t.Fatalf("load: %v", err)
	}

	return cfg
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func isolateConfigDirs(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", filepath.Join(dir, "home"))

	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolateConfigDirs(t)

	cfg := loadWithArgs(t)
	if cfg.Path() != "" {
		t.Errorf("path = %q, want none", cfg.Path())
	}

	if cfg.Values.Adapter != DefaultAdapter || cfg.Values.Alias != DefaultAlias {
		t.Errorf("values = %+v, want the defaults", cfg.Values)
	}

	if !cfg.Values.Discoverable || !cfg.Values.Powered {
		t.Errorf("discoverable/powered = %v/%v, want true/true", cfg.Values.Discoverable, cfg.Values.Powered)
	}
}

func TestLoadFileAndFlags(t *testing.T) {
	dir := isolateConfigDirs(t)

	path := filepath.Join(dir, "custom.conf")
	writeConfig(t, path, `{
		"adapter": "hci1"
		"alias": "Desk Keyboard"
		"discoverable-timeout": 120
		"log-level": "debug"
	}`)

	cfg := loadWithArgs(t, "--config", path, "--alias", "Flag Keyboard")
	if cfg.Path() != path {
		t.Errorf("path = %q, want %q", cfg.Path(), path)
	}

	v := cfg.Values
	if v.Adapter != "hci1" {
		t.Errorf("adapter = %q, want hci1", v.Adapter)
	}

	if v.Alias != "Flag Keyboard" {
		t.Errorf("alias = %q, want the flag value", v.Alias)
	}

	if v.DiscoverableTimeout != 120 {
		t.Errorf("discoverable-timeout = %d, want 120", v.DiscoverableTimeout)
	}

	if v.ServiceName != DefaultServiceName {
		t.Errorf("service-name = %q, want the default", v.ServiceName)
	}
}

func TestLoadSearchesConfigDirs(t *testing.T) {
	dir := isolateConfigDirs(t)

	path := filepath.Join(dir, "xdg", configDir, configFile)
	writeConfig(t, path, `{ "adapter": "hci2" }`)

	cfg := loadWithArgs(t)
	if cfg.Path() != path {
		t.Fatalf("path = %q, want %q", cfg.Path(), path)
	}

	if cfg.Values.Adapter != "hci2" {
		t.Errorf("adapter = %q, want hci2", cfg.Values.Adapter)
	}
}

func TestValidateValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Values)
		errMsg string
	}{
		{name: "defaults"},
		{
			name:   "adapter address",
			modify: func(v *Values) { v.Adapter = "B8:27:EB:5A:D2:BE" },
			errMsg: "invalid adapter name",
		},
		{
			name:   "adapter without index",
			modify: func(v *Values) { v.Adapter = "hci" },
			errMsg: "invalid adapter name",
		},
		{
			name:   "empty alias",
			modify: func(v *Values) { v.Alias = "  " },
			errMsg: "alias cannot be empty",
		},
		{
			name:   "long alias",
			modify: func(v *Values) { v.Alias = strings.Repeat("k", maxAliasLength+1) },
			errMsg: "longer than",
		},
		{
			name:   "profile path",
			modify: func(v *Values) { v.ProfilePath = "bluez/profile" },
			errMsg: "invalid profile object path",
		},
		{
			name:   "profile interface",
			modify: func(v *Values) { v.ProfileInterface = "Profile1" },
			errMsg: "invalid profile interface name",
		},
		{
			name:   "profile uuid",
			modify: func(v *Values) { v.ProfileUUID = "hid" },
			errMsg: "invalid profile UUID",
		},
		{
			name:   "service name",
			modify: func(v *Values) { v.ServiceName = "org.yaptb.1service" },
			errMsg: "invalid service name",
		},
		{
			name:   "log level",
			modify: func(v *Values) { v.LogLevel = "loud" },
			errMsg: "invalid log level",
		},
		{
			name:   "keybindings",
			modify: func(v *Values) { v.Keybindings = map[string]string{"Quit": "a+b"} },
			errMsg: "More than one key",
		},
		{
			name:   "theme",
			modify: func(v *Values) { v.Theme = map[string]string{"Key": "not-a-color"} },
			errMsg: "theme configuration is incorrect",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v := DefaultValues()
			if test.modify != nil {
				test.modify(&v)
			}

			err := v.validateValues()
			if test.errMsg == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), test.errMsg) {
				t.Fatalf("validate = %v, want error containing %q", err, test.errMsg)
			}
		})
	}
}

func TestValidateValuesSetsDerived(t *testing.T) {
	v := DefaultValues()
	v.LogLevel = "debug"

	if err := v.validateValues(); err != nil {
		t.Fatal(err)
	}

	if v.Level != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", v.Level)
	}

	if filepath.Base(v.SDPRecord) != "sdp_record.xml" {
		t.Errorf("sdp-record = %q, want the default record path", v.SDPRecord)
	}
}

type fakeLister struct {
	adapters []bluetooth.AdapterData
	err      error
}

func (f fakeLister) Adapters() ([]bluetooth.AdapterData, error) {
	return f.adapters, f.err
}

func TestValidateSessionValues(t *testing.T) {
	lister := fakeLister{adapters: []bluetooth.AdapterData{
		{UniqueName: "hci0", Address: bluetooth.Address{0xB8, 0x27, 0xEB, 0x5A, 0xD2, 0xBE}},
		{UniqueName: "hci1"},
	}}

	cfg := NewConfig()
	if err := cfg.ValidateSessionValues(lister); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Values.SelectedAdapter == nil || cfg.Values.SelectedAdapter.UniqueName != "hci0" {
		t.Fatalf("selected adapter = %+v, want hci0", cfg.Values.SelectedAdapter)
	}

	cfg.Values.Adapter = "hci5"
	err := cfg.ValidateSessionValues(lister)
	if !errors.Is(err, errorkinds.ErrAdapterUnavailable) {
		t.Fatalf("validate = %v, want ErrAdapterUnavailable", err)
	}

	listErr := errors.New("bus closed")
	if err := cfg.ValidateSessionValues(fakeLister{err: listErr}); !errors.Is(err, listErr) {
		t.Fatalf("validate = %v, want the lister error", err)
	}
}

func TestGenerateAndSave(t *testing.T) {
	dir := isolateConfigDirs(t)

	cfg := NewConfig()
	cfg.Values.Alias = "Generated Keyboard"
	cfg.Values.DiscoverableTimeout = 30

	path, err := cfg.GenerateAndSave()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if want := filepath.Join(dir, "xdg", configDir, configFile); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), hjson.Parser()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if got := k.String("alias"); got != "Generated Keyboard" {
		t.Errorf("alias = %q, want Generated Keyboard", got)
	}

	if got := k.Int("discoverable-timeout"); got != 30 {
		t.Errorf("discoverable-timeout = %d, want 30", got)
	}

	if got := k.String("adapter"); got != DefaultAdapter {
		t.Errorf("adapter = %q, want %q", got, DefaultAdapter)
	}
}
