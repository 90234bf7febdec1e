// Package config loads the daemon configuration from the configuration
// file and the command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/hjson"
	"github.com/knadh/koanf/providers/cliflagv2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
)

const (
	configDir  = "btkbd"
	configFile = "btkbd.conf"
)

// Config describes the configuration for the daemon.
type Config struct {
	path string

	Values Values
}

// NewConfig returns a new configuration with the default values.
func NewConfig() *Config {
	return &Config{Values: DefaultValues()}
}

// Load loads the configuration from the configuration file and the command-line flags.
// The file is either the one provided with the "config" flag, or the first one found
// within the configuration directories. A missing configuration file is not an error.
func (c *Config) Load(k *koanf.Koanf, cliCtx *cli.Context) error {
	cfgfile := cliCtx.String("config")
	if cfgfile == "" {
		cfgfile = c.findConfigFile()
	}

	if cfgfile != "" {
		if err := k.Load(file.Provider(cfgfile), hjson.Parser()); err != nil {
			return fmt.Errorf("%s: cannot load configuration: %w", cfgfile, err)
		}

		c.path = cfgfile
	}

	if err := k.Load(cliflagv2.Provider(cliCtx, "."), nil); err != nil {
		return err
	}

	return k.UnmarshalWithConf("", &c.Values, koanf.UnmarshalConf{Tag: "koanf"})
}

// Path returns the path of the loaded configuration file, if any.
func (c *Config) Path() string {
	return c.path
}

// ValidateValues validates the configuration values.
func (c *Config) ValidateValues() error {
	return c.Values.validateValues()
}

// ValidateSessionValues validates all configuration values that require a bus session.
func (c *Config) ValidateSessionValues(lister AdapterLister) error {
	return c.Values.validateSessionValues(lister)
}

// GenerateAndSave writes the loaded configuration values to the configuration file,
// and returns the path of the file. If no configuration file was loaded, the file is
// created in the first configuration directory that can be written to.
func (c *Config) GenerateAndSave() (string, error) {
	data, err := hjson.Parser().Marshal(c.Values.Map())
	if err != nil {
		return "", err
	}

	conf := c.path
	if conf == "" {
		conf, err = c.createConfigFile()
		if err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(conf, data, 0o644); err != nil {
		return "", fmt.Errorf("%s: cannot write configuration: %w", conf, err)
	}

	c.path = conf

	return conf, nil
}

// configDirs returns the configuration directories, in the order they are searched.
func configDirs() []string {
	var dirs []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, configDir))
	}

	if homedir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(homedir, ".config", configDir))
	}

	return append(dirs, filepath.Join("/etc", configDir))
}

// findConfigFile returns the first configuration file that exists.
func (c *Config) findConfigFile() string {
	for _, dir := range configDirs() {
		path := filepath.Join(dir, configFile)
		if stat, err := os.Stat(path); err == nil && !stat.IsDir() {
			return path
		}
	}

	return ""
}

// createConfigFile creates the configuration directory, and returns
// the path of the configuration file within it.
func (c *Config) createConfigFile() (string, error) {
	var pathErrors []string

	for _, dir := range configDirs() {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return filepath.Join(dir, configFile), nil
		}

		pathErrors = append(pathErrors, dir)
	}

	return "", errors.New("the configuration directories could not be created at\n" + strings.Join(pathErrors, "\n"))
}
