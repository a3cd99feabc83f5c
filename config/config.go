// Package config loads and saves the procmem configuration file.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".procmem"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Attach controls whether opening a process uses the platform debug
	// attach primitive by default.
	Attach bool `yaml:"attach"`
	// Suspend controls whether the target is stopped for the duration of
	// a session opened without attach.
	Suspend bool `yaml:"suspend"`

	// ScanWindowSize is the size in bytes of the streaming read window
	// used by the scanner.
	ScanWindowSize *uint `yaml:"scan-window-size,omitempty"`
	// ScanAlignment restricts scan candidates to addresses that are a
	// multiple of this value. 1 scans every offset.
	ScanAlignment *uint `yaml:"scan-alignment,omitempty"`
	// ScanWorkers is the number of concurrent region readers used by
	// parallel scans.
	ScanWorkers int `yaml:"scan-workers"`
	// ScanWritableOnly limits scans to writable regions.
	ScanWritableOnly bool `yaml:"scan-writable-only"`

	// DumpBytesPerLine is the number of bytes per hexdump line.
	DumpBytesPerLine int `yaml:"dump-bytes-per-line"`
	// DumpMaxLines caps hexdump output. 0 means no limit.
	DumpMaxLines int `yaml:"dump-max-lines"`
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return &Config{}
	}

	if _, err := os.Stat(fullConfigFile); err != nil {
		f, err := createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return &Config{}
		}
		f.Close()
	}

	data, err := os.ReadFile(fullConfigFile)
	if err != nil {
		fmt.Printf("Unable to read config data: %v.", err)
		return &Config{}
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.", err)
		return &Config{}
	}

	return &c
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for procmem.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Use the platform debug attach primitive when opening a process.
# attach: false

# Stop the target for the duration of a session opened without attach.
# suspend: false

# Size in bytes of the streaming read window used by scans.
# scan-window-size: 1048576

# Restrict scan candidates to addresses that are a multiple of this value.
# scan-alignment: 1

# Number of concurrent region readers used by parallel scans.
# scan-workers: 4

# Limit scans to writable regions.
# scan-writable-only: true

# Number of bytes per hexdump line.
# dump-bytes-per-line: 16

# Cap hexdump output at this many lines, 0 for no limit.
# dump-max-lines: 0
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
