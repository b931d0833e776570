// Package config loads usbtmcctl's runtime configuration: the attach
// filters, the Run() timestep, and the status-server bind address.
//
// Grounded on nasa-jpl-golaborate/cmd/andorhttp2/main.go's setupconfig:
// koanf defaults loaded from a struct, overridden by an optional YAML
// file, tolerating the file's absence.
package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// FileName is the default configuration file looked for in the current
// directory.
const FileName = "usbtmcctl.yml"

// Config is usbtmcctl's full runtime configuration.
type Config struct {
	// StatusAddr is the status server's bind address, e.g. ":8765".
	// Empty disables the status server.
	StatusAddr string `yaml:"StatusAddr"`

	// TimestepMillis is the period between Run() ticks.
	TimestepMillis uint32 `yaml:"TimestepMillis"`

	// RunHz paces the Run() loop via golang.org/x/time/rate.
	RunHz float64 `yaml:"RunHz"`

	// Verbose enables per-endpoint attach logging.
	Verbose bool `yaml:"Verbose"`

	Attach AttachFilter `yaml:"Attach"`
}

// AttachFilter narrows which device Attach binds to. VendorID/ProductID
// of 0 match any device; an empty SerialPrefix matches any serial.
type AttachFilter struct {
	VendorID     string `yaml:"VendorID"`  // hex, e.g. "0x0957"
	ProductID    string `yaml:"ProductID"` // hex, e.g. "0x1755"
	SerialPrefix string `yaml:"SerialPrefix"`
}

// VendorProductIDs parses the filter's hex VID/PID strings.
func (f AttachFilter) VendorProductIDs() (vid, pid uint16, err error) {
	v, err := parseHexID(f.VendorID)
	if err != nil {
		return 0, 0, fmt.Errorf("config: VendorID: %w", err)
	}
	p, err := parseHexID(f.ProductID)
	if err != nil {
		return 0, 0, fmt.Errorf("config: ProductID: %w", err)
	}
	return v, p, nil
}

func parseHexID(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(pad(s))
	if err != nil {
		return 0, err
	}
	if len(b) == 1 {
		return uint16(b[0]), nil
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func pad(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

func defaults() Config {
	return Config{
		StatusAddr:     ":8765",
		TimestepMillis: 10,
		RunHz:          1000,
		Attach:         AttachFilter{},
	}
}

// Load reads path (falling back to defaults if it does not exist) into
// a fresh Config.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "yaml"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return c, nil
}

// Watch reloads the config from path whenever it changes on disk,
// invoking onChange with the freshly parsed Config. It relies on
// koanf's file.Provider, which backs its Watch hook with fsnotify.
// Errors encountered while reloading are logged and do not stop the
// watch.
func Watch(path string, onChange func(Config)) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "yaml"), nil); err != nil {
		return fmt.Errorf("config: load defaults: %w", err)
	}
	provider := file.Provider(path)
	reload := func() {
		k2 := koanf.New(".")
		k2.Load(structs.Provider(defaults(), "yaml"), nil)
		if err := k2.Load(provider, yaml.Parser()); err != nil {
			log.Printf("config: reload %s: %v", path, err)
			return
		}
		var c Config
		if err := k2.Unmarshal("", &c); err != nil {
			log.Printf("config: unmarshal %s: %v", path, err)
			return
		}
		onChange(c)
	}
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			log.Printf("config: watch %s: %v", path, err)
			return
		}
		reload()
	})
}
