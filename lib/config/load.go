// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/ghodss/yaml"
	"github.com/gocmr/cmr/sdk/go/cmr"
	"github.com/gocmr/cmr/sdk/go/ctxlog"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gopkg.in/ini.v1"
)

//go:embed config.default.yml
var DefaultYAML []byte

// Loader reads a credentials file.
type Loader struct {
	Logger logrus.FieldLogger
	Stdin  io.Reader

	// File to load. "-" means read YAML or JSON from Stdin.
	Path string

	// "ini", "yaml", or "" to choose by file extension (.yml,
	// .yaml, and .json are YAML; anything else is INI).
	Format string

	// If true, the file only needs to be readable. Otherwise
	// Load fails unless the file is also writable, so a new
	// token can be saved.
	ReadOnly bool
}

// NewLoader returns a new Loader with Path set to the default
// credentials file ($CMR_CONFIG, or cmr.cfg).
func NewLoader(stdin io.Reader, logger logrus.FieldLogger) *Loader {
	ldr := &Loader{Stdin: stdin, Logger: logger}
	ldr.SetupFlags(flag.NewFlagSet("", flag.ContinueOnError))
	return ldr
}

// SetupFlags configures a flagset so arguments like -config X can be
// used to change the loader's Path.
func (ldr *Loader) SetupFlags(flagset *flag.FlagSet) {
	flagset.StringVar(&ldr.Path, "config", DefaultPath(), "credentials `file` (.cfg, .yml, or .json)")
}

// DefaultPath returns $CMR_CONFIG if set, otherwise
// cmr.DefaultConfigFile.
func DefaultPath() string {
	if p := os.Getenv("CMR_CONFIG"); p != "" {
		return p
	}
	return cmr.DefaultConfigFile
}

// LoadFile loads and checks the credentials file at path, which must
// be readable and writable.
func LoadFile(path string, logger logrus.FieldLogger) (*cmr.Config, error) {
	ldr := NewLoader(nil, logger)
	ldr.Path = path
	return ldr.Load()
}

func (ldr *Loader) logger() logrus.FieldLogger {
	if ldr.Logger != nil {
		return ldr.Logger
	}
	return ctxlog.FromContext(context.Background())
}

func (ldr *Loader) format() string {
	if ldr.Format != "" {
		return ldr.Format
	}
	if ldr.Path == "-" {
		return "yaml"
	}
	switch strings.ToLower(filepath.Ext(ldr.Path)) {
	case ".yml", ".yaml", ".json":
		return "yaml"
	default:
		return "ini"
	}
}

// Load reads, parses, and checks the credentials file. Settings
// missing from the file are taken from DefaultYAML. Any failure is
// returned as a *cmr.ConfigError.
func (ldr *Loader) Load() (*cmr.Config, error) {
	cfg, err := ldr.load()
	if err != nil {
		return nil, &cmr.ConfigError{Path: ldr.Path, Err: err}
	}
	return cfg, nil
}

func (ldr *Loader) load() (*cmr.Config, error) {
	var buf []byte
	var err error
	if ldr.Path == "-" {
		if ldr.Stdin == nil {
			return nil, errors.New("no input")
		}
		buf, err = io.ReadAll(ldr.Stdin)
	} else {
		if err = checkAccess(ldr.Path, ldr.ReadOnly); err != nil {
			return nil, err
		}
		buf, err = os.ReadFile(ldr.Path)
	}
	if err != nil {
		return nil, err
	}

	var cfg *cmr.Config
	switch f := ldr.format(); f {
	case "yaml":
		cfg, err = loadYAML(buf)
	case "ini":
		cfg, err = loadINI(buf)
	default:
		err = fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	ldr.logger().WithFields(logrus.Fields{
		"Path":     ldr.Path,
		"Provider": cfg.Credentials.Provider,
		"HasToken": cfg.Ingest.EchoToken != "",
	}).Debug("loaded config")
	return cfg, nil
}

func checkAccess(path string, readOnly bool) error {
	mode := uint32(unix.R_OK | unix.W_OK)
	if readOnly {
		mode = unix.R_OK
	}
	if err := unix.Access(path, mode); err != nil {
		if readOnly {
			return fmt.Errorf("file cannot be opened for reading: %w", err)
		}
		return fmt.Errorf("file cannot be opened for reading and writing: %w", err)
	}
	return nil
}

func defaults() (cmr.Config, error) {
	var cfg cmr.Config
	err := yaml.Unmarshal(DefaultYAML, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("loading defaults: %w", err)
	}
	return cfg, nil
}

// loadYAML unmarshals the defaults, then the given config on top of
// them.
func loadYAML(buf []byte) (*cmr.Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var iniLoadOptions = ini.LoadOptions{
	Insensitive:         true,
	IgnoreInlineComment: true,
}

// loadINI parses a credentials file in the INI format used by
// existing CMR tooling. Section and key names are case insensitive.
// Settings that are empty or missing are filled in from the
// defaults.
func loadINI(buf []byte) (*cmr.Config, error) {
	f, err := ini.LoadSources(iniLoadOptions, buf)
	if err != nil {
		return nil, err
	}
	var cfg cmr.Config
	for name, dst := range map[string]interface{}{
		"search":      &cfg.Search,
		"ingest":      &cfg.Ingest,
		"credentials": &cfg.Credentials,
		"request":     &cfg.Request,
	} {
		if !f.HasSection(name) {
			continue
		}
		if err := f.Section(name).MapTo(dst); err != nil {
			return nil, fmt.Errorf("[%s]: %w", name, err)
		}
	}
	if f.HasSection("client") {
		if err := mapClientSection(f.Section("client"), &cfg.Client); err != nil {
			return nil, fmt.Errorf("[client]: %w", err)
		}
	}
	def, err := defaults()
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(&cfg, def); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mapClientSection(sec *ini.Section, cc *cmr.ClientConfig) error {
	var err error
	if k := sec.Key("timeout"); k.String() != "" {
		if err = cc.Timeout.Set(k.String()); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	for name, dst := range map[string]*int{
		"search_concurrency": &cc.SearchConcurrency,
		"retries":            &cc.Retries,
	} {
		if k := sec.Key(name); k.String() != "" {
			if *dst, err = k.Int(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	if k := sec.Key("rate_limit"); k.String() != "" {
		if cc.RateLimit, err = k.Float64(); err != nil {
			return fmt.Errorf("rate_limit: %w", err)
		}
	}
	cc.ExpiryProbeResource = sec.Key("expiry_probe_resource").String()
	cc.IPProbeAddress = sec.Key("ip_probe_address").String()
	cc.LogLevel = sec.Key("log_level").String()
	cc.LogFormat = sec.Key("log_format").String()
	return nil
}
