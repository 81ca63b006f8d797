// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ghodss/yaml"
	"github.com/gocmr/cmr/sdk/go/cmr"
	"gopkg.in/ini.v1"
)

// FileStore reads credentials from a credentials file, and (if used
// as a cmr.TokenSaver) writes new tokens back to it.
//
// Credentials are re-read from the file each time they are needed,
// so the password is not held in memory between authentications.
type FileStore struct {
	Path string

	// As in Loader.
	Format string

	mtx sync.Mutex
}

func (fs *FileStore) loader() *Loader {
	return &Loader{Path: fs.Path, Format: fs.Format, ReadOnly: true}
}

// Credentials implements cmr.CredentialProvider.
func (fs *FileStore) Credentials() (cmr.Credentials, error) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	cfg, err := fs.loader().Load()
	if err != nil {
		return cmr.Credentials{}, err
	}
	return cmr.Credentials{
		Username:      cfg.Credentials.Username,
		Password:      cfg.Credentials.Password,
		ClientID:      cfg.Credentials.ClientID,
		Provider:      cfg.Credentials.Provider,
		UserIPAddress: cfg.Credentials.UserIPAddress,
	}, nil
}

// SaveToken implements cmr.TokenSaver. It replaces the value of
// ingest.echo_token and leaves the rest of the file's settings
// alone.
func (fs *FileStore) SaveToken(token string) error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	err := fs.saveToken(token)
	if err != nil {
		return &cmr.ConfigError{Path: fs.Path, Err: err}
	}
	return nil
}

func (fs *FileStore) saveToken(token string) error {
	if fs.Path == "-" {
		return errors.New("cannot save token to stdin")
	}
	fi, err := os.Stat(fs.Path)
	if err != nil {
		return err
	}
	if err := checkAccess(fs.Path, false); err != nil {
		return err
	}
	buf, err := os.ReadFile(fs.Path)
	if err != nil {
		return err
	}
	var out []byte
	switch fs.loader().format() {
	case "yaml":
		out, err = replaceTokenYAML(buf, token, strings.HasSuffix(strings.ToLower(fs.Path), ".json"))
	default:
		out, err = replaceTokenINI(buf, token)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(fs.Path, out, fi.Mode().Perm())
}

// replaceTokenINI sets echo_token in the [ingest] section, matching
// existing section and key names case-insensitively and keeping
// their spelling.
func replaceTokenINI(buf []byte, token string) ([]byte, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, buf)
	if err != nil {
		return nil, err
	}
	var sec *ini.Section
	for _, s := range f.Sections() {
		if strings.EqualFold(s.Name(), "ingest") {
			sec = s
			break
		}
	}
	if sec == nil {
		if sec, err = f.NewSection("ingest"); err != nil {
			return nil, err
		}
	}
	var key *ini.Key
	for _, k := range sec.Keys() {
		if strings.EqualFold(k.Name(), "echo_token") {
			key = k
			break
		}
	}
	if key == nil {
		if key, err = sec.NewKey("echo_token", ""); err != nil {
			return nil, err
		}
	}
	key.SetValue(token)
	var out bytes.Buffer
	if _, err := f.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// replaceTokenYAML sets ingest.echo_token in a YAML or JSON document.
// Other settings are preserved, but comments and key order are not.
func replaceTokenYAML(buf []byte, token string, asJSON bool) ([]byte, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	ingest, ok := doc["ingest"].(map[string]interface{})
	if !ok {
		if doc["ingest"] != nil {
			return nil, fmt.Errorf("ingest: expected a map, found %T", doc["ingest"])
		}
		ingest = map[string]interface{}{}
		doc["ingest"] = ingest
	}
	ingest["echo_token"] = token
	if asJSON {
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	}
	return yaml.Marshal(doc)
}
