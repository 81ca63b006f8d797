// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmdtest provides tools for testing the cmr-client commands.
package cmdtest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocmr/cmr/sdk/go/cmr"
	check "gopkg.in/check.v1"
)

// LeakCheck redirects os.Stdout and os.Stderr to temp files, and
// returns a func (to be deferred by the caller) that restores them
// and checks nothing was written. Commands are expected to write only
// to the stdout and stderr passed to RunCommand.
//
//	func (s *Suite) TestSomething(c *check.C) {
//		defer cmdtest.LeakCheck(c)()
//		...
//	}
func LeakCheck(c *check.C) func() {
	saved := []**os.File{&os.Stdout, &os.Stderr}
	orig := []*os.File{os.Stdout, os.Stderr}
	var tmp []*os.File
	for _, f := range saved {
		t, err := os.CreateTemp(c.MkDir(), "leak")
		c.Assert(err, check.IsNil)
		tmp = append(tmp, t)
		*f = t
	}
	return func() {
		for i, f := range saved {
			*f = orig[i]
			_, err := tmp[i].Seek(0, io.SeekStart)
			c.Assert(err, check.IsNil)
			leaked, err := io.ReadAll(tmp[i])
			c.Assert(err, check.IsNil)
			c.Check(string(leaked), check.Equals, "", check.Commentf("leaked to %s", []string{"stdout", "stderr"}[i]))
			tmp[i].Close()
		}
	}
}

// WriteINI writes cfg to a new credentials file in the legacy INI
// format and returns its path. Empty settings are omitted.
func WriteINI(c *check.C, cfg *cmr.Config) string {
	var buf strings.Builder
	for _, sec := range []struct {
		name string
		keys [][2]string
	}{
		{"search", [][2]string{
			{"granule_url", cfg.Search.GranuleURL},
			{"granule_meta_url", cfg.Search.GranuleMetaURL},
			{"collection_url", cfg.Search.CollectionURL},
			{"collection_meta_url", cfg.Search.CollectionMetaURL},
		}},
		{"ingest", [][2]string{
			{"ingest_url", cfg.Ingest.IngestURL},
			{"content_type", cfg.Ingest.ContentType},
			{"echo_token", cfg.Ingest.EchoToken},
		}},
		{"credentials", [][2]string{
			{"provider", cfg.Credentials.Provider},
			{"username", cfg.Credentials.Username},
			{"password", cfg.Credentials.Password},
			{"client_id", cfg.Credentials.ClientID},
			{"user_ip_address", cfg.Credentials.UserIPAddress},
		}},
		{"request", [][2]string{
			{"request_token_url", cfg.Request.RequestTokenURL},
		}},
	} {
		fmt.Fprintf(&buf, "[%s]\n", sec.name)
		for _, kv := range sec.keys {
			if kv[1] != "" {
				fmt.Fprintf(&buf, "%s = %s\n", kv[0], kv[1])
			}
		}
	}
	fnm := filepath.Join(c.MkDir(), "cmr.cfg")
	c.Assert(os.WriteFile(fnm, []byte(buf.String()), 0600), check.IsNil)
	return fnm
}
