// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/ghodss/yaml"
	"github.com/gocmr/cmr/lib/cmd"
	"github.com/gocmr/cmr/sdk/go/ctxlog"
)

const redacted = "xxxxxxxx"

var DumpCommand dumpCommand

type dumpCommand struct{}

// RunCommand prints the effective configuration (the credentials file
// merged with defaults) as YAML, with secrets redacted.
func (dumpCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()

	loader := NewLoader(stdin, ctxlog.New(stderr, "text", "info"))
	loader.ReadOnly = true
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	loader.SetupFlags(flags)
	showSecrets := flags.Bool("show-secrets", false, "do not redact password and token")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	if !*showSecrets {
		if cfg.Credentials.Password != "" {
			cfg.Credentials.Password = redacted
		}
		if cfg.Ingest.EchoToken != "" {
			cfg.Ingest.EchoToken = redacted
		}
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return 1
	}
	_, err = stdout.Write(out)
	if err != nil {
		return 1
	}
	return 0
}

var CheckCommand checkCommand

type checkCommand struct{}

// RunCommand loads the credentials file and reports whether it is
// usable. The file must be writable, so new tokens can be saved.
func (checkCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()

	loader := NewLoader(stdin, ctxlog.New(stderr, "text", "info"))
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	loader.SetupFlags(flags)
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	if cfg.Ingest.EchoToken == "" {
		fmt.Fprintf(stdout, "%s: ok (no token yet, will authenticate on first use)\n", loader.Path)
	} else {
		fmt.Fprintf(stdout, "%s: ok\n", loader.Path)
	}
	return 0
}

var DumpDefaultsCommand defaultsCommand

type defaultsCommand struct{}

func (defaultsCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	_, err := stdout.Write(DefaultYAML)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}
