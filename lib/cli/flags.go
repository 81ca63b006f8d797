// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/gocmr/cmr/lib/cmd"
	"github.com/gocmr/cmr/lib/config"
	"github.com/gocmr/cmr/sdk/go/cmr"
	"github.com/gocmr/cmr/sdk/go/ctxlog"
	"github.com/google/shlex"
	"rsc.io/getopt"
)

// clientFlags are accepted by every subcommand that talks to the
// service. They may also be given before the subcommand name; see
// LegacyFlagSet.
type clientFlags struct {
	ConfigPath   string
	Format       string
	Verbose      bool
	PersistToken bool
}

func (cf *clientFlags) register(flags *getopt.FlagSet) {
	flags.StringVar(&cf.ConfigPath, "config", config.DefaultPath(), "credentials `file` (.cfg, .yml, or .json)")
	flags.Alias("c", "config")
	flags.StringVar(&cf.Format, "format", "text", "output `format`: text, json, or yaml")
	flags.Alias("f", "format")
	flags.BoolVar(&cf.Verbose, "verbose", false, "log each request on stderr")
	flags.Alias("v", "verbose")
	flags.BoolVar(&cf.PersistToken, "persist-token", true, "save newly issued tokens in the credentials file")
}

// LegacyFlagSet returns a flag set that recognizes the flags common
// to all subcommands, for use with cmd.SubcommandToFront.
func LegacyFlagSet() cmd.FlagSet {
	flags := getopt.NewFlagSet("", flag.ContinueOnError)
	(&clientFlags{}).register(flags)
	return flags
}

func (cf *clientFlags) checkFormat() error {
	switch cf.Format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (try text, json, or yaml)", cf.Format)
	}
}

// newClient loads the credentials file and returns a client, along
// with a context that carries a logger and is cancelled on SIGINT.
// The caller must call the returned cancel func.
func (cf *clientFlags) newClient(stdin io.Reader, stderr io.Writer) (context.Context, context.CancelFunc, *cmr.Client, error) {
	loader := config.NewLoader(stdin, ctxlog.New(stderr, "text", "info"))
	loader.Path = cf.ConfigPath
	loader.ReadOnly = !cf.PersistToken
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	level := cfg.Client.LogLevel
	if cf.Verbose {
		level = "debug"
	}
	logger := ctxlog.New(stderr, cfg.Client.LogFormat, level)
	ctx, cancel := signal.NotifyContext(ctxlog.Context(context.Background(), logger), os.Interrupt)

	var saver cmr.TokenSaver
	store := &config.FileStore{Path: cf.ConfigPath}
	if cf.PersistToken && cf.ConfigPath != "-" {
		saver = store
	}
	client, err := cmr.NewClientFromConfig(ctx, cfg, saver)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	if cf.ConfigPath != "-" {
		client.Credentials = store
	}
	return ctx, cancel, client, nil
}

// parseParams returns search parameters given as key=value
// arguments. An argument may hold several space-separated pairs, with
// shell-style quoting, e.g., 'short_name=AIRX3STD temporal="a,b"'.
func parseParams(args []string) (map[string]string, error) {
	params := map[string]string{}
	for _, arg := range args {
		words, err := shlex.Split(arg)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", arg, err)
		}
		for _, word := range words {
			k, v, ok := strings.Cut(word, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("search parameter %q is not in key=value form", word)
			}
			params[k] = v
		}
	}
	return params, nil
}
