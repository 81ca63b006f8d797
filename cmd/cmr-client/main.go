// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/gocmr/cmr/lib/cli"
	"github.com/gocmr/cmr/lib/cmd"
	"github.com/gocmr/cmr/lib/config"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"search-granules":    cli.SearchGranules,
		"search-collections": cli.SearchCollections,

		"ingest-collection": cli.IngestCollection,
		"update-collection": cli.UpdateCollection,
		"delete-collection": cli.DeleteCollection,
		"ingest-granule":    cli.IngestGranule,
		"update-granule":    cli.UpdateGranule,
		"delete-granule":    cli.DeleteGranule,
		"ingest-granules":   cli.IngestGranules,

		"config-check":    config.CheckCommand,
		"config-dump":     config.DumpCommand,
		"config-defaults": config.DumpDefaultsCommand,
	})
)

// fixLegacyArgs moves the subcommand in front of any client flags,
// so "cmr-client -c my.cfg search-granules" works.
func fixLegacyArgs(args []string) []string {
	return cmd.SubcommandToFront(args, cli.LegacyFlagSet())
}

func main() {
	os.Exit(handler.RunCommand(os.Args[0], fixLegacyArgs(os.Args[1:]), os.Stdin, os.Stdout, os.Stderr))
}
