// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// ParseFlags parses args with f, reporting problems and -help output
// on stderr.
//
// positional describes the accepted non-flag arguments for the usage
// line "Usage: prog [options] positional". If positional is empty,
// any non-flag argument is a usage error.
//
// If ok is false the caller should exit with exitCode: 0 after
// printing help, 2 after a usage error.
func ParseFlags(f FlagSet, prog string, args []string, positional string, stderr io.Writer) (ok bool, exitCode int) {
	f.Init(prog, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	err := f.Parse(args)
	switch {
	case errors.Is(err, flag.ErrHelp):
		fmt.Fprintf(stderr, "Usage: %s [options] %s\n", prog, positional)
		f.SetOutput(stderr)
		f.PrintDefaults()
		return false, 0
	case err != nil:
		fmt.Fprintf(stderr, "error parsing command line arguments: %s (try -help)\n", err)
		return false, 2
	case f.NArg() > 0 && positional == "":
		fmt.Fprintf(stderr, "unrecognized command line arguments: %v (try -help)\n", f.Args())
		return false, 2
	}
	return true, 0
}
