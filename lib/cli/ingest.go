// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/gocmr/cmr/lib/cmd"
	"github.com/gocmr/cmr/sdk/go/cmr"
	"rsc.io/getopt"
)

var (
	IngestCollection = ingestCommand{usage: "collection.xml", call: (*cmr.Client).IngestCollectionFile}
	UpdateCollection = ingestCommand{usage: "collection.xml", call: (*cmr.Client).UpdateCollectionFile}
	IngestGranule    = ingestCommand{usage: "granule.xml", call: (*cmr.Client).IngestGranuleFile}
	UpdateGranule    = ingestCommand{usage: "granule.xml", call: (*cmr.Client).UpdateGranuleFile}
	DeleteCollection = ingestCommand{usage: "dataset-id", call: (*cmr.Client).DeleteCollection}
	DeleteGranule    = ingestCommand{usage: "granule-ur", call: (*cmr.Client).DeleteGranule}
	IngestGranules   = batchCommand{}
)

type outcomeReport struct {
	Target     string `json:"target"`
	Stage      string `json:"stage"`
	State      string `json:"state"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
}

func (r *outcomeReport) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\n%s\n", r.Target, r.Stage, r.State, r.StatusCode, r.Body)
	return err
}

// ingestCommand runs one single-record ingest, update, or delete. The
// only argument is a file name or (for deletes) a record identity.
type ingestCommand struct {
	usage string
	call  func(*cmr.Client, context.Context, string) (cmr.IngestOutcome, error)
}

func (ic ingestCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()

	var cf clientFlags
	flags := getopt.NewFlagSet(prog, flag.ContinueOnError)
	cf.register(flags)
	if ok, code := cmd.ParseFlags(flags, prog, args, ic.usage, stderr); !ok {
		return code
	} else if flags.NArg() != 1 {
		err = fmt.Errorf("usage: %s [options] %s", prog, ic.usage)
		return 2
	}
	if err = cf.checkFormat(); err != nil {
		return 2
	}
	ctx, cancel, client, err := cf.newClient(stdin, stderr)
	if err != nil {
		return 1
	}
	defer cancel()

	target := flags.Arg(0)
	outcome, err := ic.call(client, ctx, target)
	if err != nil {
		return 1
	}
	report := &outcomeReport{
		Target:     target,
		Stage:      string(outcome.Stage),
		State:      string(outcome.State),
		StatusCode: outcome.StatusCode,
		Body:       outcome.Body,
	}
	if err = writeOutput(stdout, cf.Format, report); err != nil {
		return 1
	}
	if outcome.Failed() {
		return 1
	}
	return 0
}

type batchReport struct {
	Log       []string `json:"log"`
	Succeeded int      `json:"succeeded"`
	Total     int      `json:"total"`
	Summary   string   `json:"summary"`
}

func (r *batchReport) writeText(w io.Writer) error {
	for _, line := range r.Log {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, r.Summary)
	return err
}

// batchCommand ingests every granule listed in a comma-separated
// text file. It exits non-zero if any granule failed.
type batchCommand struct{}

func (batchCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()

	var cf clientFlags
	flags := getopt.NewFlagSet(prog, flag.ContinueOnError)
	cf.register(flags)
	if ok, code := cmd.ParseFlags(flags, prog, args, "granules.txt", stderr); !ok {
		return code
	} else if flags.NArg() != 1 {
		err = fmt.Errorf("usage: %s [options] granules.txt", prog)
		return 2
	}
	if err = cf.checkFormat(); err != nil {
		return 2
	}
	ctx, cancel, client, err := cf.newClient(stdin, stderr)
	if err != nil {
		return 1
	}
	defer cancel()

	result, err := client.IngestGranuleTextFile(ctx, flags.Arg(0))
	if result == nil {
		return 1
	}
	report := &batchReport{
		Succeeded: result.Succeeded,
		Total:     result.Total,
		Summary:   result.Summary(),
	}
	for _, entry := range result.Log {
		report.Log = append(report.Log, entry.String())
	}
	if werr := writeOutput(stdout, cf.Format, report); werr != nil {
		err = errors.Join(err, werr)
	}
	if err != nil || result.Succeeded < result.Total {
		return 1
	}
	return 0
}
