// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/gocmr/cmr/lib/cmd"
	"github.com/gocmr/cmr/sdk/go/cmr"
	"rsc.io/getopt"
)

var (
	SearchGranules    = searchCommand{kind: cmr.KindGranule}
	SearchCollections = searchCommand{kind: cmr.KindCollection}
)

type searchCommand struct {
	kind cmr.Kind
}

type granuleSummary struct {
	GranuleUR   string `json:"granule_ur"`
	DownloadURL string `json:"download_url,omitempty"`
	OPeNDAPURL  string `json:"opendap_url,omitempty"`
}

type collectionSummary struct {
	ShortName        string `json:"short_name"`
	DatasetID        string `json:"dataset_id"`
	ConceptID        string `json:"concept_id,omitempty"`
	ServiceAccessURL string `json:"service_access_url,omitempty"`
	OPeNDAPURL       string `json:"opendap_url,omitempty"`
}

type searchResult struct {
	Granules    []granuleSummary    `json:"granules,omitempty"`
	Collections []collectionSummary `json:"collections,omitempty"`
}

func (sr *searchResult) writeText(w io.Writer) error {
	for _, g := range sr.Granules {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", g.GranuleUR, g.DownloadURL, g.OPeNDAPURL); err != nil {
			return err
		}
	}
	for _, c := range sr.Collections {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ShortName, c.DatasetID, c.ConceptID, c.ServiceAccessURL); err != nil {
			return err
		}
	}
	return nil
}

func (sc searchCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()

	var cf clientFlags
	flags := getopt.NewFlagSet(prog, flag.ContinueOnError)
	cf.register(flags)
	limit := flags.Int("limit", 100, "maximum number of records to return")
	flags.Alias("n", "limit")
	if ok, code := cmd.ParseFlags(flags, prog, args, "key=value ...", stderr); !ok {
		return code
	}
	if err = cf.checkFormat(); err != nil {
		return 2
	}
	params, err := parseParams(flags.Args())
	if err != nil {
		return 2
	}
	ctx, cancel, client, err := cf.newClient(stdin, stderr)
	if err != nil {
		return 1
	}
	defer cancel()

	q := cmr.SearchQuery{Kind: sc.kind, Params: params, Limit: *limit}
	var result searchResult
	switch sc.kind {
	case cmr.KindGranule:
		var granules []*cmr.Granule
		granules, err = client.SearchGranules(ctx, q)
		for _, g := range granules {
			result.Granules = append(result.Granules, granuleSummary{
				GranuleUR:   g.GranuleUR(),
				DownloadURL: g.DownloadURL(),
				OPeNDAPURL:  g.OPeNDAPURL(),
			})
		}
	default:
		var colls []*cmr.Collection
		colls, err = client.SearchCollections(ctx, q)
		for _, c := range colls {
			result.Collections = append(result.Collections, collectionSummary{
				ShortName:        c.ShortName(),
				DatasetID:        c.DatasetID(),
				ConceptID:        c.ConceptID(),
				ServiceAccessURL: c.ServiceAccessURL(),
				OPeNDAPURL:       c.OPeNDAPURL(),
			})
		}
	}
	if err != nil {
		return 1
	}
	if err = writeOutput(stdout, cf.Format, &result); err != nil {
		return 1
	}
	return 0
}
