// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocmr/cmr/sdk/go/ctxlog"
	"github.com/sirupsen/logrus"
)

type granuleDoc struct {
	XMLName    xml.Name `xml:"Granule"`
	GranuleUR  string   `xml:"GranuleUR"`
	InsertTime string   `xml:"InsertTime"`
	LastUpdate string   `xml:"LastUpdate"`
	DataSetID  string   `xml:"Collection>DataSetId"`
	Orderable  string   `xml:"Orderable"`
}

// GranuleXML returns a minimal granule document built from a flat
// record with keys granule_name, start_date, and ds_short_name.
func GranuleXML(rec map[string]string) ([]byte, error) {
	for _, key := range []string{"granule_name", "start_date", "ds_short_name"} {
		if _, ok := rec[key]; !ok {
			return nil, fmt.Errorf("%w: record has no %q field", ErrInvalidArgument, key)
		}
	}
	return xml.Marshal(granuleDoc{
		GranuleUR:  rec["granule_name"],
		InsertTime: rec["start_date"],
		LastUpdate: rec["start_date"],
		DataSetID:  rec["ds_short_name"],
		Orderable:  "true",
	})
}

// ReadGranuleRecords reads comma-separated records. The first row
// names the fields.
func ReadGranuleRecords(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	var recs []map[string]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return recs, nil
		} else if err != nil {
			return nil, err
		}
		rec := make(map[string]string, len(header))
		for i, v := range row {
			rec[header[i]] = strings.TrimSpace(v)
		}
		recs = append(recs, rec)
	}
}

// BatchEntry reports what happened to one record of a batch.
type BatchEntry struct {
	Identity string
	Outcome  IngestOutcome
	Err      error
}

// Failed reports whether the record was not ingested.
func (e BatchEntry) Failed() bool {
	return e.Err != nil || e.Outcome.StatusCode >= 400
}

func (e BatchEntry) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: error: %s", e.Identity, e.Err)
	}
	return fmt.Sprintf("%s: %s %d: %s", e.Identity, e.Outcome.Stage, e.Outcome.StatusCode, e.Outcome.Body)
}

// BatchResult is the result of a batch ingest. Log has one entry per
// input record, in input order.
type BatchResult struct {
	Log       []BatchEntry
	Succeeded int
	Total     int
}

// Summary returns a one-line tally, e.g., "3 successful ingestion out
// of 5".
func (br *BatchResult) Summary() string {
	return fmt.Sprintf("%d successful ingestion out of %d", br.Succeeded, br.Total)
}

// IngestGranuleRecords ingests one granule per record (see
// GranuleXML). A failed record is counted and logged, and the batch
// continues. Only cancellation of ctx stops the batch early, in which
// case the partial result is returned along with ctx's error.
func (c *Client) IngestGranuleRecords(ctx context.Context, recs []map[string]string) (*BatchResult, error) {
	logger := ctxlog.FromContext(ctx)
	result := &BatchResult{Total: len(recs)}
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entry := BatchEntry{Identity: rec["granule_name"]}
		doc, err := GranuleXML(rec)
		if err != nil {
			entry.Err = err
		} else {
			entry.Outcome, entry.Err = c.Ingest(ctx, IngestRequest{
				Concept:  KindGranule,
				Op:       OpCreate,
				Identity: entry.Identity,
				Payload:  doc,
			})
		}
		result.Log = append(result.Log, entry)
		if entry.Failed() {
			entryLogger := logger.WithFields(logrus.Fields{
				"Record":     i + 1,
				"Identity":   entry.Identity,
				"StatusCode": entry.Outcome.StatusCode,
			})
			if entry.Err != nil {
				entryLogger = entryLogger.WithError(entry.Err)
			}
			entryLogger.Warn("granule ingest failed")
		} else {
			result.Succeeded++
		}
	}
	logger.Info(result.Summary())
	return result, nil
}

// IngestGranuleTextFile reads granule records from a comma-separated
// file (see ReadGranuleRecords) and ingests them.
func (c *Client) IngestGranuleTextFile(ctx context.Context, path string) (*BatchResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ReadGranuleRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c.IngestGranuleRecords(ctx, recs)
}
