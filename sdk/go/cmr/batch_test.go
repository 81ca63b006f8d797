// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocmr/cmr/sdk/go/cmr"
	check "gopkg.in/check.v1"
)

func (s *clientSuite) TestGranuleXML(c *check.C) {
	doc, err := cmr.GranuleXML(map[string]string{
		"granule_name":  "AIRS.2016.01.01.L3",
		"start_date":    "2016-01-01T00:00:00Z",
		"ds_short_name": "AIRX3STD",
		"ignored":       "x",
	})
	c.Assert(err, check.IsNil)
	c.Check(string(doc), check.Equals, `<Granule>`+
		`<GranuleUR>AIRS.2016.01.01.L3</GranuleUR>`+
		`<InsertTime>2016-01-01T00:00:00Z</InsertTime>`+
		`<LastUpdate>2016-01-01T00:00:00Z</LastUpdate>`+
		`<Collection><DataSetId>AIRX3STD</DataSetId></Collection>`+
		`<Orderable>true</Orderable>`+
		`</Granule>`)
	ur, err := cmr.GranuleUR(doc)
	c.Check(err, check.IsNil)
	c.Check(ur, check.Equals, "AIRS.2016.01.01.L3")

	_, err = cmr.GranuleXML(map[string]string{"granule_name": "g", "start_date": "2016-01-01"})
	c.Check(errors.Is(err, cmr.ErrInvalidArgument), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*"ds_short_name".*`)
}

func (s *clientSuite) TestReadGranuleRecords(c *check.C) {
	recs, err := cmr.ReadGranuleRecords(strings.NewReader("granule_name, start_date, ds_short_name\n" +
		"# comment\n" +
		"g1, 2016-01-01, AIRX3STD\n" +
		"\n" +
		"g2,2016-01-02,AIRX3STD\n"))
	c.Assert(err, check.IsNil)
	c.Check(recs, check.DeepEquals, []map[string]string{
		{"granule_name": "g1", "start_date": "2016-01-01", "ds_short_name": "AIRX3STD"},
		{"granule_name": "g2", "start_date": "2016-01-02", "ds_short_name": "AIRX3STD"},
	})

	_, err = cmr.ReadGranuleRecords(strings.NewReader("granule_name,start_date\ng1\n"))
	c.Check(err, check.NotNil)

	recs, err = cmr.ReadGranuleRecords(strings.NewReader(""))
	c.Check(err, check.IsNil)
	c.Check(recs, check.HasLen, 0)
}

func (s *clientSuite) TestBatchTally(c *check.C) {
	client := s.newClient(c)
	var recs []map[string]string
	for _, name := range []string{"g1", "g2", "g3", "g4", "g5"} {
		recs = append(recs, map[string]string{
			"granule_name":  name,
			"start_date":    "2016-01-01T00:00:00Z",
			"ds_short_name": "AIRX3STD",
		})
	}
	s.stub.ValidationStatus["g2"] = 422
	s.stub.CommitStatus["g4"] = 409
	result, err := client.IngestGranuleRecords(s.ctx, recs)
	c.Assert(err, check.IsNil)
	c.Check(result.Summary(), check.Equals, "3 successful ingestion out of 5")
	c.Check(result.Succeeded, check.Equals, 3)
	c.Check(result.Total, check.Equals, 5)
	c.Assert(result.Log, check.HasLen, 5)
	for i, entry := range result.Log {
		c.Check(entry.Identity, check.Equals, recs[i]["granule_name"])
		c.Check(entry.Failed(), check.Equals, i == 1 || i == 3)
	}
	c.Check(result.Log[1].Outcome.Stage, check.Equals, cmr.StageValidate)
	c.Check(result.Log[3].Outcome.Stage, check.Equals, cmr.StageCommit)
	c.Check(result.Log[3].String(), check.Matches, `g4: commit 409: .*`)
	c.Check(s.stub.Count("PUT", "/ingest/providers/PROV1/granules/"), check.Equals, 4)
}

func (s *clientSuite) TestBatchTwoValidationFailures(c *check.C) {
	client := s.newClient(c)
	var recs []map[string]string
	for _, name := range []string{"G1", "G2", "G3", "G4", "G5"} {
		recs = append(recs, map[string]string{
			"granule_name":  name,
			"start_date":    "2020-01-01",
			"ds_short_name": "DS1",
		})
	}
	s.stub.ValidationStatus["G2"] = 422
	s.stub.ValidationStatus["G5"] = 422
	result, err := client.IngestGranuleRecords(s.ctx, recs)
	c.Assert(err, check.IsNil)
	c.Check(result.Summary(), check.Equals, "3 successful ingestion out of 5")
	c.Assert(result.Log, check.HasLen, 5)
	for _, i := range []int{1, 4} {
		c.Check(result.Log[i].Outcome.Stage, check.Equals, cmr.StageValidate)
		c.Check(result.Log[i].Outcome.State, check.Equals, cmr.StateFailed)
		c.Check(result.Log[i].Outcome.StatusCode, check.Equals, 422)
	}
	c.Check(s.stub.Count("PUT", "/ingest/providers/PROV1/granules/G2"), check.Equals, 0)
	c.Check(s.stub.Count("PUT", "/ingest/providers/PROV1/granules/G5"), check.Equals, 0)
	c.Check(s.stub.Count("PUT", "/ingest/providers/PROV1/granules/"), check.Equals, 3)
}

func (s *clientSuite) TestBatchBadRecordDoesNotAbort(c *check.C) {
	client := s.newClient(c)
	result, err := client.IngestGranuleRecords(s.ctx, []map[string]string{
		{"granule_name": "g1", "start_date": "2016-01-01"},
		{"granule_name": "g2", "start_date": "2016-01-01", "ds_short_name": "AIRX3STD"},
	})
	c.Assert(err, check.IsNil)
	c.Check(result.Summary(), check.Equals, "1 successful ingestion out of 2")
	c.Check(result.Log[0].Err, check.NotNil)
}

func (s *clientSuite) TestBatchTextFile(c *check.C) {
	client := s.newClient(c)
	fnm := filepath.Join(c.MkDir(), "granules.txt")
	err := os.WriteFile(fnm, []byte("granule_name,start_date,ds_short_name\n"+
		"g1,2016-01-01T00:00:00Z,AIRX3STD\n"+
		"g2,2016-01-02T00:00:00Z,AIRX3STD\n"), 0644)
	c.Assert(err, check.IsNil)
	result, err := client.IngestGranuleTextFile(s.ctx, fnm)
	c.Assert(err, check.IsNil)
	c.Check(result.Summary(), check.Equals, "2 successful ingestion out of 2")

	_, err = client.IngestGranuleTextFile(s.ctx, filepath.Join(c.MkDir(), "missing.txt"))
	c.Check(errors.Is(err, os.ErrNotExist), check.Equals, true)
}
