// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gocmr/cmr/sdk/go/cmr"
	"github.com/gocmr/cmr/sdk/go/cmrtest"
	"github.com/gocmr/cmr/sdk/go/ctxlog"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&clientSuite{})

type clientSuite struct {
	stub *cmrtest.Server
	ctx  context.Context
}

func (s *clientSuite) SetUpTest(c *check.C) {
	s.stub = cmrtest.NewServer()
	s.ctx = ctxlog.Context(context.Background(), ctxlog.TestLogger(c))
}

func (s *clientSuite) TearDownTest(c *check.C) {
	s.stub.Close()
}

func (s *clientSuite) newClient(c *check.C) *cmr.Client {
	client, err := cmr.NewClientFromConfig(s.ctx, s.stub.Config(), nil)
	c.Assert(err, check.IsNil)
	return client
}

type memSaver struct {
	sync.Mutex
	saved []string
	err   error
}

func (ms *memSaver) SaveToken(token string) error {
	ms.Lock()
	defer ms.Unlock()
	ms.saved = append(ms.saved, token)
	return ms.err
}

func (s *clientSuite) TestAuthenticateAtConstruction(c *check.C) {
	saver := &memSaver{}
	client, err := cmr.NewClientFromConfig(s.ctx, s.stub.Config(), saver)
	c.Assert(err, check.IsNil)
	c.Check(client.Session.Token(), check.Equals, "token-1")
	c.Check(saver.saved, check.DeepEquals, []string{"token-1"})

	reqs := s.stub.Requests()
	c.Assert(reqs, check.HasLen, 1)
	c.Check(reqs[0].Body, check.Matches, `<token><username>testuser</username><password>testpass</password><client_id>cmr-test</client_id><user_ip_address>127.0.0.1</user_ip_address><provider>PROV1</provider></token>`)
}

func (s *clientSuite) TestExistingTokenNotReplaced(c *check.C) {
	cfg := s.stub.Config()
	cfg.Ingest.EchoToken = s.stub.IssueToken()
	client, err := cmr.NewClientFromConfig(s.ctx, cfg, nil)
	c.Assert(err, check.IsNil)
	c.Check(client.Session.Token(), check.Equals, cfg.Ingest.EchoToken)
	c.Check(s.stub.Requests(), check.HasLen, 0)
}

func (s *clientSuite) TestAuthenticateFailure(c *check.C) {
	cfg := s.stub.Config()
	cfg.Credentials.Password = "wrong"
	_, err := cmr.NewClientFromConfig(s.ctx, cfg, nil)
	var ae *cmr.AuthError
	c.Assert(errors.As(err, &ae), check.Equals, true)
	c.Check(ae.StatusCode, check.Equals, 401)

	client := s.newClient(c)
	s.stub.MalformedToken = true
	_, err = client.Refresh(s.ctx)
	c.Assert(errors.As(err, &ae), check.Equals, true)
	c.Check(ae.Err, check.ErrorMatches, `no token id in response`)
	// session keeps the old token after a failed refresh
	c.Check(client.Session.Token(), check.Equals, "token-1")
}

func (s *clientSuite) TestRefreshThenNotExpired(c *check.C) {
	client := s.newClient(c)
	expired, err := client.IsExpired(s.ctx)
	c.Check(err, check.IsNil)
	c.Check(expired, check.Equals, false)

	s.stub.Expire()
	expired, err = client.IsExpired(s.ctx)
	c.Check(err, check.IsNil)
	c.Check(expired, check.Equals, true)

	token, err := client.Refresh(s.ctx)
	c.Assert(err, check.IsNil)
	c.Check(token, check.Equals, "token-2")
	c.Check(client.Session.Token(), check.Equals, "token-2")
	expired, err = client.IsExpired(s.ctx)
	c.Check(err, check.IsNil)
	c.Check(expired, check.Equals, false)

	probes := 0
	for _, req := range s.stub.Requests() {
		if req.Method == "PUT" && req.Path == "/ingest/providers/PROV1/collections/LarcDatasetId" {
			probes++
			c.Check(req.Body, check.Equals, "")
		}
	}
	c.Check(probes, check.Equals, 3)
}

func (s *clientSuite) TestStaleRefreshSkipped(c *check.C) {
	client := s.newClient(c)
	gen := client.Session.Generation()
	_, err := client.Refresh(s.ctx)
	c.Assert(err, check.IsNil)
	c.Check(s.stub.TokensIssued(), check.Equals, 2)

	// a caller that observed the old generation gets the current
	// token without another authentication
	token, err := client.RefreshFrom(s.ctx, gen)
	c.Check(err, check.IsNil)
	c.Check(token, check.Equals, "token-2")
	c.Check(s.stub.TokensIssued(), check.Equals, 2)

	gen = client.Session.Generation()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := client.RefreshFrom(s.ctx, gen)
			c.Check(err, check.IsNil)
			c.Check(token, check.Equals, "token-3")
		}()
	}
	wg.Wait()
	c.Check(s.stub.TokensIssued(), check.Equals, 3)
}

// A caller that gives up on a shared refresh does not spoil it for the
// callers still waiting.
func (s *clientSuite) TestRefreshSurvivesCancelledCaller(c *check.C) {
	client := s.newClient(c)
	gen := client.Session.Generation()
	s.stub.TokenGate = make(chan struct{})

	ctx, cancel := context.WithCancel(s.ctx)
	first := make(chan error, 1)
	go func() {
		_, err := client.RefreshFrom(ctx, gen)
		first <- err
	}()
	for deadline := time.Now().Add(10 * time.Second); s.stub.Count("POST", "/legacy-services/rest/tokens") < 2; time.Sleep(time.Millisecond) {
		c.Assert(time.Now().Before(deadline), check.Equals, true, check.Commentf("token request not sent"))
	}
	cancel()
	c.Check(errors.Is(<-first, context.Canceled), check.Equals, true)

	second := make(chan error, 1)
	var token string
	go func() {
		var err error
		token, err = client.RefreshFrom(s.ctx, gen)
		second <- err
	}()
	close(s.stub.TokenGate)
	c.Check(<-second, check.IsNil)
	c.Check(token, check.Equals, "token-2")
	c.Check(client.Session.Token(), check.Equals, "token-2")
	c.Check(s.stub.TokensIssued(), check.Equals, 2)
}

func (s *clientSuite) TestSaveFailureIsNotFatal(c *check.C) {
	saver := &memSaver{err: errors.New("read-only file system")}
	client, err := cmr.NewClientFromConfig(s.ctx, s.stub.Config(), saver)
	c.Assert(err, check.IsNil)
	c.Check(client.Session.Token(), check.Equals, "token-1")
	c.Check(saver.saved, check.HasLen, 1)
}

func (s *clientSuite) TestSearchGranulePageCounts(c *check.C) {
	s.stub.AddGranules("AIRX3STD", 130)
	client := s.newClient(c)
	for _, trial := range []struct {
		limit   int
		pages   int
		records int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{50, 1, 50},
		{51, 2, 51},
		{100, 2, 100},
		{120, 3, 120},
		{200, 4, 130},
	} {
		before := s.stub.Count("GET", "/search/granules.echo10")
		granules, err := client.SearchGranules(s.ctx, cmr.SearchQuery{
			Kind:   cmr.KindGranule,
			Params: map[string]string{"short_name": "AIRX3STD"},
			Limit:  trial.limit,
		})
		comment := check.Commentf("limit %d", trial.limit)
		c.Assert(err, check.IsNil, comment)
		c.Check(s.stub.Count("GET", "/search/granules.echo10")-before, check.Equals, trial.pages, comment)
		c.Assert(granules, check.HasLen, trial.records, comment)
		for i, g := range granules {
			c.Check(g.GranuleUR(), check.Equals, fmt.Sprintf("AIRX3STD-%d", i+1), comment)
		}
	}
	for _, req := range s.stub.Requests() {
		if req.Method == "GET" {
			c.Check(req.ClientID, check.Equals, cmrtest.ClientID)
			c.Check(req.RawQuery, check.Matches, `page_size=50&page_num=\d&short_name=AIRX3STD`)
		}
	}
}

func (s *clientSuite) TestSearchGranulesConcurrent(c *check.C) {
	s.stub.AddGranules("AIRX3STM", 260)
	client := s.newClient(c)
	client.SearchConcurrency = 4
	granules, err := client.SearchGranules(s.ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: 240})
	c.Assert(err, check.IsNil)
	c.Assert(granules, check.HasLen, 240)
	for i, g := range granules {
		c.Check(g.GranuleUR(), check.Equals, fmt.Sprintf("AIRX3STM-%d", i+1))
	}
	c.Check(s.stub.Count("GET", "/search/granules.echo10"), check.Equals, 5)
}

func (s *clientSuite) TestSearchErrorDocumentStopsSearch(c *check.C) {
	s.stub.AddGranules("AIRX3STD", 130)
	s.stub.SearchErrors = []string{"Parameter [foo] was not recognized."}
	client := s.newClient(c)
	client.SearchConcurrency = 4
	_, err := client.SearchGranules(s.ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: 120})
	var se *cmr.ServiceError
	c.Assert(errors.As(err, &se), check.Equals, true)
	c.Check(se.StatusCode, check.Equals, 400)
	c.Check(se.Errors, check.DeepEquals, []string{"Parameter [foo] was not recognized."})
	c.Check(s.stub.Count("GET", "/search/"), check.Equals, 1)

	_, err = client.SearchCollections(s.ctx, cmr.SearchQuery{Kind: cmr.KindCollection, Limit: 120})
	c.Assert(errors.As(err, &se), check.Equals, true)
	c.Check(se.Errors, check.DeepEquals, []string{"Parameter [foo] was not recognized."})
	c.Check(s.stub.Count("GET", "/search/"), check.Equals, 2)
}

func (s *clientSuite) TestSearchLimits(c *check.C) {
	s.stub.AddGranules("AIRX3STD", 3)
	client := s.newClient(c)
	for _, limit := range []int{-1, cmr.MaxLimit + 1, math.MaxInt} {
		_, err := client.SearchGranules(s.ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: limit})
		c.Check(errors.Is(err, cmr.ErrInvalidArgument), check.Equals, true, check.Commentf("limit %d", limit))
		_, err = client.SearchCollections(s.ctx, cmr.SearchQuery{Kind: cmr.KindCollection, Limit: limit})
		c.Check(errors.Is(err, cmr.ErrInvalidArgument), check.Equals, true, check.Commentf("limit %d", limit))
	}
	_, err := client.Search(s.ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: math.MaxInt})
	c.Check(errors.Is(err, cmr.ErrInvalidArgument), check.Equals, true)
	_, err = client.Search(s.ctx, cmr.SearchQuery{Kind: "service", Limit: 1})
	c.Check(errors.Is(err, cmr.ErrInvalidArgument), check.Equals, true)
	recs, err := client.Search(s.ctx, cmr.SearchQuery{Kind: cmr.KindCollection})
	c.Check(err, check.IsNil)
	c.Check(recs, check.HasLen, 0)
	c.Check(s.stub.Count("GET", "/search/"), check.Equals, 0)
}

func (s *clientSuite) TestSearchCancelled(c *check.C) {
	s.stub.AddGranules("AIRX3STD", 130)
	client := s.newClient(c)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := client.SearchGranules(ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: 120})
	c.Check(errors.Is(err, context.Canceled), check.Equals, true)
	c.Check(s.stub.Count("GET", "/search/"), check.Equals, 0)
}

// cancelAfterFirstPage returns a search client that cancels the
// returned context once the first page has been read in full.
func cancelAfterFirstPage(ctx context.Context) (*http.Client, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := http.DefaultTransport.RoundTrip(req)
		if err != nil || req.URL.Query().Get("page_num") != "1" {
			return resp, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		cancel()
		return resp, nil
	})}, ctx
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func (s *clientSuite) TestSearchCancelledAfterFirstPage(c *check.C) {
	s.stub.AddGranules("AIRX3STD", 200)
	for _, concurrency := range []int{1, 4} {
		comment := check.Commentf("concurrency %d", concurrency)
		client := s.newClient(c)
		client.SearchConcurrency = concurrency
		var ctx context.Context
		client.SearchClient, ctx = cancelAfterFirstPage(s.ctx)
		before := s.stub.Count("GET", "/search/")
		_, err := client.SearchGranules(ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: 200})
		c.Check(errors.Is(err, context.Canceled), check.Equals, true, comment)
		c.Check(s.stub.Count("GET", "/search/")-before, check.Equals, 1, comment)
	}
}

func (s *clientSuite) TestSearchGenericGranules(c *check.C) {
	s.stub.AddGranules("AIRX3STD", 60)
	client := s.newClient(c)
	recs, err := client.Search(s.ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: 55})
	c.Assert(err, check.IsNil)
	c.Assert(recs, check.HasLen, 55)
	c.Check(s.stub.Count("GET", "/search/granules.echo10"), check.Equals, 2)
	for i, rec := range recs {
		c.Check(rec.Kind(), check.Equals, cmr.KindGranule)
		c.Check(rec.Identity(), check.Equals, fmt.Sprintf("AIRX3STD-%d", i+1))
	}
	g, ok := recs[54].(*cmr.Granule)
	c.Assert(ok, check.Equals, true)
	c.Check(g.OPeNDAPURL(), check.Equals, "https://data.example.com/opendap/AIRX3STD/AIRX3STD-55.hdf")
}

func (s *clientSuite) TestSearchCollections(c *check.C) {
	s.stub.AddCollections("AIRS", 3)
	client := s.newClient(c)
	colls, err := client.SearchCollections(s.ctx, cmr.SearchQuery{Kind: cmr.KindCollection, Limit: 100})
	c.Assert(err, check.IsNil)
	c.Assert(colls, check.HasLen, 3)
	for i, coll := range colls {
		c.Check(coll.ShortName(), check.Equals, fmt.Sprintf("AIRS-%d", i+1))
		c.Check(coll.DatasetID(), check.Equals, fmt.Sprintf("AIRS dataset %d", i+1))
		c.Check(coll.ServiceAccessURL(), check.Equals, fmt.Sprintf("%s/search/concepts/C%d-PROV1", s.stub.URL, i+1))
		c.Check(coll.OPeNDAPURL(), check.Equals, fmt.Sprintf("https://opendap.example.com/opendap/AIRS-%d/", i+1))
	}

	recs, err := client.Search(s.ctx, cmr.SearchQuery{Kind: cmr.KindCollection, Limit: 2})
	c.Assert(err, check.IsNil)
	c.Assert(recs, check.HasLen, 2)
	c.Check(recs[1].Identity(), check.Equals, "AIRS dataset 2")
}

func (s *clientSuite) TestSearchCollectionsLengthMismatch(c *check.C) {
	s.stub.AddCollections("AIRS", 3)
	s.stub.TruncateReferences = 2
	client := s.newClient(c)
	_, err := client.SearchCollections(s.ctx, cmr.SearchQuery{Kind: cmr.KindCollection, Limit: 100})
	var pe *cmr.ProtocolError
	c.Assert(errors.As(err, &pe), check.Equals, true)
	c.Check(pe.Detail, check.Matches, `metadata search returned 3 collections but location search returned 2`)
}

func (s *clientSuite) TestSearchRetries(c *check.C) {
	s.stub.AddGranules("AIRX3STD", 10)
	cfg := s.stub.Config()
	cfg.Client.Retries = 2
	client, err := cmr.NewClientFromConfig(s.ctx, cfg, nil)
	c.Assert(err, check.IsNil)
	s.stub.SearchFailures = 2
	granules, err := client.SearchGranules(s.ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: 10})
	c.Check(err, check.IsNil)
	c.Check(granules, check.HasLen, 10)
	c.Check(s.stub.Count("GET", "/search/"), check.Equals, 3)

	client = s.newClient(c)
	s.stub.SearchFailures = 1
	_, err = client.SearchGranules(s.ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: 10})
	var se *cmr.ServiceError
	c.Assert(errors.As(err, &se), check.Equals, true)
	c.Check(se.StatusCode, check.Equals, 503)
}

func (s *clientSuite) TestMetrics(c *check.C) {
	s.stub.AddGranules("AIRX3STD", 60)
	client := s.newClient(c)
	reg := prometheus.NewRegistry()
	client.Metrics = cmr.NewMetrics(reg)
	_, err := client.SearchGranules(s.ctx, cmr.SearchQuery{Kind: cmr.KindGranule, Limit: 60})
	c.Assert(err, check.IsNil)
	s.stub.Expire()
	_, err = client.IsExpired(s.ctx)
	c.Assert(err, check.IsNil)

	mfs, err := reg.Gather()
	c.Assert(err, check.IsNil)
	found := counterValues(mfs)
	c.Check(found["cmr_client_requests,code=200,operation=search_granules"], check.Equals, 2.0)
	c.Check(found["cmr_client_requests,code=401,operation=expiry_probe"], check.Equals, 1.0)
	c.Check(found["cmr_client_expiry_probes,result=expired"], check.Equals, 1.0)
}

// counterValues returns the value of each counter, keyed by metric
// name followed by ",label=value" pairs.
func counterValues(mfs []*dto.MetricFamily) map[string]float64 {
	found := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			found[key] = m.GetCounter().GetValue()
		}
	}
	return found
}

const granuleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<Granule>
  <GranuleUR>AIRS.2016.01.01.L3.RetStd001.v6.0.9.0.G16002180906.hdf</GranuleUR>
  <InsertTime>2016-01-02T18:09:06Z</InsertTime>
  <LastUpdate>2016-01-02T18:09:06Z</LastUpdate>
  <Collection><DataSetId>AIRX3STD</DataSetId></Collection>
  <Orderable>true</Orderable>
</Granule>`

const collectionDoc = `<?xml version="1.0" encoding="UTF-8"?>
<Collection>
  <ShortName>AIRX3STD</ShortName>
  <VersionId>006</VersionId>
  <DataSetId>AIRS/Aqua L3 Daily Standard Physical Retrieval V006</DataSetId>
</Collection>`

func (s *clientSuite) TestIngestValidationFailureSkipsCommit(c *check.C) {
	client := s.newClient(c)
	s.stub.ValidationStatus["AIRS.2016.01.01.L3.RetStd001.v6.0.9.0.G16002180906.hdf"] = 422
	outcome, err := client.IngestGranule(s.ctx, []byte(granuleDoc))
	c.Assert(err, check.IsNil)
	c.Check(outcome.Stage, check.Equals, cmr.StageValidate)
	c.Check(outcome.State, check.Equals, cmr.StateFailed)
	c.Check(outcome.StatusCode, check.Equals, 422)
	c.Check(outcome.Failed(), check.Equals, true)
	c.Check(outcome.Body, check.Matches, `.*failed validation.*`)
	c.Check(s.stub.Count("PUT", "/ingest/"), check.Equals, 0)
}

func (s *clientSuite) TestIngestRefreshesExpiredToken(c *check.C) {
	client := s.newClient(c)
	s.stub.Expire()
	outcome, err := client.IngestGranule(s.ctx, []byte(granuleDoc))
	c.Assert(err, check.IsNil)
	c.Check(outcome.Stage, check.Equals, cmr.StageCommit)
	c.Check(outcome.State, check.Equals, cmr.StateDone)
	c.Check(outcome.StatusCode, check.Equals, 201)
	c.Check(outcome.Failed(), check.Equals, false)
	c.Check(s.stub.TokensIssued(), check.Equals, 2)

	var methods []string
	for _, req := range s.stub.Requests() {
		methods = append(methods, req.Method+" "+req.Path)
		if req.Path == "/ingest/providers/PROV1/granules/AIRS.2016.01.01.L3.RetStd001.v6.0.9.0.G16002180906.hdf" {
			c.Check(req.EchoToken, check.Equals, "token-2")
			c.Check(req.Body, check.Equals, granuleDoc)
		}
	}
	c.Check(methods, check.DeepEquals, []string{
		"POST /legacy-services/rest/tokens",
		"POST /ingest/providers/PROV1/validate/granule/AIRS.2016.01.01.L3.RetStd001.v6.0.9.0.G16002180906.hdf",
		"PUT /ingest/providers/PROV1/collections/LarcDatasetId",
		"POST /legacy-services/rest/tokens",
		"PUT /ingest/providers/PROV1/granules/AIRS.2016.01.01.L3.RetStd001.v6.0.9.0.G16002180906.hdf",
	})
}

func (s *clientSuite) TestIngestCollectionFile(c *check.C) {
	client := s.newClient(c)
	fnm := filepath.Join(c.MkDir(), "collection.xml")
	c.Assert(os.WriteFile(fnm, []byte(collectionDoc), 0644), check.IsNil)
	outcome, err := client.IngestCollectionFile(s.ctx, fnm)
	c.Assert(err, check.IsNil)
	c.Check(outcome.State, check.Equals, cmr.StateDone)
	c.Check(outcome.StatusCode, check.Equals, 201)
	c.Check(s.stub.Count("PUT", "/ingest/providers/PROV1/collections/AIRS/Aqua L3 Daily Standard Physical Retrieval V006"), check.Equals, 1)
	c.Check(s.stub.Count("POST", "/ingest/providers/PROV1/validate/collection/"), check.Equals, 1)

	outcome, err = client.UpdateCollection(s.ctx, []byte(collectionDoc))
	c.Assert(err, check.IsNil)
	c.Check(outcome.State, check.Equals, cmr.StateDone)

	_, err = client.IngestCollection(s.ctx, []byte(`<Collection><ShortName>x</ShortName></Collection>`))
	c.Check(errors.Is(err, cmr.ErrInvalidArgument), check.Equals, true)
}

func (s *clientSuite) TestCommitFailureIsOutcome(c *check.C) {
	client := s.newClient(c)
	s.stub.CommitStatus["AIRS.2016.01.01.L3.RetStd001.v6.0.9.0.G16002180906.hdf"] = 409
	outcome, err := client.UpdateGranule(s.ctx, []byte(granuleDoc))
	c.Assert(err, check.IsNil)
	c.Check(outcome.Stage, check.Equals, cmr.StageCommit)
	c.Check(outcome.State, check.Equals, cmr.StateDone)
	c.Check(outcome.StatusCode, check.Equals, 409)
	c.Check(outcome.Failed(), check.Equals, true)
}

func (s *clientSuite) TestDelete(c *check.C) {
	client := s.newClient(c)
	outcome, err := client.DeleteCollection(s.ctx, "AIRS dataset 1")
	c.Assert(err, check.IsNil)
	c.Check(outcome.Stage, check.Equals, cmr.StageDelete)
	c.Check(outcome.StatusCode, check.Equals, 200)
	c.Check(outcome.Body, check.Matches, `.*<concept-id>C14-PROV1</concept-id>.*`)
	c.Check(s.stub.Count("DELETE", "/ingest/providers/PROV1/collections/AIRS dataset 1"), check.Equals, 1)
	c.Check(s.stub.Count("POST", "/ingest/providers/PROV1/validate/"), check.Equals, 0)

	s.stub.Expire()
	s.stub.CommitStatus["G1"] = 404
	outcome, err = client.DeleteGranule(s.ctx, "G1")
	c.Assert(err, check.IsNil)
	c.Check(outcome.StatusCode, check.Equals, 404)
	c.Check(outcome.Failed(), check.Equals, true)
	c.Check(s.stub.TokensIssued(), check.Equals, 2)

	_, err = client.DeleteGranule(s.ctx, "")
	c.Check(errors.Is(err, cmr.ErrInvalidArgument), check.Equals, true)
}
