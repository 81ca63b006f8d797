// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmrtest provides an in-process stand-in for the CMR search,
// ingest, and token services, for use in tests.
package cmrtest

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gocmr/cmr/sdk/go/cmr"
	"github.com/gorilla/mux"
)

const (
	Provider = "PROV1"
	Username = "testuser"
	Password = "testpass"
	ClientID = "cmr-test"
)

// GranuleFixture is a granule returned by granule searches.
type GranuleFixture struct {
	GranuleUR string
	DatasetID string
	URL       string
}

// CollectionFixture is a collection returned by collection searches.
type CollectionFixture struct {
	ShortName  string
	DatasetID  string
	ConceptID  string
	Location   string
	OPeNDAPURL string
}

// Request is a request received by the stub server.
type Request struct {
	Method    string
	Path      string
	RawQuery  string
	EchoToken string
	ClientID  string
	Body      string
}

// Server is a stub CMR service. Exported fields may be changed
// between requests, but not while requests are in progress.
type Server struct {
	Granules    []GranuleFixture
	Collections []CollectionFixture

	// If non-negative, collection location searches return at
	// most this many references in total.
	TruncateReferences int

	// If non-empty, every search returns an error document with
	// these messages.
	SearchErrors []string

	// Number of upcoming search requests to answer with 503.
	SearchFailures int

	// If true, the token endpoint responds 200 with no token id.
	MalformedToken bool

	// If non-nil, token requests are held until TokenGate is
	// closed.
	TokenGate chan struct{}

	// Response status for validation and commit requests, by
	// record identity. Missing entries mean success.
	ValidationStatus map[string]int
	CommitStatus     map[string]int

	URL string

	srv      *httptest.Server
	mtx      sync.Mutex
	tokens   map[string]bool
	issued   int
	requests []Request
}

// NewServer starts a stub server with no fixtures. Call Close when
// done.
func NewServer() *Server {
	s := &Server{
		TruncateReferences: -1,
		ValidationStatus:   map[string]int{},
		CommitStatus:       map[string]int{},
		tokens:             map[string]bool{},
	}
	rtr := mux.NewRouter()
	// identities may contain escaped slashes
	rtr.UseEncodedPath()
	rtr.Use(s.logRequest)
	rtr.HandleFunc("/legacy-services/rest/tokens", s.handleToken).Methods("POST")
	rtr.HandleFunc("/search/granules.echo10", s.handleGranuleMeta).Methods("GET")
	rtr.HandleFunc("/search/collections.json", s.handleCollectionMeta).Methods("GET")
	rtr.HandleFunc("/search/collections", s.handleCollectionRefs).Methods("GET")
	ingest := rtr.PathPrefix("/ingest/providers/{provider}").Subrouter()
	ingest.HandleFunc("/validate/{type:collection|granule}/{id}", s.handleValidate).Methods("POST")
	ingest.HandleFunc("/{types:collections|granules}/{id}", s.handleCommit).Methods("PUT")
	ingest.HandleFunc("/{types:collections|granules}/{id}", s.handleDelete).Methods("DELETE")
	s.srv = httptest.NewServer(rtr)
	s.URL = s.srv.URL
	return s
}

func (s *Server) Close() {
	s.srv.Close()
}

// Config returns a client configuration that points to the stub
// server. The configuration has no token.
func (s *Server) Config() *cmr.Config {
	page := "?page_size=50&page_num=%d"
	cfg := &cmr.Config{}
	cfg.Search.GranuleURL = s.URL + "/search/granules" + page
	cfg.Search.GranuleMetaURL = s.URL + "/search/granules.echo10" + page
	cfg.Search.CollectionURL = s.URL + "/search/collections" + page
	cfg.Search.CollectionMetaURL = s.URL + "/search/collections.json" + page
	cfg.Ingest.IngestURL = s.URL + "/ingest/providers/"
	cfg.Ingest.ContentType = "application/echo10+xml"
	cfg.Credentials.Provider = Provider
	cfg.Credentials.Username = Username
	cfg.Credentials.Password = Password
	cfg.Credentials.ClientID = ClientID
	cfg.Credentials.UserIPAddress = "127.0.0.1"
	cfg.Request.RequestTokenURL = s.URL + "/legacy-services/rest/tokens"
	return cfg
}

// AddGranules adds n granule fixtures named prefix-1, prefix-2, ...
func (s *Server) AddGranules(prefix string, n int) {
	for i := 1; i <= n; i++ {
		s.Granules = append(s.Granules, GranuleFixture{
			GranuleUR: fmt.Sprintf("%s-%d", prefix, i),
			DatasetID: prefix,
			URL:       fmt.Sprintf("https://data.example.com/data/%s/%s-%d.hdf", prefix, prefix, i),
		})
	}
}

// AddCollections adds n collection fixtures named prefix-1, prefix-2, ...
func (s *Server) AddCollections(prefix string, n int) {
	for i := 1; i <= n; i++ {
		s.Collections = append(s.Collections, CollectionFixture{
			ShortName:  fmt.Sprintf("%s-%d", prefix, i),
			DatasetID:  fmt.Sprintf("%s dataset %d", prefix, i),
			ConceptID:  fmt.Sprintf("C%d-%s", i, Provider),
			Location:   fmt.Sprintf("%s/search/concepts/C%d-%s", s.URL, i, Provider),
			OPeNDAPURL: fmt.Sprintf("https://opendap.example.com/opendap/%s-%d/", prefix, i),
		})
	}
}

// IssueToken returns a new valid token, as if the token endpoint had
// been called.
func (s *Server) IssueToken() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.issued++
	tok := "token-" + strconv.Itoa(s.issued)
	s.tokens[tok] = true
	return tok
}

// Expire invalidates every token issued so far.
func (s *Server) Expire() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.tokens = map[string]bool{}
}

// TokensIssued returns the number of tokens issued so far.
func (s *Server) TokensIssued() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.issued
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns the number of requests received so far with the
// given method and a path starting with pathPrefix.
func (s *Server) Count(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (s *Server) validToken(tok string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.tokens[tok]
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(strings.NewReader(string(body)))
		s.mtx.Lock()
		s.requests = append(s.requests, Request{
			Method:    req.Method,
			Path:      req.URL.Path,
			RawQuery:  req.URL.RawQuery,
			EchoToken: req.Header.Get("Echo-Token"),
			ClientID:  req.Header.Get("Client-Id"),
			Body:      string(body),
		})
		s.mtx.Unlock()
		next.ServeHTTP(w, req)
	})
}

func writeXMLErrors(w http.ResponseWriter, code int, msgs ...string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(code)
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><errors>`)
	for _, msg := range msgs {
		fmt.Fprint(w, "<error>")
		xml.EscapeText(w, []byte(msg))
		fmt.Fprint(w, "</error>")
	}
	fmt.Fprint(w, "</errors>")
}

type tokenRequest struct {
	Username      string `xml:"username"`
	Password      string `xml:"password"`
	ClientID      string `xml:"client_id"`
	UserIPAddress string `xml:"user_ip_address"`
	Provider      string `xml:"provider"`
}

func (s *Server) handleToken(w http.ResponseWriter, req *http.Request) {
	var tr tokenRequest
	if err := xml.NewDecoder(req.Body).Decode(&tr); err != nil {
		writeXMLErrors(w, http.StatusBadRequest, err.Error())
		return
	}
	if tr.Username != Username || tr.Password != Password || tr.Provider != Provider {
		writeXMLErrors(w, http.StatusUnauthorized, "Invalid username or password, please retry.")
		return
	}
	if s.TokenGate != nil {
		select {
		case <-s.TokenGate:
		case <-req.Context().Done():
			return
		}
	}
	if s.MalformedToken {
		fmt.Fprint(w, "token service unavailable")
		return
	}
	tok := s.IssueToken()
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><token><id>%s</id><username>%s</username><client_id>%s</client_id></token>`, tok, tr.Username, tr.ClientID)
}

// page returns the [start, end) indexes of the records on the
// requested page.
func page(req *http.Request, total int) (int, int) {
	size, err := strconv.Atoi(req.FormValue("page_size"))
	if err != nil || size < 1 {
		size = 10
	}
	num, err := strconv.Atoi(req.FormValue("page_num"))
	if err != nil || num < 1 {
		num = 1
	}
	start := (num - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}

func (s *Server) handleGranuleMeta(w http.ResponseWriter, req *http.Request) {
	if s.failSearch(w) {
		return
	}
	if len(s.SearchErrors) > 0 {
		writeXMLErrors(w, http.StatusBadRequest, s.SearchErrors...)
		return
	}
	start, end := page(req, len(s.Granules))
	w.Header().Set("Content-Type", "application/echo10+xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><results><hits>%d</hits><took>3</took>`, len(s.Granules))
	for i, g := range s.Granules[start:end] {
		fmt.Fprintf(w, `<result concept-id="G%d-%s" format="application/echo10+xml"><Granule>`, start+i+1, Provider)
		writeElement(w, "GranuleUR", g.GranuleUR)
		fmt.Fprint(w, "<Collection>")
		writeElement(w, "DataSetId", g.DatasetID)
		fmt.Fprint(w, "</Collection><OnlineAccessURLs><OnlineAccessURL>")
		writeElement(w, "URL", g.URL)
		fmt.Fprint(w, "</OnlineAccessURL></OnlineAccessURLs><Orderable>true</Orderable></Granule></result>")
	}
	fmt.Fprint(w, "</results>")
}

func (s *Server) failSearch(w http.ResponseWriter) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.SearchFailures <= 0 {
		return false
	}
	s.SearchFailures--
	http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
	return true
}

func writeElement(w io.Writer, name, value string) {
	fmt.Fprintf(w, "<%s>", name)
	xml.EscapeText(w, []byte(value))
	fmt.Fprintf(w, "</%s>", name)
}

func (s *Server) handleCollectionMeta(w http.ResponseWriter, req *http.Request) {
	if s.failSearch(w) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if len(s.SearchErrors) > 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"errors": s.SearchErrors})
		return
	}
	start, end := page(req, len(s.Collections))
	entries := []map[string]interface{}{}
	for _, c := range s.Collections[start:end] {
		entries = append(entries, map[string]interface{}{
			"id":         c.ConceptID,
			"short_name": c.ShortName,
			"dataset_id": c.DatasetID,
			"title":      c.DatasetID,
			"links": []map[string]string{
				{"rel": "http://esipfed.org/ns/fedsearch/1.1/data#", "href": "https://data.example.com/data/" + c.ShortName + "/"},
				{"rel": "http://esipfed.org/ns/fedsearch/1.1/service#", "title": "OPeNDAP access", "href": c.OPeNDAPURL},
			},
		})
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"feed": map[string]interface{}{
			"updated": "2016-03-01T00:00:00.000Z",
			"entry":   entries,
		},
	})
}

func (s *Server) handleCollectionRefs(w http.ResponseWriter, req *http.Request) {
	if s.failSearch(w) {
		return
	}
	if len(s.SearchErrors) > 0 {
		writeXMLErrors(w, http.StatusBadRequest, s.SearchErrors...)
		return
	}
	total := len(s.Collections)
	if s.TruncateReferences >= 0 && s.TruncateReferences < total {
		total = s.TruncateReferences
	}
	start, end := page(req, total)
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><results><hits>%d</hits><took>2</took><references>`, total)
	for _, c := range s.Collections[start:end] {
		fmt.Fprint(w, "<reference>")
		writeElement(w, "name", c.DatasetID)
		writeElement(w, "id", c.ConceptID)
		writeElement(w, "location", c.Location)
		writeElement(w, "revision-id", "1")
		fmt.Fprint(w, "</reference>")
	}
	fmt.Fprint(w, "</references></results>")
}

func (s *Server) checkToken(w http.ResponseWriter, req *http.Request) bool {
	tok := req.Header.Get("Echo-Token")
	if !s.validToken(tok) {
		writeXMLErrors(w, http.StatusUnauthorized, fmt.Sprintf("Token [%s] does not exist", tok))
		return false
	}
	return true
}

func (s *Server) handleValidate(w http.ResponseWriter, req *http.Request) {
	id := recordID(req)
	if code, ok := s.ValidationStatus[id]; ok && code >= 300 {
		writeXMLErrors(w, code, fmt.Sprintf("%s failed validation", id))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCommit(w http.ResponseWriter, req *http.Request) {
	if !s.checkToken(w, req) {
		return
	}
	body, _ := io.ReadAll(req.Body)
	if len(body) == 0 {
		writeXMLErrors(w, http.StatusBadRequest, "Request content is too short.")
		return
	}
	id := recordID(req)
	if code, ok := s.CommitStatus[id]; ok && code >= 300 {
		writeXMLErrors(w, code, fmt.Sprintf("%s could not be saved", id))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><result><concept-id>%s</concept-id><revision-id>1</revision-id></result>`, conceptID(mux.Vars(req)["types"], id))
}

func (s *Server) handleDelete(w http.ResponseWriter, req *http.Request) {
	if !s.checkToken(w, req) {
		return
	}
	id := recordID(req)
	if code, ok := s.CommitStatus[id]; ok && code >= 300 {
		writeXMLErrors(w, code, fmt.Sprintf("Concept with native-id [%s] and concept-id [] is already deleted.", id))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><result><concept-id>%s</concept-id><revision-id>2</revision-id></result>`, conceptID(mux.Vars(req)["types"], id))
}

func recordID(req *http.Request) string {
	id, err := url.PathUnescape(mux.Vars(req)["id"])
	if err != nil {
		return mux.Vars(req)["id"]
	}
	return id
}

func conceptID(types, id string) string {
	prefix := "G"
	if types == "collections" {
		prefix = "C"
	}
	return fmt.Sprintf("%s%d-%s", prefix, len(id), Provider)
}
