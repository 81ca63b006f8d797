// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gocmr/cmr/sdk/go/ctxlog"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Kind is a record type: collection or granule.
type Kind string

const (
	KindCollection Kind = "collection"
	KindGranule    Kind = "granule"
)

// plural returns the path component used for records of this kind
// in ingest URLs.
func (k Kind) plural() string {
	return string(k) + "s"
}

const (
	// PageSize is the number of records the service returns per
	// page.
	PageSize = 50

	// MaxLimit is the largest search limit accepted. The service
	// refuses to page past its first million results.
	MaxLimit = 1000000
)

// PageCount returns the number of pages needed to retrieve limit
// records.
func PageCount(limit int) int {
	if limit <= 0 {
		return 0
	}
	n := limit / PageSize
	if limit%PageSize != 0 {
		n++
	}
	return n
}

// SearchQuery describes a search. Params are passed to the service as
// query parameters without interpretation: values that are already
// percent-encoded are sent as given.
type SearchQuery struct {
	Kind   Kind
	Params map[string]string
	Limit  int
}

// escapeQueryValue escapes only what would end the value or make the
// URL unparseable: space, "&", "#", and any "%" that does not start a
// %XX sequence.
func escapeQueryValue(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		switch ch := v[i]; ch {
		case ' ', '&', '#':
			fmt.Fprintf(&b, "%%%02X", ch)
		case '%':
			if i+2 < len(v) && isHex(v[i+1]) && isHex(v[i+2]) {
				b.WriteByte(ch)
			} else {
				b.WriteString("%25")
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func isHex(ch byte) bool {
	return ('0' <= ch && ch <= '9') || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}

// pageURL substitutes the page number into tmpl ("%d", or "{}") and
// appends the query parameters in key order.
func pageURL(tmpl string, page int, params map[string]string) string {
	u := tmpl
	if strings.Contains(u, "%d") {
		u = strings.Replace(u, "%d", strconv.Itoa(page), 1)
	} else {
		u = strings.Replace(u, "{}", strconv.Itoa(page), 1)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(u)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(escapeQueryValue(params[k]))
	}
	return b.String()
}

func hasPagePlaceholder(tmpl string) bool {
	return strings.Contains(tmpl, "%d") || strings.Contains(tmpl, "{}")
}

func (c *Client) searchHeader(h http.Header) {
	if c.Session.ClientID != "" {
		h.Set("Client-Id", c.Session.ClientID)
	}
}

// fetchPages retrieves the result pages needed for q.Limit records
// and returns the parsed records of all pages, in page order.
//
// Page 1 is always fetched first, so an error document stops the
// search before any other page is requested.
func fetchPages[T any](ctx context.Context, c *Client, op, tmpl string, q SearchQuery, parse func(url string, resp *response) ([]T, error)) ([]T, error) {
	pages := PageCount(q.Limit)
	logger := ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"Operation": op,
		"Limit":     q.Limit,
		"Pages":     pages,
	})
	results := make([][]T, pages)
	fetch := func(ctx context.Context, page int) error {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		u := pageURL(tmpl, page, q.Params)
		resp, err := c.do(ctx, c.searchClient(), op, "GET", u, nil, c.searchHeader)
		if err != nil {
			return err
		}
		recs, err := parse(u, resp)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"Page": page, "Records": len(recs)}).Debug("fetched page")
		results[page-1] = recs
		return nil
	}
	if err := fetch(ctx, 1); err != nil {
		return nil, err
	}
	if c.SearchConcurrency < 2 {
		for page := 2; page <= pages; page++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := fetch(ctx, page); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.SearchConcurrency)
		for page := 2; page <= pages; page++ {
			page := page
			g.Go(func() error { return fetch(gctx, page) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	var all []T
	for _, recs := range results {
		all = append(all, recs...)
	}
	return all, nil
}

func checkLimit(q SearchQuery) error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative search limit %d", ErrInvalidArgument, q.Limit)
	}
	if q.Limit > MaxLimit {
		return fmt.Errorf("%w: search limit %d exceeds maximum %d", ErrInvalidArgument, q.Limit, MaxLimit)
	}
	return nil
}

// SearchGranules returns up to q.Limit granules matching q.Params.
func (c *Client) SearchGranules(ctx context.Context, q SearchQuery) ([]*Granule, error) {
	if err := checkLimit(q); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return nil, nil
	}
	granules, err := fetchPages(ctx, c, "search_granules", c.Session.Endpoints.GranuleMetaURL, q, func(u string, resp *response) ([]*Granule, error) {
		return parseGranulePage("GET", u, resp)
	})
	if err != nil {
		return nil, err
	}
	if len(granules) > q.Limit {
		granules = granules[:q.Limit]
	}
	return granules, nil
}

type feedPage struct {
	raw     []map[string]interface{}
	entries []collectionEntry
}

// SearchCollections returns up to q.Limit collections matching
// q.Params. Each collection pairs an entry from the metadata search
// with the reference at the same position in the location search; if
// the two searches return different numbers of records, the result
// is a *ProtocolError.
func (c *Client) SearchCollections(ctx context.Context, q SearchQuery) ([]*Collection, error) {
	if err := checkLimit(q); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return nil, nil
	}
	feeds, err := fetchPages(ctx, c, "search_collections_meta", c.Session.Endpoints.CollectionMetaURL, q, func(u string, resp *response) ([]feedPage, error) {
		raw, entries, err := parseCollectionFeed("GET", u, resp)
		if err != nil {
			return nil, err
		}
		return []feedPage{{raw: raw, entries: entries}}, nil
	})
	if err != nil {
		return nil, err
	}
	refs, err := fetchPages(ctx, c, "search_collections", c.Session.Endpoints.CollectionURL, q, func(u string, resp *response) ([]Reference, error) {
		return parseReferences("GET", u, resp)
	})
	if err != nil {
		return nil, err
	}
	var raws []map[string]interface{}
	var entries []collectionEntry
	for _, f := range feeds {
		raws = append(raws, f.raw...)
		entries = append(entries, f.entries...)
	}
	if len(entries) != len(refs) {
		return nil, &ProtocolError{
			URL:    c.Session.Endpoints.CollectionURL,
			Detail: fmt.Sprintf("metadata search returned %d collections but location search returned %d", len(entries), len(refs)),
		}
	}
	colls := make([]*Collection, 0, len(entries))
	for i := range entries {
		colls = append(colls, newCollection(raws[i], entries[i], refs[i]))
	}
	if len(colls) > q.Limit {
		colls = colls[:q.Limit]
	}
	return colls, nil
}

// Search runs a granule or collection search, according to q.Kind.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]Record, error) {
	var recs []Record
	switch q.Kind {
	case KindGranule:
		granules, err := c.SearchGranules(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, g := range granules {
			recs = append(recs, g)
		}
	case KindCollection:
		colls, err := c.SearchCollections(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, coll := range colls {
			recs = append(recs, coll)
		}
	default:
		return nil, fmt.Errorf("%w: unknown record kind %q", ErrInvalidArgument, q.Kind)
	}
	return recs, nil
}
