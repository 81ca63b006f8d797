// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"errors"
	"strings"
)

// A Record is a search result.
type Record interface {
	Kind() Kind
	// Identity returns the identifier used to ingest, update, or
	// delete the record: the GranuleUR of a granule, or the
	// dataset id of a collection.
	Identity() string
}

// Granule is a granule search result.
type Granule struct {
	raw         *Node
	granuleUR   string
	downloadURL string
}

func newGranule(rec *Node) (*Granule, error) {
	ur := rec.Search("GranuleUR").Text()
	if ur == "" {
		return nil, errors.New("no GranuleUR element")
	}
	var dl string
	if u := rec.Search("OnlineAccessURL").Find("URL"); u != nil {
		dl = u.Text()
	}
	return &Granule{raw: rec, granuleUR: ur, downloadURL: dl}, nil
}

func (g *Granule) Kind() Kind       { return KindGranule }
func (g *Granule) Identity() string { return g.granuleUR }

// GranuleUR returns the granule's unique name.
func (g *Granule) GranuleUR() string { return g.granuleUR }

// DownloadURL returns the first online access URL, or "" if the
// granule has none.
func (g *Granule) DownloadURL() string { return g.downloadURL }

// OPeNDAPURL returns the download URL with its first "data" path
// segment replaced by "opendap". If the path has no such segment, the
// download URL is returned unchanged.
func (g *Granule) OPeNDAPURL() string {
	return opendapURL(g.downloadURL)
}

// Raw returns the decoded metadata element.
func (g *Granule) Raw() *Node { return g.raw }

func opendapURL(u string) string {
	pathStart := 0
	if i := strings.Index(u, "://"); i >= 0 {
		j := strings.IndexByte(u[i+3:], '/')
		if j < 0 {
			return u
		}
		pathStart = i + 3 + j
	}
	prefix, path := u[:pathStart], u[pathStart:]
	// keep any query or fragment out of the segment search
	suffix := ""
	if k := strings.IndexAny(path, "?#"); k >= 0 {
		path, suffix = path[:k], path[k:]
	}
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if seg == "data" {
			segs[i] = "opendap"
			return prefix + strings.Join(segs, "/") + suffix
		}
	}
	return u
}

// Collection is a collection search result: a metadata entry paired
// with the reference returned by the location search.
type Collection struct {
	raw   map[string]interface{}
	entry collectionEntry
	ref   Reference
}

func newCollection(raw map[string]interface{}, entry collectionEntry, ref Reference) *Collection {
	return &Collection{raw: raw, entry: entry, ref: ref}
}

func (c *Collection) Kind() Kind       { return KindCollection }
func (c *Collection) Identity() string { return c.entry.DatasetID }

func (c *Collection) ShortName() string { return c.entry.ShortName }
func (c *Collection) DatasetID() string { return c.entry.DatasetID }

// ConceptID returns the service-assigned id, taken from the metadata
// entry or, failing that, from the reference.
func (c *Collection) ConceptID() string {
	if c.entry.ID != "" {
		return c.entry.ID
	}
	return c.ref.ID
}

// ServiceAccessURL returns the location of the collection's metadata
// document.
func (c *Collection) ServiceAccessURL() string { return c.ref.Location }

// Reference returns the location search result paired with this
// collection.
func (c *Collection) Reference() Reference { return c.ref }

// OPeNDAPURL returns the first metadata link that refers to an
// OPeNDAP service, or "".
func (c *Collection) OPeNDAPURL() string {
	for _, l := range c.entry.Links {
		if strings.Contains(strings.ToLower(l.Href), "opendap") || strings.Contains(strings.ToLower(l.Title), "opendap") {
			return l.Href
		}
	}
	return ""
}

// Raw returns the decoded metadata entry.
func (c *Collection) Raw() map[string]interface{} { return c.raw }
