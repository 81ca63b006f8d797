// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is a generic XML element, used to hold record metadata whose
// schema varies between providers.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []*Node    `xml:",any"`
}

// Name returns the element's local name.
func (n *Node) Name() string {
	if n == nil {
		return ""
	}
	return n.XMLName.Local
}

// Text returns the element's character data with surrounding
// whitespace removed. Text of a nil node is "".
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Content)
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// Find follows a path of child element names and returns the first
// match, or nil.
func (n *Node) Find(path ...string) *Node {
	cur := n
	for _, name := range path {
		if cur == nil {
			return nil
		}
		var next *Node
		for _, child := range cur.Children {
			if child.Name() == name {
				next = child
				break
			}
		}
		cur = next
	}
	return cur
}

// Search returns the first descendant (depth first, including n
// itself) with the given name, or nil.
func (n *Node) Search(name string) *Node {
	if n == nil {
		return nil
	}
	if n.Name() == name {
		return n
	}
	for _, child := range n.Children {
		if found := child.Search(name); found != nil {
			return found
		}
	}
	return nil
}

// parseGranulePage returns the granule records in one page of a
// granule metadata search. The first two children of the root element
// are the hit count and timing header; the rest are records.
func parseGranulePage(method, url string, resp *response) ([]*Granule, error) {
	var root Node
	if err := xml.Unmarshal(resp.Body, &root); err != nil {
		if !resp.ok() {
			return nil, serviceError(method, url, resp, nil)
		}
		return nil, &ProtocolError{URL: url, Detail: "cannot parse granule page", Err: err}
	}
	if root.Name() == "errors" {
		var msgs []string
		for _, child := range root.Children {
			msgs = append(msgs, child.Text())
		}
		return nil, serviceError(method, url, resp, msgs)
	}
	if !resp.ok() {
		return nil, serviceError(method, url, resp, nil)
	}
	if len(root.Children) < 2 {
		return nil, &ProtocolError{URL: url, Detail: fmt.Sprintf("granule page <%s> has %d child elements, expected header and records", root.Name(), len(root.Children))}
	}
	var granules []*Granule
	for i, rec := range root.Children[2:] {
		g, err := newGranule(rec)
		if err != nil {
			return nil, &ProtocolError{URL: url, Detail: fmt.Sprintf("record %d", i), Err: err}
		}
		granules = append(granules, g)
	}
	return granules, nil
}

type collectionFeed struct {
	Feed *struct {
		Entry []json.RawMessage `json:"entry"`
	} `json:"feed"`
	Errors []string `json:"errors"`
}

type collectionEntry struct {
	ID        string           `json:"id"`
	ShortName string           `json:"short_name"`
	DatasetID string           `json:"dataset_id"`
	Title     string           `json:"title"`
	Links     []collectionLink `json:"links"`
}

type collectionLink struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// parseCollectionFeed returns the entries of one page of a collection
// metadata search, each decoded both as a generic map and as a
// collectionEntry.
func parseCollectionFeed(method, url string, resp *response) ([]map[string]interface{}, []collectionEntry, error) {
	var feed collectionFeed
	if err := json.Unmarshal(resp.Body, &feed); err != nil {
		if !resp.ok() {
			return nil, nil, serviceError(method, url, resp, nil)
		}
		return nil, nil, &ProtocolError{URL: url, Detail: "cannot parse collection feed", Err: err}
	}
	if len(feed.Errors) > 0 || !resp.ok() {
		return nil, nil, serviceError(method, url, resp, feed.Errors)
	}
	if feed.Feed == nil {
		return nil, nil, &ProtocolError{URL: url, Detail: "response has no feed"}
	}
	raws := make([]map[string]interface{}, 0, len(feed.Feed.Entry))
	entries := make([]collectionEntry, 0, len(feed.Feed.Entry))
	for i, msg := range feed.Feed.Entry {
		var raw map[string]interface{}
		var ent collectionEntry
		if err := json.Unmarshal(msg, &raw); err != nil {
			return nil, nil, &ProtocolError{URL: url, Detail: fmt.Sprintf("entry %d", i), Err: err}
		}
		if err := json.Unmarshal(msg, &ent); err != nil {
			return nil, nil, &ProtocolError{URL: url, Detail: fmt.Sprintf("entry %d", i), Err: err}
		}
		raws = append(raws, raw)
		entries = append(entries, ent)
	}
	return raws, entries, nil
}

// Reference is one entry of a reference-format search result.
type Reference struct {
	Name       string `xml:"name" json:"name"`
	ID         string `xml:"id" json:"id"`
	Location   string `xml:"location" json:"location"`
	RevisionID string `xml:"revision-id" json:"revision_id,omitempty"`
}

// parseReferences returns the <reference> elements of a page in
// document order. If the page is not well-formed XML, references are
// extracted by scanning for literal <reference> delimiters.
func parseReferences(method, url string, resp *response) ([]Reference, error) {
	refs, isErrDoc, msgs, err := decodeReferences(resp.Body)
	if isErrDoc {
		return nil, serviceError(method, url, resp, msgs)
	}
	if !resp.ok() {
		return nil, serviceError(method, url, resp, nil)
	}
	if err != nil {
		return scanReferences(resp.Body), nil
	}
	return refs, nil
}

func decodeReferences(body []byte) (refs []Reference, isErrDoc bool, msgs []string, err error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if depth != 0 {
				return nil, false, nil, io.ErrUnexpectedEOF
			}
			return refs, false, nil, nil
		} else if err != nil {
			return nil, false, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && t.Name.Local == "errors" {
				var root Node
				if err := dec.DecodeElement(&root, &t); err != nil {
					return nil, true, nil, nil
				}
				for _, child := range root.Children {
					msgs = append(msgs, child.Text())
				}
				return nil, true, msgs, nil
			}
			if t.Name.Local == "reference" {
				var ref Reference
				if err := dec.DecodeElement(&ref, &t); err != nil {
					return nil, false, nil, err
				}
				ref.Name = strings.TrimSpace(ref.Name)
				ref.ID = strings.TrimSpace(ref.ID)
				ref.Location = strings.TrimSpace(ref.Location)
				ref.RevisionID = strings.TrimSpace(ref.RevisionID)
				refs = append(refs, ref)
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
}

// scanReferences extracts references from a document that could not
// be parsed. Field values containing markup are ignored.
func scanReferences(body []byte) []Reference {
	var refs []Reference
	s := string(body)
	for {
		start := strings.Index(s, "<reference>")
		if start < 0 {
			return refs
		}
		s = s[start+len("<reference>"):]
		end := strings.Index(s, "</reference>")
		if end < 0 {
			return refs
		}
		inner := s[:end]
		s = s[end+len("</reference>"):]
		refs = append(refs, Reference{
			Name:       scanField(inner, "name"),
			ID:         scanField(inner, "id"),
			Location:   scanField(inner, "location"),
			RevisionID: scanField(inner, "revision-id"),
		})
	}
}

func scanField(s, name string) string {
	open, close := "<"+name+">", "</"+name+">"
	start := strings.Index(s, open)
	if start < 0 {
		return ""
	}
	s = s[start+len(open):]
	end := strings.Index(s, close)
	if end < 0 || strings.Contains(s[:end], "<") {
		return ""
	}
	return strings.TrimSpace(s[:end])
}

func serviceError(method, url string, resp *response, msgs []string) *ServiceError {
	return &ServiceError{
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Errors:     msgs,
		Body:       string(resp.Body),
	}
}
