// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gocmr/cmr/sdk/go/ctxlog"
	"github.com/sirupsen/logrus"
)

// Operation is the kind of change requested by an IngestRequest.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// IngestState is a step of the validate-then-commit workflow.
type IngestState string

const (
	StateBuilt      IngestState = "Built"
	StateValidating IngestState = "Validating"
	StateCommitting IngestState = "Committing"
	StateDone       IngestState = "Done"
	StateFailed     IngestState = "Failed"
)

// Stage identifies the request whose response is reported in an
// IngestOutcome.
type Stage string

const (
	StageValidate Stage = "validate"
	StageCommit   Stage = "commit"
	StageDelete   Stage = "delete"
)

// IngestRequest describes one change to a collection or granule.
// Payload is ignored for deletes.
type IngestRequest struct {
	Concept  Kind
	Op       Operation
	Identity string
	Payload  []byte
}

// IngestOutcome is the service's answer to an IngestRequest. A
// rejected validation is reported with Stage "validate" and State
// "Failed"; in that case nothing was committed.
type IngestOutcome struct {
	Stage      Stage
	State      IngestState
	StatusCode int
	Body       string
}

// Failed reports whether the service rejected the request.
func (o IngestOutcome) Failed() bool {
	return o.State == StateFailed || o.StatusCode >= 400
}

// ingestURL returns <ingest base><provider>/<parts...>, with the last
// part (the record identity) path-escaped.
func (c *Client) ingestURL(parts ...string) string {
	u := c.Session.Endpoints.IngestURL + c.Session.Provider
	for i, p := range parts {
		if i == len(parts)-1 {
			p = url.PathEscape(p)
		}
		u += "/" + p
	}
	return u
}

// Ingest validates and then commits a create or update, or performs a
// delete.
//
// The token is checked (and refreshed if expired) after a successful
// validation, immediately before the commit. A transport failure or
// a failed refresh is returned as an error; a response from the
// service, successful or not, is returned as an outcome.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (IngestOutcome, error) {
	if req.Concept != KindCollection && req.Concept != KindGranule {
		return IngestOutcome{}, fmt.Errorf("%w: unknown concept type %q", ErrInvalidArgument, req.Concept)
	}
	if req.Identity == "" {
		return IngestOutcome{}, fmt.Errorf("%w: empty %s identity", ErrInvalidArgument, req.Concept)
	}
	logger := ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"ConceptType": req.Concept,
		"Identity":    req.Identity,
		"Op":          req.Op,
	})
	ctx = ctxlog.Context(ctx, logger)
	switch req.Op {
	case OpDelete:
		return c.delete(ctx, req)
	case OpCreate, OpUpdate:
	default:
		return IngestOutcome{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidArgument, req.Op)
	}

	logger.WithFields(logrus.Fields{
		"State": StateBuilt,
		"Size":  humanize.Bytes(uint64(len(req.Payload))),
	}).Debug("validating")
	resp, err := c.do(ctx, c.httpClient(), "validate", "POST", c.ingestURL("validate", string(req.Concept), req.Identity), req.Payload, func(h http.Header) {
		c.Session.applyAuth(h)
	})
	if err != nil {
		return IngestOutcome{}, err
	}
	if !resp.ok() {
		logger.WithField("StatusCode", resp.StatusCode).Info("validation failed")
		return IngestOutcome{
			Stage:      StageValidate,
			State:      StateFailed,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}, nil
	}

	logger.WithField("State", StateCommitting).Debug("validated")
	if err := c.ensureFresh(ctx); err != nil {
		return IngestOutcome{}, err
	}
	resp, err = c.do(ctx, c.httpClient(), "commit", "PUT", c.ingestURL(req.Concept.plural(), req.Identity), req.Payload, func(h http.Header) {
		c.Session.applyAuth(h)
	})
	if err != nil {
		return IngestOutcome{}, err
	}
	logger.WithFields(logrus.Fields{
		"State":      StateDone,
		"StatusCode": resp.StatusCode,
	}).Info("committed")
	return IngestOutcome{
		Stage:      StageCommit,
		State:      StateDone,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
	}, nil
}

func (c *Client) delete(ctx context.Context, req IngestRequest) (IngestOutcome, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return IngestOutcome{}, err
	}
	resp, err := c.do(ctx, c.httpClient(), "delete", "DELETE", c.ingestURL(req.Concept.plural(), req.Identity), nil, func(h http.Header) {
		c.Session.applyAuth(h)
	})
	if err != nil {
		return IngestOutcome{}, err
	}
	ctxlog.FromContext(ctx).WithField("StatusCode", resp.StatusCode).Info("deleted")
	return IngestOutcome{
		Stage:      StageDelete,
		State:      StateDone,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
	}, nil
}

// IngestCollection creates a collection from an XML document. The
// identity is taken from the document's DataSetId element.
func (c *Client) IngestCollection(ctx context.Context, doc []byte) (IngestOutcome, error) {
	return c.ingestDoc(ctx, KindCollection, OpCreate, doc)
}

// UpdateCollection replaces an existing collection. The service
// treats it the same as IngestCollection.
func (c *Client) UpdateCollection(ctx context.Context, doc []byte) (IngestOutcome, error) {
	return c.ingestDoc(ctx, KindCollection, OpUpdate, doc)
}

// IngestGranule creates a granule from an XML document. The identity
// is taken from the document's GranuleUR element.
func (c *Client) IngestGranule(ctx context.Context, doc []byte) (IngestOutcome, error) {
	return c.ingestDoc(ctx, KindGranule, OpCreate, doc)
}

func (c *Client) UpdateGranule(ctx context.Context, doc []byte) (IngestOutcome, error) {
	return c.ingestDoc(ctx, KindGranule, OpUpdate, doc)
}

func (c *Client) IngestCollectionFile(ctx context.Context, path string) (IngestOutcome, error) {
	return c.ingestFile(ctx, KindCollection, OpCreate, path)
}

func (c *Client) UpdateCollectionFile(ctx context.Context, path string) (IngestOutcome, error) {
	return c.ingestFile(ctx, KindCollection, OpUpdate, path)
}

func (c *Client) IngestGranuleFile(ctx context.Context, path string) (IngestOutcome, error) {
	return c.ingestFile(ctx, KindGranule, OpCreate, path)
}

func (c *Client) UpdateGranuleFile(ctx context.Context, path string) (IngestOutcome, error) {
	return c.ingestFile(ctx, KindGranule, OpUpdate, path)
}

// DeleteCollection deletes the collection with the given dataset id.
func (c *Client) DeleteCollection(ctx context.Context, datasetID string) (IngestOutcome, error) {
	return c.Ingest(ctx, IngestRequest{Concept: KindCollection, Op: OpDelete, Identity: datasetID})
}

// DeleteGranule deletes the granule with the given GranuleUR.
func (c *Client) DeleteGranule(ctx context.Context, granuleUR string) (IngestOutcome, error) {
	return c.Ingest(ctx, IngestRequest{Concept: KindGranule, Op: OpDelete, Identity: granuleUR})
}

func (c *Client) ingestFile(ctx context.Context, kind Kind, op Operation, path string) (IngestOutcome, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return IngestOutcome{}, err
	}
	return c.ingestDoc(ctx, kind, op, doc)
}

func (c *Client) ingestDoc(ctx context.Context, kind Kind, op Operation, doc []byte) (IngestOutcome, error) {
	var id string
	var err error
	if kind == KindCollection {
		id, err = DataSetID(doc)
	} else {
		id, err = GranuleUR(doc)
	}
	if err != nil {
		return IngestOutcome{}, err
	}
	return c.Ingest(ctx, IngestRequest{Concept: kind, Op: op, Identity: id, Payload: doc})
}

// DataSetID returns the text of the top-level DataSetId element of a
// collection document.
func DataSetID(doc []byte) (string, error) {
	return docField(doc, "DataSetId")
}

// ShortName returns the text of Collection/ShortName in a collection
// document.
func ShortName(doc []byte) (string, error) {
	return docField(doc, "Collection", "ShortName")
}

// GranuleUR returns the text of the top-level GranuleUR element of a
// granule document.
func GranuleUR(doc []byte) (string, error) {
	return docField(doc, "GranuleUR")
}

func docField(doc []byte, path ...string) (string, error) {
	var root Node
	if err := xml.Unmarshal(doc, &root); err != nil {
		return "", fmt.Errorf("%w: cannot parse XML document: %s", ErrInvalidArgument, err)
	}
	if v := root.Find(path...).Text(); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: could not find <%s> element", ErrInvalidArgument, path[len(path)-1])
}
