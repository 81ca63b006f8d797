// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"net/http"
	"sync"
)

// Endpoints holds the service URLs used by a Client. Search URLs are
// templates with a page number placeholder.
type Endpoints struct {
	GranuleURL        string
	GranuleMetaURL    string
	CollectionURL     string
	CollectionMetaURL string
	IngestURL         string
	TokenURL          string
}

// Credentials identify the account used to obtain a token.
type Credentials struct {
	Username      string
	Password      string
	ClientID      string
	Provider      string
	UserIPAddress string
}

// A CredentialProvider supplies the credentials used to
// re-authenticate when the current token has expired.
type CredentialProvider interface {
	Credentials() (Credentials, error)
}

// A TokenSaver stores a newly issued token so it can be reused by
// later processes. Implementations must not modify anything except
// the stored token.
type TokenSaver interface {
	SaveToken(token string) error
}

// StaticCredentials is a CredentialProvider that always returns
// itself.
type StaticCredentials Credentials

func (sc StaticCredentials) Credentials() (Credentials, error) {
	return Credentials(sc), nil
}

// Session carries the provider identity and the current token. The
// token can be replaced while requests are in flight; each request
// sees either the old or the new token, never a mixture of headers.
type Session struct {
	Endpoints   Endpoints
	Provider    string
	ClientID    string
	Username    string
	ContentType string

	mtx   sync.RWMutex
	token string
	// incremented every time the token is replaced
	generation uint64
}

// NewSession returns a session with the given initial token, which
// may be empty.
func NewSession(ep Endpoints, provider, clientID, username, contentType, token string) *Session {
	return &Session{
		Endpoints:   ep,
		Provider:    provider,
		ClientID:    clientID,
		Username:    username,
		ContentType: contentType,
		token:       token,
	}
}

// Token returns the current token.
func (s *Session) Token() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.token
}

func (s *Session) snapshot() (string, uint64) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.token, s.generation
}

func (s *Session) replace(token string) uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.token = token
	s.generation++
	return s.generation
}

// applyAuth sets the ingest headers from a single snapshot of the
// session state, and returns the token it used.
func (s *Session) applyAuth(h http.Header) string {
	token, _ := s.snapshot()
	if s.ContentType != "" {
		h.Set("Content-Type", s.ContentType)
	}
	h.Set("Echo-Token", token)
	return token
}
