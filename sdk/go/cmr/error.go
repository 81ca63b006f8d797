// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is wrapped by errors caused by bad caller input,
// such as a negative search limit.
var ErrInvalidArgument = errors.New("invalid argument")

// ConfigError indicates a credentials file that could not be read,
// parsed, or written.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError indicates the token endpoint was unreachable, rejected
// the credentials, or returned a response with no token in it.
type AuthError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	s := "authentication failed: " + e.URL
	if e.Status != "" {
		s += ": " + e.Status
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *AuthError) Unwrap() error { return e.Err }

// ServiceError indicates the service returned an error document,
// either with an error status code or in place of a search result
// page.
type ServiceError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Errors     []string
	Body       string
}

func (e *ServiceError) Error() string {
	s := fmt.Sprintf("request failed: %s %s", e.Method, e.URL)
	if e.Status != "" {
		s += ": " + e.Status
	}
	if len(e.Errors) > 0 {
		s += ": " + strings.Join(e.Errors, "; ")
	}
	return s
}

// HTTPStatus returns the status code of the response that carried
// the error.
func (e *ServiceError) HTTPStatus() int {
	return e.StatusCode
}

// ProtocolError indicates a response that does not have the expected
// shape, e.g., a granule page with no result element, or metadata
// and reference lists of different lengths.
type ProtocolError struct {
	URL    string
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	s := "unexpected response"
	if e.URL != "" {
		s += " from " + e.URL
	}
	s += ": " + e.Detail
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ProtocolError) Unwrap() error { return e.Err }
