// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/gocmr/cmr/sdk/go/ctxlog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout             = 5 * time.Minute
	DefaultExpiryProbeResource = "LarcDatasetId"
	DefaultIPProbeAddress      = "8.8.8.8:80"
)

// A Client talks to the CMR search, ingest, and token services on
// behalf of a single provider account.
type Client struct {
	Session *Session

	// Credentials used to obtain a new token when the current one
	// has expired.
	Credentials CredentialProvider

	// If non-nil, each newly issued token is passed to
	// TokenSaver.SaveToken.
	TokenSaver TokenSaver

	// HTTP client used for ingest and token requests. Never
	// retried.
	Client *http.Client

	// HTTP client used for search requests. If nil, Client is
	// used.
	SearchClient *http.Client

	// Per-request deadline, applied in addition to any deadline
	// on the caller's context. Zero means DefaultTimeout.
	Timeout time.Duration

	// Maximum number of result pages fetched concurrently. Values
	// below 2 mean pages are fetched one at a time.
	SearchConcurrency int

	// If non-nil, each search page request waits for Limiter.
	Limiter *rate.Limiter

	// Collection identifier used to probe token validity.
	ExpiryProbeResource string

	// Address used to discover the outbound interface address,
	// when the credentials don't specify one.
	IPProbeAddress string

	Metrics *Metrics

	refreshGroup singleflight.Group
}

// NewClient returns a client for the given session, using an HTTP
// client with a cookie jar.
func NewClient(sess *Session, creds CredentialProvider) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &Client{
		Session:             sess,
		Credentials:         creds,
		Client:              &http.Client{Jar: jar},
		Timeout:             DefaultTimeout,
		ExpiryProbeResource: DefaultExpiryProbeResource,
		IPProbeAddress:      DefaultIPProbeAddress,
	}
}

// NewClientFromConfig returns a client configured by cfg. If cfg has
// no token, the client authenticates before returning, and the new
// token is passed to saver (if non-nil).
func NewClientFromConfig(ctx context.Context, cfg *Config, saver TokenSaver) (*Client, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	creds := StaticCredentials{
		Username:      cfg.Credentials.Username,
		Password:      cfg.Credentials.Password,
		ClientID:      cfg.Credentials.ClientID,
		Provider:      cfg.Credentials.Provider,
		UserIPAddress: cfg.Credentials.UserIPAddress,
	}
	sess := NewSession(cfg.Endpoints(), cfg.Credentials.Provider, cfg.Credentials.ClientID, cfg.Credentials.Username, cfg.Ingest.ContentType, cfg.Ingest.EchoToken)
	c := NewClient(sess, creds)
	c.TokenSaver = saver
	if t := cfg.Client.Timeout.Duration(); t > 0 {
		c.Timeout = t
	}
	if cfg.Client.ExpiryProbeResource != "" {
		c.ExpiryProbeResource = cfg.Client.ExpiryProbeResource
	}
	if cfg.Client.IPProbeAddress != "" {
		c.IPProbeAddress = cfg.Client.IPProbeAddress
	}
	c.SearchConcurrency = cfg.Client.SearchConcurrency
	if cfg.Client.RateLimit > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.Client.RateLimit), 1)
	}
	if cfg.Client.Retries > 0 {
		c.SearchClient = retryingClient(c.Client, cfg.Client.Retries)
	}
	if sess.Token() == "" {
		if _, err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// retryingClient returns an *http.Client that retries requests that
// fail with a connection error or a 5xx response. The final response
// is returned to the caller as-is so it can be reported as a
// ServiceError.
func retryingClient(base *http.Client, retries int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = retries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

func (c *Client) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *Client) searchClient() *http.Client {
	if c.SearchClient != nil {
		return c.SearchClient
	}
	return c.httpClient()
}

// response is a fully read HTTP response.
type response struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// do sends a request, reads the whole response body, and records the
// outcome under the given operation name. The header func, if
// non-nil, is called to set request headers.
func (c *Client) do(ctx context.Context, hc *http.Client, op, method, url string, body []byte, header func(http.Header)) (*response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	if header != nil {
		header(req.Header)
	}
	reqid := reqIDGen.Next()
	req.Header.Set("X-Request-Id", reqid)

	logger := ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"Operation": op,
		"Method":    method,
		"URL":       url,
		"RequestID": reqid,
	})
	t0 := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.Metrics.observeRequest(op, 0, t0)
		logger.WithError(err).Debug("request failed")
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	c.Metrics.observeRequest(op, resp.StatusCode, t0)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, url, err)
	}
	logger.WithFields(logrus.Fields{
		"StatusCode": resp.StatusCode,
		"Elapsed":    time.Since(t0).Seconds(),
	}).Debug("request done")
	return &response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       buf,
	}, nil
}
