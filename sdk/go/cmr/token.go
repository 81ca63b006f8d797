// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gocmr/cmr/sdk/go/ctxlog"
)

type tokenRequest struct {
	XMLName       xml.Name `xml:"token"`
	Username      string   `xml:"username"`
	Password      string   `xml:"password"`
	ClientID      string   `xml:"client_id"`
	UserIPAddress string   `xml:"user_ip_address"`
	Provider      string   `xml:"provider"`
}

type tokenResponse struct {
	XMLName xml.Name `xml:"token"`
	ID      string   `xml:"id"`
}

// Authenticate obtains a new token from the token service. It does
// not install the token in the session; see Refresh.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	url := c.Session.Endpoints.TokenURL
	ip := creds.UserIPAddress
	if ip == "" {
		ip = c.outboundIP(ctx)
	}
	body, err := xml.Marshal(tokenRequest{
		Username:      creds.Username,
		Password:      creds.Password,
		ClientID:      creds.ClientID,
		UserIPAddress: ip,
		Provider:      creds.Provider,
	})
	if err != nil {
		return "", &AuthError{URL: url, Err: err}
	}
	resp, err := c.do(ctx, c.httpClient(), "token", "POST", url, body, func(h http.Header) {
		h.Set("Content-Type", "application/xml")
	})
	if err != nil {
		return "", &AuthError{URL: url, Err: err}
	}
	if !resp.ok() {
		return "", &AuthError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(resp.Body),
		}
	}
	id := parseTokenID(resp.Body)
	if id == "" {
		return "", &AuthError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(resp.Body),
			Err:        errors.New("no token id in response"),
		}
	}
	return id, nil
}

// parseTokenID returns the content of the <id> element of a token
// document. If the document isn't well-formed XML, the text between
// the first "<id>" and the following "</id>" is used instead.
func parseTokenID(body []byte) string {
	var tr tokenResponse
	if err := xml.Unmarshal(body, &tr); err == nil {
		return strings.TrimSpace(tr.ID)
	}
	start := bytes.Index(body, []byte("<id>"))
	if start < 0 {
		return ""
	}
	rest := body[start+4:]
	end := bytes.Index(rest, []byte("</id>"))
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(string(rest[:end]))
}

// outboundIP returns the local address the host would use to reach
// c.IPProbeAddress. Dialing UDP doesn't send any packets.
func (c *Client) outboundIP(ctx context.Context) string {
	addr := c.IPProbeAddress
	if addr == "" {
		addr = DefaultIPProbeAddress
	}
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", addr)
	if err != nil {
		ctxlog.FromContext(ctx).WithError(err).Debug("cannot determine outbound address, using loopback")
		return "127.0.0.1"
	}
	defer conn.Close()
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return ua.IP.String()
	}
	return "127.0.0.1"
}

// IsExpired reports whether the service rejects the current token.
//
// The check is an authorized empty PUT against a sentinel collection
// (c.ExpiryProbeResource). The service answers with an error document
// either way; the token is considered expired only when that document
// complains about the token.
func (c *Client) IsExpired(ctx context.Context) (bool, error) {
	probe := c.ExpiryProbeResource
	if probe == "" {
		probe = DefaultExpiryProbeResource
	}
	url := c.ingestURL("collections", probe)
	resp, err := c.do(ctx, c.httpClient(), "expiry_probe", "PUT", url, []byte{}, func(h http.Header) {
		c.Session.applyAuth(h)
	})
	if err != nil {
		return false, err
	}
	expired := tokenRejected(resp.Body)
	c.Metrics.countProbe(expired)
	return expired, nil
}

func tokenRejected(body []byte) bool {
	s := string(body)
	if !strings.Contains(s, "<error>") {
		return false
	}
	return strings.Contains(s, "Token") || strings.Contains(s, "expired") || strings.Contains(s, "exists")
}

// Refresh obtains a new token and installs it in the session. If a
// TokenSaver is configured, the new token is saved too; failure to
// save is logged but does not fail the refresh.
//
// Concurrent calls share a single request to the token service.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	_, gen := c.Session.snapshot()
	return c.refreshFrom(ctx, gen)
}

// refreshFrom replaces the token unless the session has already moved
// past the generation the caller observed, in which case the current
// token is returned without contacting the token service.
//
// The shared token request is not tied to any one caller's context:
// a caller whose ctx ends stops waiting, but the request continues
// (bounded by c.Timeout) on behalf of the others.
func (c *Client) refreshFrom(ctx context.Context, observed uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	shared := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		if token, gen := c.Session.snapshot(); gen != observed {
			return token, nil
		}
		if c.Credentials == nil {
			return nil, &AuthError{URL: c.Session.Endpoints.TokenURL, Err: errors.New("no credentials available")}
		}
		creds, err := c.Credentials.Credentials()
		if err != nil {
			return nil, &AuthError{URL: c.Session.Endpoints.TokenURL, Err: err}
		}
		token, err := c.Authenticate(shared, creds)
		if err != nil {
			return nil, err
		}
		gen := c.Session.replace(token)
		c.Metrics.countRefresh()
		logger := ctxlog.FromContext(shared).WithField("Generation", gen)
		logger.Info("obtained new token")
		if c.TokenSaver != nil {
			if err := c.TokenSaver.SaveToken(token); err != nil {
				logger.WithError(err).Warn("could not save new token")
			}
		}
		return token, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// ensureFresh refreshes the token if the service reports it expired.
func (c *Client) ensureFresh(ctx context.Context) error {
	_, gen := c.Session.snapshot()
	expired, err := c.IsExpired(ctx)
	if err != nil {
		return fmt.Errorf("checking token: %w", err)
	}
	if !expired {
		return nil
	}
	ctxlog.FromContext(ctx).Info("token expired, refreshing")
	_, err = c.refreshFrom(ctx, gen)
	return err
}
