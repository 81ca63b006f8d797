// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultConfigFile is the credentials file used when none is given
// on the command line or in $CMR_CONFIG.
const DefaultConfigFile = "cmr.cfg"

// Config is the content of a credentials file. Section and key names
// match the files used by existing CMR tooling, so an INI file with
// [search], [ingest], [credentials] and [request] sections loads
// without changes.
type Config struct {
	Search      SearchConfig      `json:"search"`
	Ingest      IngestConfig      `json:"ingest"`
	Credentials CredentialsConfig `json:"credentials"`
	Request     RequestConfig     `json:"request"`
	Client      ClientConfig      `json:"client"`
}

// SearchConfig holds the search URL templates. Each template
// contains a page number placeholder ("%d", or "{}").
type SearchConfig struct {
	GranuleURL        string `json:"granule_url" ini:"granule_url"`
	GranuleMetaURL    string `json:"granule_meta_url" ini:"granule_meta_url"`
	CollectionURL     string `json:"collection_url" ini:"collection_url"`
	CollectionMetaURL string `json:"collection_meta_url" ini:"collection_meta_url"`
}

type IngestConfig struct {
	// Base URL for ingest, e.g.,
	// "https://cmr.uat.earthdata.nasa.gov/ingest/providers/".
	IngestURL string `json:"ingest_url" ini:"ingest_url"`

	// Provider-scoped content type sent with ingest requests,
	// e.g., "application/echo10+xml".
	ContentType string `json:"content_type" ini:"content_type"`

	// Most recently issued token. Empty means the client must
	// authenticate before its first write.
	EchoToken string `json:"echo_token" ini:"echo_token"`
}

type CredentialsConfig struct {
	Provider string `json:"provider" ini:"provider"`
	Username string `json:"username" ini:"username"`
	Password string `json:"password" ini:"password"`
	ClientID string `json:"client_id" ini:"client_id"`

	// Address reported to the token endpoint. If empty, the
	// address of the outbound network interface is used.
	UserIPAddress string `json:"user_ip_address,omitempty" ini:"user_ip_address"`
}

type RequestConfig struct {
	RequestTokenURL string `json:"request_token_url" ini:"request_token_url"`
}

// ClientConfig holds tuning knobs that have no equivalent in older
// credentials files. Zero values are replaced by defaults at load
// time.
type ClientConfig struct {
	Timeout             Duration `json:"timeout"`
	SearchConcurrency   int      `json:"search_concurrency"`
	Retries             int      `json:"retries"`
	RateLimit           float64  `json:"rate_limit"`
	ExpiryProbeResource string   `json:"expiry_probe_resource"`
	IPProbeAddress      string   `json:"ip_probe_address"`
	LogLevel            string   `json:"log_level"`
	LogFormat           string   `json:"log_format"`
}

// Check returns an error if a required setting is missing or a search
// URL template has no page placeholder.
func (cfg *Config) Check() error {
	var missing []string
	for _, req := range []struct {
		name, value string
	}{
		{"search.granule_meta_url", cfg.Search.GranuleMetaURL},
		{"search.collection_url", cfg.Search.CollectionURL},
		{"search.collection_meta_url", cfg.Search.CollectionMetaURL},
		{"ingest.ingest_url", cfg.Ingest.IngestURL},
		{"ingest.content_type", cfg.Ingest.ContentType},
		{"credentials.provider", cfg.Credentials.Provider},
		{"credentials.username", cfg.Credentials.Username},
		{"credentials.client_id", cfg.Credentials.ClientID},
		{"request.request_token_url", cfg.Request.RequestTokenURL},
	} {
		if req.value == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config settings: %s", strings.Join(missing, ", "))
	}
	for name, tmpl := range map[string]string{
		"search.granule_url":         cfg.Search.GranuleURL,
		"search.granule_meta_url":    cfg.Search.GranuleMetaURL,
		"search.collection_url":      cfg.Search.CollectionURL,
		"search.collection_meta_url": cfg.Search.CollectionMetaURL,
	} {
		if tmpl != "" && !hasPagePlaceholder(tmpl) {
			return fmt.Errorf("%s: URL template %q has no page number placeholder", name, tmpl)
		}
	}
	if cfg.Client.SearchConcurrency < 0 || cfg.Client.Retries < 0 || cfg.Client.RateLimit < 0 {
		return fmt.Errorf("client.search_concurrency, client.retries, and client.rate_limit must not be negative")
	}
	if lvl := cfg.Client.LogLevel; lvl != "" {
		if _, err := logrus.ParseLevel(lvl); err != nil {
			return fmt.Errorf("client.log_level: %w", err)
		}
	}
	switch cfg.Client.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("client.log_format: unknown format %q", cfg.Client.LogFormat)
	}
	return nil
}

// Endpoints returns the service URLs named in cfg.
func (cfg *Config) Endpoints() Endpoints {
	return Endpoints{
		GranuleURL:        cfg.Search.GranuleURL,
		GranuleMetaURL:    cfg.Search.GranuleMetaURL,
		CollectionURL:     cfg.Search.CollectionURL,
		CollectionMetaURL: cfg.Search.CollectionMetaURL,
		IngestURL:         cfg.Ingest.IngestURL,
		TokenURL:          cfg.Request.RequestTokenURL,
	}
}
