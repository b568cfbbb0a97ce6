// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpsink posts upload batches to the collection API.
//
// Each batch becomes one POST to {base URL}/{endpoint for the kind}.
// The body is the record array encoded as JSON or CBOR, optionally
// compressed, with these headers:
//
//	Content-Type:     application/json | application/cbor
//	Content-Encoding: zstd | lz4 (when compressed)
//	User-Agent:       XivForays/<version>
//	X-API-Key:        <api key>
//	X-Batch-Digest:   blake3:<hex digest of the uncompressed body>
//
// Responses map onto the upload failure classes: 401 is
// upload.ErrUnauthorized, 403 is upload.ErrForbidden, and every other
// non-2xx status or transport failure is upload.ErrTransport.
package httpsink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xivforays/forays-agent/lib/codec"
	"github.com/xivforays/forays-agent/lib/config"
	"github.com/xivforays/forays-agent/lib/netutil"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/upload"
	"github.com/xivforays/forays-agent/lib/version"
)

// Header names.
const (
	HeaderAPIKey      = "X-API-Key"
	HeaderBatchDigest = "X-Batch-Digest"
)

// Options configures a Sink.
type Options struct {
	// BaseURL is the API root. Endpoints are resolved against it.
	BaseURL string

	APIKey string

	// Endpoints maps a kind to its path under BaseURL. A kind with no
	// entry posts to its own name.
	Endpoints map[tracking.Kind]string

	Encoding    codec.Encoding
	Compression codec.Compression

	// Timeout bounds each request. Zero leaves only the caller's
	// context.
	Timeout time.Duration

	// RequestsPerSecond limits requests across all kinds. Zero
	// disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Client defaults to a new http.Client.
	Client *http.Client

	Logger *slog.Logger
}

// Sink is an upload.Sink over HTTP. Safe for concurrent use.
type Sink struct {
	baseURL     *url.URL
	apiKey      string
	endpoints   map[tracking.Kind]string
	encoding    codec.Encoding
	compression codec.Compression
	timeout     time.Duration
	limiter     *rate.Limiter
	client      *http.Client
	logger      *slog.Logger
	userAgent   string
}

var _ upload.Sink = (*Sink)(nil)

// New creates a Sink.
func New(options Options) (*Sink, error) {
	if options.BaseURL == "" {
		return nil, errors.New("httpsink: BaseURL is required")
	}
	base := options.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("httpsink: parsing base URL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("httpsink: base URL %q must be http or https", options.BaseURL)
	}

	if options.Encoding == "" {
		options.Encoding = codec.EncodingJSON
	}
	if _, err := codec.ParseEncoding(string(options.Encoding)); err != nil {
		return nil, fmt.Errorf("httpsink: %w", err)
	}
	compression, err := codec.ParseCompression(string(options.Compression))
	if err != nil {
		return nil, fmt.Errorf("httpsink: %w", err)
	}

	var limiter *rate.Limiter
	if options.RequestsPerSecond > 0 {
		burst := options.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), burst)
	}

	client := options.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink{
		baseURL:     baseURL,
		apiKey:      options.APIKey,
		endpoints:   options.Endpoints,
		encoding:    options.Encoding,
		compression: compression,
		timeout:     options.Timeout,
		limiter:     limiter,
		client:      client,
		logger:      logger,
		userAgent:   version.UserAgent(),
	}, nil
}

// FromConfig creates a Sink from the api section of cfg.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Sink, error) {
	endpoints := make(map[tracking.Kind]string, len(cfg.API.Endpoints))
	for kind := range cfg.API.Endpoints {
		endpoints[tracking.Kind(kind)] = cfg.Endpoint(kind)
	}
	return New(Options{
		BaseURL:           cfg.API.URL,
		APIKey:            cfg.API.Key,
		Endpoints:         endpoints,
		Encoding:          codec.Encoding(cfg.API.Encoding),
		Compression:       codec.Compression(cfg.API.Compression),
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Logger:            logger,
	})
}

// URL returns the endpoint URL for kind.
func (s *Sink) URL(kind tracking.Kind) string {
	endpoint, ok := s.endpoints[kind]
	if !ok || endpoint == "" {
		endpoint = string(kind)
	}
	return s.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(endpoint, "/")}).String()
}

// Send posts records to kind's endpoint.
func (s *Sink) Send(ctx context.Context, kind tracking.Kind, records any) error {
	target := s.URL(kind)

	body, err := codec.Encode(s.encoding, records)
	if err != nil {
		return fmt.Errorf("encoding %s batch: %w", kind, err)
	}
	digest := codec.Digest(body)
	payload, err := codec.Compress(body, s.compression)
	if err != nil {
		return fmt.Errorf("compressing %s batch: %w", kind, err)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limit: %w: %w", upload.ErrTransport, err)
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", target, err)
	}
	request.Header.Set("Content-Type", s.encoding.ContentType())
	if contentEncoding := s.compression.ContentEncoding(); contentEncoding != "" {
		request.Header.Set("Content-Encoding", contentEncoding)
	}
	request.Header.Set("User-Agent", s.userAgent)
	request.Header.Set(HeaderBatchDigest, digest)
	if s.apiKey != "" {
		request.Header.Set(HeaderAPIKey, s.apiKey)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("posting to %s: %w: %w", target, upload.ErrTransport, err)
	}
	defer netutil.DrainAndClose(response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &upload.StatusError{
			StatusCode: response.StatusCode,
			Endpoint:   target,
			Body:       netutil.ErrorBody(response.Body),
		}
	}

	s.logger.Debug("batch accepted",
		"kind", string(kind),
		"url", target,
		"status", response.StatusCode,
		"bytes", len(payload),
		"digest", digest,
	)
	return nil
}
