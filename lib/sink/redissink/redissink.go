// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package redissink appends upload batches to Redis streams.
//
// Each batch becomes one XADD entry on the stream {prefix}{kind}, for
// example "forays:enemy". The entry carries the encoded record array
// and enough metadata for a consumer to decode it:
//
//	encoding  json | cbor
//	digest    blake3:<hex digest of payload>
//	agent     XivForays/<version>
//	records   the encoded record array
//
// Redis authentication failures map onto upload.ErrUnauthorized, ACL
// denials onto upload.ErrForbidden, and everything else onto
// upload.ErrTransport.
package redissink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xivforays/forays-agent/lib/codec"
	"github.com/xivforays/forays-agent/lib/config"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/upload"
	"github.com/xivforays/forays-agent/lib/version"
)

// Stream entry field names.
const (
	FieldEncoding = "encoding"
	FieldDigest   = "digest"
	FieldAgent    = "agent"
	FieldRecords  = "records"
)

// StreamAdder is the subset of redis.Cmdable the sink uses.
type StreamAdder interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// Options configures a Sink.
type Options struct {
	Client StreamAdder

	// StreamPrefix is prepended to the kind to name each stream.
	StreamPrefix string

	// MaxLen trims each stream approximately. Zero leaves streams
	// unbounded.
	MaxLen int64

	Encoding codec.Encoding
	Logger   *slog.Logger
}

// Sink is an upload.Sink over Redis streams.
type Sink struct {
	client       StreamAdder
	streamPrefix string
	maxLen       int64
	encoding     codec.Encoding
	logger       *slog.Logger
	agent        string
}

var _ upload.Sink = (*Sink)(nil)

// New creates a Sink.
func New(options Options) (*Sink, error) {
	if options.Client == nil {
		return nil, errors.New("redissink: Client is required")
	}
	if options.MaxLen < 0 {
		return nil, fmt.Errorf("redissink: MaxLen must not be negative, got %d", options.MaxLen)
	}
	if options.Encoding == "" {
		options.Encoding = codec.EncodingCBOR
	}
	if _, err := codec.ParseEncoding(string(options.Encoding)); err != nil {
		return nil, fmt.Errorf("redissink: %w", err)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		client:       options.Client,
		streamPrefix: options.StreamPrefix,
		maxLen:       options.MaxLen,
		encoding:     options.Encoding,
		logger:       logger,
		agent:        version.UserAgent(),
	}, nil
}

// FromConfig connects a Sink to the server in the redis section of
// cfg. The returned close function releases the client.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Sink, func() error, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	sink, err := New(Options{
		Client:       client,
		StreamPrefix: cfg.Redis.StreamPrefix,
		MaxLen:       cfg.Redis.MaxLen,
		Encoding:     codec.Encoding(cfg.API.Encoding),
		Logger:       logger,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return sink, client.Close, nil
}

// Stream returns the stream name for kind.
func (s *Sink) Stream(kind tracking.Kind) string {
	return s.streamPrefix + string(kind)
}

// Send appends records to kind's stream as one entry.
func (s *Sink) Send(ctx context.Context, kind tracking.Kind, records any) error {
	payload, err := codec.Encode(s.encoding, records)
	if err != nil {
		return fmt.Errorf("encoding %s batch: %w", kind, err)
	}
	digest := codec.Digest(payload)

	stream := s.Stream(kind)
	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: []any{
			FieldEncoding, string(s.encoding),
			FieldDigest, digest,
			FieldAgent, s.agent,
			FieldRecords, payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("appending to stream %s: %w", stream, classify(err))
	}
	s.logger.Debug("batch appended",
		"kind", string(kind),
		"stream", stream,
		"id", id,
		"bytes", len(payload),
		"digest", digest,
	)
	return nil
}

// classify wraps a Redis error with its upload failure class.
func classify(err error) error {
	message := err.Error()
	switch {
	case strings.HasPrefix(message, "NOAUTH"), strings.HasPrefix(message, "WRONGPASS"):
		return fmt.Errorf("%w: %w", upload.ErrUnauthorized, err)
	case strings.HasPrefix(message, "NOPERM"):
		return fmt.Errorf("%w: %w", upload.ErrForbidden, err)
	default:
		return fmt.Errorf("%w: %w", upload.ErrTransport, err)
	}
}
