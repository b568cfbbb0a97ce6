// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorBody(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		got := ErrorBody(strings.NewReader("  invalid api key\n"))
		if got != "invalid api key" {
			t.Fatalf("got %q, want %q", got, "invalid api key")
		}
	})

	t.Run("oversized body truncated", func(t *testing.T) {
		body := bytes.Repeat([]byte("x"), int(MaxErrorBodySize)*2)
		if got := ErrorBody(bytes.NewReader(body)); int64(len(got)) != MaxErrorBodySize {
			t.Fatalf("got %d bytes, want %d", len(got), MaxErrorBodySize)
		}
	})

	t.Run("read error ignored", func(t *testing.T) {
		if got := ErrorBody(&failReader{}); got != "" {
			t.Fatalf("got %q, want empty", got)
		}
	})
}

func TestDrainAndClose(t *testing.T) {
	body := &trackingCloser{Reader: strings.NewReader("accepted")}
	if err := DrainAndClose(body); err != nil {
		t.Fatalf("DrainAndClose: %v", err)
	}
	if !body.closed {
		t.Fatal("body not closed")
	}
	if rest, _ := io.ReadAll(body.Reader); len(rest) != 0 {
		t.Fatalf("body not drained, %d bytes left", len(rest))
	}
}

type failReader struct{}

func (f *failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}

type trackingCloser struct {
	io.Reader
	closed bool
}

func (c *trackingCloser) Close() error {
	c.closed = true
	return nil
}
