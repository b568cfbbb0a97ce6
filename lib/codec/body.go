// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/json"
	"fmt"
)

// Encoding is a request body format.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// ParseEncoding parses a configured encoding name.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case EncodingJSON, EncodingCBOR:
		return Encoding(name), nil
	default:
		return "", fmt.Errorf("unknown body encoding: %q", name)
	}
}

// ContentType returns the media type for the encoding.
func (e Encoding) ContentType() string {
	if e == EncodingCBOR {
		return "application/cbor"
	}
	return "application/json"
}

// Encode serializes v in the given encoding.
func Encode(encoding Encoding, v any) ([]byte, error) {
	switch encoding {
	case EncodingJSON:
		return json.Marshal(v)
	case EncodingCBOR:
		return Marshal(v)
	default:
		return nil, fmt.Errorf("unknown body encoding: %q", encoding)
	}
}

// Decode is the inverse of Encode.
func Decode(encoding Encoding, data []byte, v any) error {
	switch encoding {
	case EncodingJSON:
		return json.Unmarshal(data, v)
	case EncodingCBOR:
		return Unmarshal(data, v)
	default:
		return fmt.Errorf("unknown body encoding: %q", encoding)
	}
}
