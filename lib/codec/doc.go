// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec encodes upload bodies.
//
// Record types carry `json` struct tags only. JSON is the default wire
// format for the collection API; CBOR is available for smaller bodies
// and fxamacker/cbor reads the same `json` tags, so one tag set
// controls field naming for both. The CBOR encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2): the same batch always
// produces identical bytes, which lets a retried batch carry the same
// digest as its first attempt.
//
// Bodies can be compressed with zstd or LZ4 (frame format) and are
// labelled with the matching Content-Encoding.
//
//	body, err := codec.Encode(codec.EncodingCBOR, records)
//	body, err = codec.Compress(body, codec.CompressionZstd)
package codec
