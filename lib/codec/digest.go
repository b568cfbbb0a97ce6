// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// batchDomainKey separates batch digests from any other BLAKE3 use of
// the same bytes. ASCII "forays.upload.batch", zero-padded to 32 bytes.
var batchDomainKey = [32]byte{
	'f', 'o', 'r', 'a', 'y', 's', '.', 'u', 'p', 'l', 'o', 'a', 'd', '.',
	'b', 'a', 't', 'c', 'h',
}

// DigestPrefix labels the algorithm in digest strings.
const DigestPrefix = "blake3:"

// Digest returns "blake3:<hex>" for an encoded, uncompressed batch
// body. A retried batch encodes to the same bytes and therefore the
// same digest, which lets the receiver drop duplicates.
func Digest(body []byte) string {
	hasher, err := blake3.NewKeyed(batchDomainKey[:])
	if err != nil {
		panic("codec: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(body)
	return DigestPrefix + hex.EncodeToString(hasher.Sum(nil))
}
