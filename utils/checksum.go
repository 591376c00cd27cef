// Copyright 2021 hardcore-os Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License")
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package utils

import (
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// ChecksumSize is the encoded length of a checksum.
const ChecksumSize = 8

// CalculateChecksum _
func CalculateChecksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// VerifyChecksum checks data against the big-endian encoded expected sum.
func VerifyChecksum(data []byte, expected []byte) error {
	if len(expected) != ChecksumSize {
		return errors.Wrapf(ErrChecksumMismatch, "checksum length %d", len(expected))
	}
	actual := CalculateChecksum(data)
	if want := BytesToU64(expected); actual != want {
		return errors.Wrapf(ErrChecksumMismatch, "actual: %d, expected: %d", actual, want)
	}
	return nil
}

// KeyHash is the hash fed into table bloom filters.
func KeyHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}
