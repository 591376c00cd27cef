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
	"github.com/pkg/errors"
)

var (
	// ErrTableCorrupted is wrapped by every error caused by a malformed table
	// file: bad footer, bad index, bad block layout or checksum mismatch.
	ErrTableCorrupted = errors.New("table corrupted")
	// ErrChecksumMismatch is returned at checksum mismatch.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrTableEmpty is returned when a table without any block is opened.
	ErrTableEmpty = errors.New("table has no blocks")
	// ErrInvalidCompactOptions is returned by Compact for non-positive sizes.
	ErrInvalidCompactOptions = errors.New("invalid compact options")
	// ErrTableClosed is returned when blocks are requested from a released table.
	ErrTableClosed = errors.New("table closed")
)

// IsCorrupted reports whether err was caused by malformed on-disk data.
func IsCorrupted(err error) bool {
	return errors.Is(err, ErrTableCorrupted)
}

// Corruptf wraps ErrTableCorrupted with a formatted message.
func Corruptf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTableCorrupted, format, args...)
}

// Panic 如果err 不为nil 则panic
func Panic(err error) {
	if err != nil {
		panic(err)
	}
}

// CondPanic panics with err when condition holds. Used for caller defects
// that must never be turned into recoverable errors.
func CondPanic(condition bool, err error) {
	if condition {
		Panic(err)
	}
}
