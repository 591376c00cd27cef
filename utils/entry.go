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

import "bytes"

// Entry 是一条 key/value 记录，value 为空表示删除标记(tombstone)
type Entry struct {
	Key   []byte
	Value []byte
}

// IsTombstone reports whether the entry marks its key as deleted.
func (e *Entry) IsTombstone() bool {
	return len(e.Value) == 0
}

// CompareKeys 按字节序比较两个key
func CompareKeys(key1, key2 []byte) int {
	return bytes.Compare(key1, key2)
}

// SameKey _
func SameKey(src, dst []byte) bool {
	return bytes.Equal(src, dst)
}

// Copy copies a byte slice and returns the copied slice.
func Copy(a []byte) []byte {
	b := make([]byte, len(a))
	copy(b, a)
	return b
}

// SafeCopy does append(a[:0], src...).
func SafeCopy(a, src []byte) []byte {
	return append(a[:0], src...)
}
