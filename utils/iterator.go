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

// Iterator 迭代器，按 key 升序前进
//
// Key and Value are only meaningful while Valid returns true, and the
// returned slices may be reused by the next call to Next.
type Iterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	// Next moves to the next key. Once the iterator is exhausted Valid stays
	// false; an error leaves the iterator invalid.
	Next() error
	Close() error
}

// SeekIterator is an Iterator that can be repositioned.
type SeekIterator interface {
	Iterator
	Rewind() error
	Seek(key []byte) error
}
