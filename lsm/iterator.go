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

package lsm

import (
	"sort"

	"github.com/hardcore-os/compactkv/utils"
)

// tableIterator 单个 sst 上的迭代器，持有 table 的一个引用直到 Close
type tableIterator struct {
	t        *Table
	blockPos int
	bi       blockIterator
	err      error
	closed   bool
}

// newTableIterator positions the iterator at the first key of t.
func newTableIterator(t *Table) (*tableIterator, error) {
	t.IncrRef()
	it := &tableIterator{t: t}
	if err := it.Rewind(); err != nil {
		_ = t.DecrRef()
		return nil, err
	}
	return it, nil
}

func (it *tableIterator) Valid() bool {
	return it.err == nil && it.bi.valid()
}

func (it *tableIterator) Key() []byte {
	return it.bi.key
}

func (it *tableIterator) Value() []byte {
	return it.bi.val
}

// Next 跨越 block 边界时通过缓存加载下一个 block
func (it *tableIterator) Next() error {
	if it.err != nil {
		return it.err
	}
	if !it.bi.valid() {
		return nil
	}
	if err := it.bi.next(); err != nil {
		return it.fail(err)
	}
	for !it.bi.valid() {
		if it.blockPos+1 >= it.t.NumBlocks() {
			return nil
		}
		if err := it.loadBlock(it.blockPos + 1); err != nil {
			return err
		}
		if err := it.bi.seekToFirst(); err != nil {
			return it.fail(err)
		}
	}
	return nil
}

func (it *tableIterator) Rewind() error {
	it.err = nil
	if err := it.loadBlock(0); err != nil {
		return err
	}
	if err := it.bi.seekToFirst(); err != nil {
		return it.fail(err)
	}
	return nil
}

// Seek moves to the first key >= key.
func (it *tableIterator) Seek(key []byte) error {
	it.err = nil
	offsets := it.t.ss.Indexs().GetOffsets()
	// 第一个 baseKey > key 的 block 的前一个 block 才可能包含 key
	idx := sort.Search(len(offsets), func(i int) bool {
		return utils.CompareKeys(offsets[i].GetKey(), key) > 0
	})
	if idx > 0 {
		idx--
	}
	for ; idx < len(offsets); idx++ {
		if err := it.loadBlock(idx); err != nil {
			return err
		}
		if err := it.bi.seek(key); err != nil {
			return it.fail(err)
		}
		if it.bi.valid() {
			return nil
		}
	}
	return nil
}

func (it *tableIterator) loadBlock(idx int) error {
	b, err := it.t.block(idx)
	if err != nil {
		return it.fail(err)
	}
	it.blockPos = idx
	it.bi.setBlock(b, it.t.fid, idx)
	return nil
}

func (it *tableIterator) fail(err error) error {
	it.err = err
	return err
}

// Close releases the table reference, only once.
func (it *tableIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.t.DecrRef()
}
