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
	"github.com/google/btree"
	"github.com/hardcore-os/compactkv/utils"
)

// mergeCursor 一个输入迭代器，idx 越小数据越新
type mergeCursor struct {
	iter utils.Iterator
	idx  int
}

func cursorLess(a, b *mergeCursor) bool {
	if c := utils.CompareKeys(a.iter.Key(), b.iter.Key()); c != 0 {
		return c < 0
	}
	return a.idx < b.idx
}

// MergeIterator k 路归并多个有序迭代器，相同的 key 只输出最新的一份
//
// Cursors are ordered by (key, index) so the minimum is always the newest
// version of the smallest key. Tombstones are emitted like any other value.
type MergeIterator struct {
	iters   []utils.Iterator
	cursors *btree.BTreeG[*mergeCursor]
	cur     *mergeCursor
	key     []byte
	pending []*mergeCursor
	err     error
}

// NewMergeIterator takes ownership of iters. iters[0] is the newest source.
func NewMergeIterator(iters []utils.Iterator) *MergeIterator {
	mi := &MergeIterator{
		iters:   iters,
		cursors: btree.NewG[*mergeCursor](2, cursorLess),
	}
	for i, it := range iters {
		if it.Valid() {
			mi.cursors.ReplaceOrInsert(&mergeCursor{iter: it, idx: i})
		}
	}
	mi.fix()
	return mi
}

func (mi *MergeIterator) fix() {
	mi.cur, _ = mi.cursors.Min()
}

func (mi *MergeIterator) Valid() bool {
	return mi.err == nil && mi.cur != nil
}

func (mi *MergeIterator) Key() []byte {
	if mi.cur == nil {
		return nil
	}
	return mi.cur.iter.Key()
}

func (mi *MergeIterator) Value() []byte {
	if mi.cur == nil {
		return nil
	}
	return mi.cur.iter.Value()
}

// Next advances every cursor positioned on the current key. The first error
// from an input is kept and returned by every later call.
func (mi *MergeIterator) Next() error {
	if mi.err != nil {
		return mi.err
	}
	if mi.cur == nil {
		return nil
	}
	// 输入迭代器会复用 key 的内存，先拷贝一份
	mi.key = utils.SafeCopy(mi.key, mi.cur.iter.Key())

	// 必须在推进之前从树中摘除，推进后 key 改变会破坏树的顺序
	mi.pending = mi.pending[:0]
	for {
		c, ok := mi.cursors.Min()
		if !ok || !utils.SameKey(c.iter.Key(), mi.key) {
			break
		}
		mi.cursors.DeleteMin()
		mi.pending = append(mi.pending, c)
	}

	for _, c := range mi.pending {
		if err := c.iter.Next(); err != nil {
			mi.err = err
			mi.cur = nil
			return err
		}
		if c.iter.Valid() {
			mi.cursors.ReplaceOrInsert(c)
		}
	}
	mi.fix()
	return nil
}

// Close closes every input and returns the first error.
func (mi *MergeIterator) Close() error {
	var firstErr error
	for _, it := range mi.iters {
		if err := it.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
