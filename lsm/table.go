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
	"fmt"
	"os"
	"sync/atomic"

	"github.com/hardcore-os/compactkv/file"
	"github.com/hardcore-os/compactkv/utils"
	"github.com/pkg/errors"
	"github.com/willf/bloom"
)

// Table 不可变的 sst 句柄，通过引用计数共享
//
// The last DecrRef deletes the file. Close only releases the mapping.
type Table struct {
	ss     *file.SSTable
	cache  *BlockCache
	fid    uint64
	filter *bloom.BloomFilter
	size   int64
	ref    atomic.Int32
	closed atomic.Bool
}

// newTable wraps an initialized sstable and takes the first reference.
func newTable(ss *file.SSTable, cache *BlockCache) (*Table, error) {
	t := &Table{ss: ss, cache: cache, fid: ss.FID(), size: ss.Size()}
	if ss.HasBloomFilter() {
		t.filter = &bloom.BloomFilter{}
		if err := t.filter.GobDecode(ss.Indexs().GetBloomFilter()); err != nil {
			return nil, errors.Wrapf(utils.ErrTableCorrupted, "table %d: decode bloom filter: %v", t.fid, err)
		}
	}
	t.ref.Store(1)
	return t, nil
}

// openTable opens an existing sst file.
func openTable(fid uint64, path string, cache *BlockCache) (*Table, error) {
	ss, err := file.OpenSStable(&file.Options{FID: fid, FileName: path, Flag: os.O_RDWR})
	if err != nil {
		return nil, err
	}
	if err := ss.Init(); err != nil {
		_ = ss.Close()
		return nil, err
	}
	t, err := newTable(ss, cache)
	if err != nil {
		_ = ss.Close()
		return nil, err
	}
	return t, nil
}

// IncrRef _
func (t *Table) IncrRef() {
	t.ref.Add(1)
}

// DecrRef releases a reference. The last one evicts cached blocks and removes
// the file from disk.
func (t *Table) DecrRef() error {
	newRef := t.ref.Add(-1)
	utils.CondPanic(newRef < 0, fmt.Errorf("table %d: negative ref %d", t.fid, newRef))
	if newRef > 0 {
		return nil
	}
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cache.evict(t.fid, t.NumBlocks())
	return t.ss.Delete()
}

// Close releases the mapping and keeps the file. References are ignored.
func (t *Table) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cache.evict(t.fid, t.NumBlocks())
	return t.ss.Close()
}

func decrRefs(tables []*Table) error {
	for _, t := range tables {
		if err := t.DecrRef(); err != nil {
			return err
		}
	}
	return nil
}

func closeTables(tables []*Table) error {
	var firstErr error
	for _, t := range tables {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// block 读取第 idx 个 block，优先走缓存
func (t *Table) block(idx int) (*block, error) {
	if t.closed.Load() {
		return nil, errors.Wrapf(utils.ErrTableClosed, "table %d", t.fid)
	}
	offsets := t.ss.Indexs().GetOffsets()
	if idx < 0 || idx >= len(offsets) {
		return nil, errors.Errorf("table %d: block %d out of range [0, %d)", t.fid, idx, len(offsets))
	}
	if b, ok := t.cache.get(t.fid, idx); ok {
		return b, nil
	}

	ko := offsets[idx]
	raw, err := t.ss.Bytes(int(ko.GetOffset()), int(ko.GetLen()))
	if err != nil {
		return nil, utils.Corruptf("table %d block %d: read [%d, +%d): %v", t.fid, idx, ko.GetOffset(), ko.GetLen(), err)
	}
	b, err := decodeBlock(t.fid, idx, int(ko.GetOffset()), raw)
	if err != nil {
		return nil, err
	}
	t.cache.set(t.fid, idx, b)
	return b, nil
}

// MayContainKey consults the bloom filter. Tables without one always say yes.
func (t *Table) MayContainKey(key []byte) bool {
	if t.filter == nil {
		return true
	}
	return t.filter.Test(utils.U64ToBytes(utils.KeyHash(key)))
}

// ID _
func (t *Table) ID() uint64 {
	return t.fid
}

// MinKey 当前最小的key
func (t *Table) MinKey() []byte {
	return t.ss.MinKey()
}

// MaxKey 当前最大的key
func (t *Table) MaxKey() []byte {
	return t.ss.MaxKey()
}

// Size 文件大小
func (t *Table) Size() int64 {
	return t.size
}

// KeyCount _
func (t *Table) KeyCount() int {
	return int(t.ss.Indexs().GetKeyCount())
}

// NumBlocks _
func (t *Table) NumBlocks() int {
	return len(t.ss.Indexs().GetOffsets())
}

func (t *Table) String() string {
	return fmt.Sprintf("%05d[%q, %q]", t.fid, t.MinKey(), t.MaxKey())
}
