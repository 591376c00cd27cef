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
	"math"
	"path/filepath"

	"github.com/hardcore-os/compactkv/file"
	"github.com/hardcore-os/compactkv/pb"
	"github.com/hardcore-os/compactkv/utils"
	"github.com/pkg/errors"
	"github.com/willf/bloom"
)

// tableBuilder 将有序的 key/value 写成一个 sst，只能 build 一次
type tableBuilder struct {
	curBlock  *block
	blockSize int
	bloomFP   float64
	blockList []*block
	keyCount  uint32
	keyHashes []uint64
	lastKey   []byte
	finished  bool
}

type buildData struct {
	blockList []*block
	index     []byte
	checksum  []byte
	size      int
}

func newTableBuilder(blockSize int, bloomFalsePositive float64) *tableBuilder {
	return &tableBuilder{
		blockSize: blockSize,
		bloomFP:   bloomFalsePositive,
	}
}

// add appends an entry. Keys must be strictly ascending, an empty value is a
// tombstone and is stored as such.
func (tb *tableBuilder) add(key, value []byte) {
	utils.CondPanic(tb.finished, errors.New("tableBuilder.add: builder already built"))
	utils.CondPanic(len(key) > math.MaxUint16, fmt.Errorf("tableBuilder.add: key length %d > %d", len(key), math.MaxUint16))
	utils.CondPanic(tb.keyCount > 0 && utils.CompareKeys(key, tb.lastKey) <= 0,
		fmt.Errorf("tableBuilder.add: key %q not after %q", key, tb.lastKey))

	// 检查是否需要分配一个新的 block
	if tb.tryFinishBlock(key, value) {
		tb.finishBlock()
		tb.curBlock = &block{
			data: make([]byte, tb.blockSize),
		}
	}
	if tb.bloomFP > 0 {
		tb.keyHashes = append(tb.keyHashes, utils.KeyHash(key))
	}

	var diffKey []byte
	if len(tb.curBlock.entryOffsets) == 0 {
		tb.curBlock.baseKey = append(tb.curBlock.baseKey[:0], key...)
		diffKey = key
	} else {
		diffKey = tb.keyDiff(key)
	}

	h := header{
		overlap: uint16(len(key) - len(diffKey)),
		diff:    uint16(len(diffKey)),
	}

	tb.curBlock.entryOffsets = append(tb.curBlock.entryOffsets, uint32(tb.curBlock.end))

	tb.append(h.encode())
	tb.append(diffKey)
	tb.append(value)

	tb.keyCount++
	tb.lastKey = append(tb.lastKey[:0], key...)
}

// tryFinishBlock reports whether the entry would push the current block past
// blockSize. A block always keeps at least one entry.
func (tb *tableBuilder) tryFinishBlock(key, value []byte) bool {
	if tb.curBlock == nil {
		return true
	}
	if len(tb.curBlock.entryOffsets) <= 0 {
		return false
	}
	utils.CondPanic(!((uint32(len(tb.curBlock.entryOffsets))+1)*4+blockTrailerSize < math.MaxUint32), errors.New("Integer overflow"))
	entriesOffsetsSize := (len(tb.curBlock.entryOffsets)+1)*4 + blockTrailerSize
	estimatedSize := tb.curBlock.end + headerSize + len(key) + len(value) + entriesOffsetsSize

	// Integer overflow check for table size.
	utils.CondPanic(!(uint64(tb.curBlock.end)+uint64(estimatedSize) < math.MaxUint32), errors.New("Integer overflow"))

	return estimatedSize > tb.blockSize
}

func (tb *tableBuilder) finishBlock() {
	if tb.curBlock == nil || len(tb.curBlock.entryOffsets) == 0 {
		return
	}
	// Append the entryOffsets and its length.
	tb.curBlock.entriesIndexStart = tb.curBlock.end
	tb.append(utils.U32SliceToBytes(tb.curBlock.entryOffsets))
	tb.append(utils.U32ToBytes(uint32(len(tb.curBlock.entryOffsets))))

	checksum := tb.calculateChecksum(tb.curBlock.data[:tb.curBlock.end])

	// Append the block checksum and its length.
	tb.append(checksum)
	tb.append(utils.U32ToBytes(uint32(len(checksum))))

	tb.blockList = append(tb.blockList, tb.curBlock)
	tb.curBlock = nil
}

// append appends to curBlock.data
func (tb *tableBuilder) append(data []byte) {
	dst := tb.allocate(len(data))
	utils.CondPanic(len(data) != copy(dst, data), errors.New("tableBuilder.append data"))
}

func (tb *tableBuilder) allocate(need int) []byte {
	bb := tb.curBlock
	if len(bb.data[bb.end:]) < need {
		// We need to reallocate.
		sz := 2 * len(bb.data)
		if bb.end+need > sz {
			sz = bb.end + need
		}
		tmp := make([]byte, sz)
		copy(tmp, bb.data)
		bb.data = tmp
	}
	bb.end += need
	return bb.data[bb.end-need : bb.end]
}

func (tb *tableBuilder) calculateChecksum(data []byte) []byte {
	return utils.U64ToBytes(utils.CalculateChecksum(data))
}

func (tb *tableBuilder) keyDiff(newKey []byte) []byte {
	var i int
	for i = 0; i < len(newKey) && i < len(tb.curBlock.baseKey); i++ {
		if newKey[i] != tb.curBlock.baseKey[i] {
			break
		}
	}
	return newKey[i:]
}

func (tb *tableBuilder) empty() bool {
	return tb.keyCount == 0
}

// estimatedSize is the size of the finished blocks plus the current block with
// its pending trailer. The index is not counted.
func (tb *tableBuilder) estimatedSize() int {
	var sz int
	for _, b := range tb.blockList {
		sz += b.end
	}
	if cb := tb.curBlock; cb != nil && len(cb.entryOffsets) > 0 {
		sz += cb.end + len(cb.entryOffsets)*4 + blockTrailerSize
	}
	return sz
}

// build writes the table to path and opens it with a single reference owned
// by the caller. On error the partially written file is removed.
func (tb *tableBuilder) build(id uint64, cache *BlockCache, path string) (*Table, error) {
	utils.CondPanic(tb.finished, errors.New("tableBuilder.build: builder already built"))
	bd, err := tb.done()
	if err != nil {
		return nil, err
	}
	if len(bd.blockList) == 0 {
		return nil, errors.Wrapf(utils.ErrTableEmpty, "build table %d", id)
	}

	ss, err := file.OpenSStable(&file.Options{
		FID:      id,
		FileName: path,
		Dir:      filepath.Dir(path),
		Flag:     utils.DefaultFileFlag,
		MaxSz:    bd.size,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create table %d", id)
	}
	if err := tb.flush(ss, bd); err != nil {
		_ = ss.Delete()
		return nil, errors.Wrapf(err, "write table %s", path)
	}
	if err := ss.Init(); err != nil {
		_ = ss.Delete()
		return nil, err
	}
	t, err := newTable(ss, cache)
	if err != nil {
		_ = ss.Delete()
		return nil, err
	}
	return t, nil
}

// flush copies the encoded table into the mapping and syncs it.
func (tb *tableBuilder) flush(ss *file.SSTable, bd buildData) error {
	dst, err := ss.Bytes(0, bd.size)
	if err != nil {
		return err
	}
	written := bd.Copy(dst)
	utils.CondPanic(written != len(dst), fmt.Errorf("tableBuilder.flush written %d != %d", written, len(dst)))
	return ss.Sync()
}

func (bd *buildData) Copy(dst []byte) int {
	var written int
	for _, bl := range bd.blockList {
		written += copy(dst[written:], bl.data[:bl.end])
	}
	written += copy(dst[written:], bd.index)
	written += copy(dst[written:], utils.U32ToBytes(uint32(len(bd.index))))

	written += copy(dst[written:], bd.checksum)
	written += copy(dst[written:], utils.U32ToBytes(uint32(len(bd.checksum))))
	return written
}

func (tb *tableBuilder) done() (buildData, error) {
	tb.finishBlock()
	tb.finished = true
	if len(tb.blockList) == 0 {
		return buildData{}, nil
	}
	bd := buildData{
		blockList: tb.blockList,
	}

	var filter []byte
	if tb.bloomFP > 0 && len(tb.keyHashes) > 0 {
		bf := bloom.NewWithEstimates(uint(len(tb.keyHashes)), tb.bloomFP)
		for _, h := range tb.keyHashes {
			bf.Add(utils.U64ToBytes(h))
		}
		var err error
		if filter, err = bf.GobEncode(); err != nil {
			return buildData{}, errors.Wrap(err, "encode bloom filter")
		}
	}
	index, dataSize := tb.buildIndex(filter)
	bd.index = index
	bd.checksum = tb.calculateChecksum(index)
	bd.size = dataSize + len(index) + len(bd.checksum) + 4 + 4
	return bd, nil
}

func (tb *tableBuilder) buildIndex(filter []byte) ([]byte, int) {
	tableIndex := &pb.TableIndex{}
	if len(filter) > 0 {
		tableIndex.BloomFilter = filter
	}
	tableIndex.KeyCount = tb.keyCount
	tableIndex.MaxKey = tb.lastKey
	tableIndex.Offsets = tb.writeBlockOffsets()
	var dataSize int
	for i := range tb.blockList {
		dataSize += tb.blockList[i].end
	}
	return tableIndex.Marshal(), dataSize
}

func (tb *tableBuilder) writeBlockOffsets() []*pb.BlockOffset {
	var startOffset uint32
	var offsets []*pb.BlockOffset
	for _, bl := range tb.blockList {
		offsets = append(offsets, &pb.BlockOffset{
			Key:    bl.baseKey,
			Offset: startOffset,
			Len:    uint32(bl.end),
		})
		startOffset += uint32(bl.end)
	}
	return offsets
}
