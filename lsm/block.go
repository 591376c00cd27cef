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
	"encoding/binary"
	"sort"

	"github.com/hardcore-os/compactkv/utils"
	"github.com/pkg/errors"
)

// block 在内存中的表示，data 只包含 entry 区域
//
// layout: | entry ... | entryOffsets u32 ... | count u32 | checksum | checksumLen u32 |
// entry:  | header | diffKey | value |
type block struct {
	offset            int // 当前block在sst中的首地址
	checksum          []byte
	entriesIndexStart int
	chkLen            int
	data              []byte
	baseKey           []byte
	entryOffsets      []uint32
	end               int
}

type header struct {
	overlap uint16 // Overlap with base key.
	diff    uint16 // Length of the diff.
}

const headerSize = 4

// blockTrailerSize is the fixed part of the trailer: count, checksum and its length.
const blockTrailerSize = 4 + utils.ChecksumSize + 4

func (h *header) decode(buf []byte) {
	h.overlap = binary.BigEndian.Uint16(buf[0:2])
	h.diff = binary.BigEndian.Uint16(buf[2:4])
}

func (h header) encode() []byte {
	var b [headerSize]byte
	binary.BigEndian.PutUint16(b[0:2], h.overlap)
	binary.BigEndian.PutUint16(b[2:4], h.diff)
	return b[:]
}

// decodeBlock parses raw block bytes read from a table. Every structural
// problem is reported as a wrapped utils.ErrTableCorrupted.
func decodeBlock(fid uint64, idx int, offset int, raw []byte) (*block, error) {
	b := &block{offset: offset}
	readPos := len(raw)
	if readPos < blockTrailerSize {
		return nil, utils.Corruptf("table %d block %d: size %d too small", fid, idx, readPos)
	}

	readPos -= 4
	b.chkLen = int(utils.BytesToU32(raw[readPos:]))
	if b.chkLen != utils.ChecksumSize {
		return nil, utils.Corruptf("table %d block %d: checksum length %d", fid, idx, b.chkLen)
	}
	readPos -= b.chkLen
	b.checksum = raw[readPos : readPos+b.chkLen]
	if err := utils.VerifyChecksum(raw[:readPos], b.checksum); err != nil {
		return nil, errors.Wrapf(utils.ErrTableCorrupted, "table %d block %d: %v", fid, idx, err)
	}

	readPos -= 4
	numEntries := int(utils.BytesToU32(raw[readPos:]))
	if numEntries == 0 || numEntries > readPos/4 {
		return nil, utils.Corruptf("table %d block %d: entry count %d", fid, idx, numEntries)
	}
	b.entriesIndexStart = readPos - numEntries*4
	b.entryOffsets = utils.BytesToU32Slice(raw[b.entriesIndexStart:readPos])
	b.data = raw[:b.entriesIndexStart]
	b.end = len(raw)

	var prev uint32
	for i, off := range b.entryOffsets {
		if (i == 0 && off != 0) || (i > 0 && off < prev+headerSize) || int(off)+headerSize > len(b.data) {
			return nil, utils.Corruptf("table %d block %d: entry %d offset %d", fid, idx, i, off)
		}
		prev = off
	}

	var h header
	h.decode(b.data)
	if h.overlap != 0 || headerSize+int(h.diff) > len(b.data) {
		return nil, utils.Corruptf("table %d block %d: bad base key", fid, idx)
	}
	b.baseKey = b.data[headerSize : headerSize+int(h.diff)]
	return b, nil
}

type blockIterator struct {
	data         []byte
	idx          int
	err          error
	baseKey      []byte
	key          []byte
	val          []byte
	entryOffsets []uint32
	block        *block

	tableID uint64
	blockID int
}

func (itr *blockIterator) setBlock(b *block, tableID uint64, blockID int) {
	itr.block = b
	itr.tableID = tableID
	itr.blockID = blockID
	itr.err = nil
	itr.idx = -1
	itr.baseKey = b.baseKey
	itr.key = itr.key[:0]
	itr.val = nil
	itr.data = b.data
	itr.entryOffsets = b.entryOffsets
}

func (itr *blockIterator) valid() bool {
	return itr.block != nil && itr.err == nil && itr.idx >= 0 && itr.idx < len(itr.entryOffsets)
}

func (itr *blockIterator) seekToFirst() error {
	return itr.setIdx(0)
}

func (itr *blockIterator) next() error {
	return itr.setIdx(itr.idx + 1)
}

// seek moves to the first entry with key >= key. Past the end the iterator is
// invalid without error.
func (itr *blockIterator) seek(key []byte) error {
	var err error
	found := sort.Search(len(itr.entryOffsets), func(idx int) bool {
		if err != nil {
			return true
		}
		if err = itr.setIdx(idx); err != nil {
			return true
		}
		return utils.CompareKeys(itr.key, key) >= 0
	})
	if err != nil {
		return err
	}
	return itr.setIdx(found)
}

func (itr *blockIterator) setIdx(i int) error {
	itr.idx = i
	if i < 0 || i >= len(itr.entryOffsets) {
		itr.key = itr.key[:0]
		itr.val = nil
		return nil
	}
	startOffset := int(itr.entryOffsets[i])

	var endOffset int
	if i+1 == len(itr.entryOffsets) {
		endOffset = len(itr.data)
	} else {
		// EndOffset of the current entry is the start offset of the next entry.
		endOffset = int(itr.entryOffsets[i+1])
	}
	entryData := itr.data[startOffset:endOffset]

	var h header
	h.decode(entryData)
	valueOff := headerSize + int(h.diff)
	if int(h.overlap) > len(itr.baseKey) || valueOff > len(entryData) {
		itr.err = utils.Corruptf("table %d block %d: entry %d overlap %d diff %d",
			itr.tableID, itr.blockID, i, h.overlap, h.diff)
		return itr.err
	}
	itr.key = append(itr.key[:0], itr.baseKey[:h.overlap]...)
	itr.key = append(itr.key, entryData[headerSize:valueOff]...)
	itr.val = entryData[valueOff:]
	return nil
}
