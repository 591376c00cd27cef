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

package cache

import "math"

// BloomFilter 作为 doorkeeper，记录 window 淘汰数据是否被访问过
type BloomFilter struct {
	bitmap []byte
	k      uint8
}

// MayContain returns whether the filter may contain given hash. False
// positives are possible.
func (f *BloomFilter) MayContain(h uint32) bool {
	if f.Len() < 2 {
		return false
	}
	k := f.k
	if k > 30 {
		return true
	}
	nBits := uint32(8 * (f.Len() - 1))
	delta := h>>17 | h<<15
	for j := uint8(0); j < k; j++ {
		bitPos := h % nBits
		if f.bitmap[bitPos/8]&(1<<(bitPos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

func (f *BloomFilter) Len() int32 {
	return int32(len(f.bitmap))
}

// Insert sets the k bits of h.
func (f *BloomFilter) Insert(h uint32) bool {
	k := f.k
	if k > 30 {
		return true
	}
	nBits := uint32(8 * (f.Len() - 1))
	delta := h>>17 | h<<15
	for j := uint8(0); j < k; j++ {
		bitPos := h % nBits
		f.bitmap[bitPos/8] |= 1 << (bitPos % 8)
		h += delta
	}
	return true
}

// Allow 返回 h 之前是否出现过，没出现过则记录下来
func (f *BloomFilter) Allow(h uint32) bool {
	if f == nil {
		return true
	}
	already := f.MayContain(h)
	if !already {
		f.Insert(h)
	}
	return already
}

func (f *BloomFilter) reset() {
	if f == nil {
		return
	}
	// 最后一个字节记录的是 k
	for i := 0; i < len(f.bitmap)-1; i++ {
		f.bitmap[i] = 0
	}
}

func newFilter(numEntries int, falsePositive float64) *BloomFilter {
	bitsPerKey := bloomBitsPerKey(numEntries, falsePositive)
	return initFilter(numEntries, bitsPerKey)
}

// bloomBitsPerKey returns the bits per key required for the false positive rate.
func bloomBitsPerKey(numEntries int, fp float64) int {
	if numEntries <= 0 {
		numEntries = 1
	}
	size := -1 * float64(numEntries) * math.Log(fp) / math.Pow(math.Ln2, 2)
	locs := math.Ceil(size / float64(numEntries))
	return int(locs)
}

func initFilter(numEntries int, bitsPerKey int) *BloomFilter {
	bf := &BloomFilter{}
	if bitsPerKey < 0 {
		bitsPerKey = 0
	}
	k := uint32(float64(bitsPerKey) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	bf.k = uint8(k)

	nBits := numEntries * bitsPerKey
	// 数据量很小时假阳性率会很高，保证最小长度
	if nBits < 64 {
		nBits = 64
	}
	nBytes := (nBits + 7) / 8
	filter := make([]byte, nBytes+1)
	filter[nBytes] = uint8(k)

	bf.bitmap = filter
	return bf
}
