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
	"github.com/hardcore-os/compactkv/utils"
	coreCache "github.com/hardcore-os/compactkv/utils/cache"
)

// BlockCache 在所有 table 之间共享的 block 缓存，nil 表示不缓存
type BlockCache struct {
	blocks *coreCache.Cache
}

// newBlockCache returns nil when size is not positive.
func newBlockCache(size int) *BlockCache {
	if size <= 0 {
		return nil
	}
	return &BlockCache{blocks: coreCache.NewCache(size)}
}

// blockCacheKey fid(8) | block index(4)
func blockCacheKey(fid uint64, idx int) []byte {
	key := make([]byte, 0, 12)
	key = append(key, utils.U64ToBytes(fid)...)
	return append(key, utils.U32ToBytes(uint32(idx))...)
}

func (bc *BlockCache) get(fid uint64, idx int) (*block, bool) {
	if bc == nil {
		return nil, false
	}
	v, ok := bc.blocks.Get(blockCacheKey(fid, idx))
	if !ok {
		return nil, false
	}
	b, ok := v.(*block)
	return b, ok
}

func (bc *BlockCache) set(fid uint64, idx int, b *block) {
	if bc == nil {
		return
	}
	bc.blocks.Set(blockCacheKey(fid, idx), b)
}

// evict drops every cached block of a table. Blocks point into the table's
// mapping, so this must run before the mapping is released.
func (bc *BlockCache) evict(fid uint64, numBlocks int) {
	if bc == nil {
		return
	}
	for i := 0; i < numBlocks; i++ {
		bc.blocks.Del(blockCacheKey(fid, i))
	}
}

// Len returns the number of cached blocks.
func (bc *BlockCache) Len() int {
	if bc == nil {
		return 0
	}
	return bc.blocks.Len()
}
