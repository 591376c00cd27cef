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

import (
	"container/list"
	"sync"

	xxhash "github.com/cespare/xxhash/v2"
)

// Cache 是 W-TinyLFU 实现: 新数据先进入 window lru，被淘汰后与 slru 的
// victim 比较访问频率(count-min sketch)决定去留，doorkeeper 过滤只出现一次的访问
//
// Cache is safe for concurrent use.
type Cache struct {
	m         sync.Mutex
	lru       *windowLRU
	slru      *segmentedLRU
	door      *BloomFilter
	c         *cmSketch
	t         int32
	threshold int32
	data      map[uint64]*list.Element
}

// NewCache creates a cache holding at most size items.
func NewCache(size int) *Cache {
	const lruPct = 1
	lruSz := (lruPct * size) / 100

	if lruSz < 1 {
		lruSz = 1
	}

	slruSz := int(float64(size) * ((100 - lruPct) / 100.0))

	if slruSz < 1 {
		slruSz = 1
	}

	slruO := int(0.2 * float64(slruSz))

	if slruO < 1 {
		slruO = 1
	}

	data := make(map[uint64]*list.Element, size)

	return &Cache{
		lru:       newWindowLRU(lruSz, data),
		slru:      newSLRU(data, slruO, slruSz-slruO),
		door:      newFilter(size, 0.01),
		c:         newCmSketch(int64(size)),
		threshold: int32(size * 10),
		data:      data,
	}
}

// Set stores value under key. It returns false when the admission policy
// rejected the item.
func (c *Cache) Set(key interface{}, value interface{}) bool {
	c.m.Lock()
	defer c.m.Unlock()
	return c.set(key, value)
}

func (c *Cache) set(key, value interface{}) bool {
	keyHash, conflictHash := c.keyToHash(key)

	if e, ok := c.data[keyHash]; ok {
		item := e.Value.(*storeItem)
		if item.conflict == conflictHash {
			item.value = value
			c.touch(e)
			return true
		}
		// 哈希冲突，旧数据直接让位
		c.remove(e)
	}

	i := storeItem{
		stage:    stageWindow,
		key:      keyHash,
		conflict: conflictHash,
		value:    value,
	}

	eitem, evicted := c.lru.add(i)

	if !evicted {
		return true
	}

	victim := c.slru.victim()

	if victim == nil {
		c.slru.add(eitem)
		return true
	}

	if !c.door.Allow(uint32(eitem.key)) {
		return false
	}

	vcount := c.c.Estimate(victim.key)
	ocount := c.c.Estimate(eitem.key)

	if ocount < vcount {
		return false
	}

	c.slru.add(eitem)
	return true
}

// Get 获取缓存，命中时会调整其在 lru 中的位置，所以需要写锁
func (c *Cache) Get(key interface{}) (interface{}, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.get(key)
}

func (c *Cache) get(key interface{}) (interface{}, bool) {
	c.t++
	if c.t == c.threshold {
		c.c.Reset()
		c.door.reset()
		c.t = 0
	}

	keyHash, conflictHash := c.keyToHash(key)

	val, ok := c.data[keyHash]
	if !ok {
		c.c.Increment(keyHash)
		return nil, false
	}

	item := val.Value.(*storeItem)

	if item.conflict != conflictHash {
		c.c.Increment(keyHash)
		return nil, false
	}
	c.c.Increment(item.key)

	v := item.value
	c.touch(val)
	return v, true
}

func (c *Cache) touch(e *list.Element) {
	if e.Value.(*storeItem).stage == stageWindow {
		c.lru.get(e)
	} else {
		c.slru.get(e)
	}
}

// Del removes key and returns its conflict hash.
func (c *Cache) Del(key interface{}) (interface{}, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.del(key)
}

func (c *Cache) del(key interface{}) (interface{}, bool) {
	keyHash, conflictHash := c.keyToHash(key)

	val, ok := c.data[keyHash]
	if !ok {
		return 0, false
	}

	item := val.Value.(*storeItem)

	if conflictHash != 0 && (conflictHash != item.conflict) {
		return 0, false
	}

	c.remove(val)
	return item.conflict, true
}

func (c *Cache) remove(e *list.Element) {
	item := e.Value.(*storeItem)
	switch item.stage {
	case stageWindow:
		c.lru.list.Remove(e)
	case stageProbation:
		c.slru.stageOne.Remove(e)
	case stageProtected:
		c.slru.stageTwo.Remove(e)
	}
	delete(c.data, item.key)
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.data)
}

func (c *Cache) keyToHash(key interface{}) (uint64, uint64) {
	if key == nil {
		return 0, 0
	}
	switch k := key.(type) {
	case uint64:
		return k, 0
	case string:
		return xxhash.Sum64String(k), conflictHash([]byte(k))
	case []byte:
		return xxhash.Sum64(k), conflictHash(k)
	case byte:
		return uint64(k), 0
	case int:
		return uint64(k), 0
	case int32:
		return uint64(k), 0
	case uint32:
		return uint64(k), 0
	case int64:
		return uint64(k), 0
	default:
		panic("Key type not supported")
	}
}

// conflictHash is a second, independent hash used to tell apart keys whose
// primary hashes collide.
func conflictHash(k []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString("compactkv/conflict")
	_, _ = d.Write(k)
	return d.Sum64()
}
