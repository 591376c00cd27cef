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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheBasicCRUD(t *testing.T) {
	cache := NewCache(5)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%d", i)
		val := fmt.Sprintf("val%d", i)
		cache.Set(key, val)
	}

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key%d", i)
		val := fmt.Sprintf("val%d", i)
		res, ok := cache.Get(key)
		if ok {
			assert.Equal(t, val, res)
			continue
		}
		assert.Nil(t, res)
	}
}

func TestCacheUpdateAndDel(t *testing.T) {
	cache := NewCache(16)
	require.True(t, cache.Set("a", 1))
	require.True(t, cache.Set("a", 2))

	v, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 1, cache.Len())

	_, ok = cache.Del("a")
	require.True(t, ok)
	_, ok = cache.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, cache.Len())

	_, ok = cache.Del("missing")
	require.False(t, ok)
}

func TestCacheByteKeys(t *testing.T) {
	cache := NewCache(16)
	key := []byte{0, 0, 0, 0, 0, 0, 0, 7, 0, 0, 0, 1}
	cache.Set(key, "block")

	v, ok := cache.Get(append([]byte{}, key...))
	require.True(t, ok)
	require.Equal(t, "block", v)

	_, ok = cache.Get([]byte{0, 0, 0, 0, 0, 0, 0, 7, 0, 0, 0, 2})
	require.False(t, ok)
}

func TestCacheBounded(t *testing.T) {
	cache := NewCache(100)
	for i := 0; i < 1000; i++ {
		cache.Set(i, i)
		// 重复访问一部分 key，让它们晋升到 protected
		if i%3 == 0 {
			cache.Get(i)
		}
	}
	require.LessOrEqual(t, cache.Len(), 100)

	// 所有命中的值必须是自己的
	for i := 0; i < 1000; i++ {
		if v, ok := cache.Get(i); ok {
			require.Equal(t, i, v)
		}
	}
}

func TestCacheConcurrent(t *testing.T) {
	cache := NewCache(64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("%d-%d", g, i%50)
				cache.Set(key, i)
				cache.Get(key)
				if i%7 == 0 {
					cache.Del(key)
				}
			}
		}(g)
	}
	wg.Wait()
	require.LessOrEqual(t, cache.Len(), 64)
}
