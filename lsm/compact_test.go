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
	"math/rand"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/hardcore-os/compactkv/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func requireSortedNonOverlapping(t *testing.T, tables []*Table) {
	t.Helper()
	for i, tbl := range tables {
		require.LessOrEqual(t, utils.CompareKeys(tbl.MinKey(), tbl.MaxKey()), 0)
		if i > 0 {
			require.Negative(t, utils.CompareKeys(tables[i-1].MaxKey(), tbl.MinKey()),
				"%s overlaps %s", tables[i-1], tbl)
		}
	}
}

func TestCompactNewestWinsAndTombstones(t *testing.T) {
	lsm, _ := newTestLSM(t)
	newer := buildTable(t, lsm, utils.DefaultBlockSize, []kv{{"a", "1"}, {"b", ""}})
	older := buildTable(t, lsm, utils.DefaultBlockSize, []kv{{"a", "0"}, {"b", "2"}, {"c", "3"}})
	inputs := []*Table{newer, older}
	defer releaseTables(t, inputs)

	out, err := lsm.Compact(inputs, lsm.option.CompactOptions(false))
	require.NoError(t, err)
	require.Equal(t, []kv{{"a", "1"}, {"b", ""}, {"c", "3"}}, readTables(t, out))
	releaseTables(t, out)

	out, err = lsm.Compact(inputs, lsm.option.CompactOptions(true))
	require.NoError(t, err)
	require.Equal(t, []kv{{"a", "1"}, {"c", "3"}}, readTables(t, out))
	releaseTables(t, out)

	// 输入不受影响
	require.Equal(t, []kv{{"a", "1"}, {"b", ""}}, readTable(t, newer))
	require.Equal(t, int32(1), newer.ref.Load())
	require.Equal(t, int32(1), older.ref.Load())
}

func TestCompactSplitsAfterCrossingTarget(t *testing.T) {
	lsm, _ := newTestLSM(t)
	var entries []kv
	for i := 0; i < 10; i++ {
		// 1 字节 key + 99 字节 value
		entries = append(entries, kv{string(rune('a' + i)), strings.Repeat("v", 99)})
	}
	input := buildTable(t, lsm, utils.DefaultBlockSize, entries)
	defer releaseTables(t, []*Table{input})

	out, err := lsm.Compact([]*Table{input}, CompactOptions{
		BlockSize:     utils.DefaultBlockSize,
		TargetSSTSize: 250,
	})
	require.NoError(t, err)
	defer releaseTables(t, out)

	require.Len(t, out, 4)
	var counts []int
	for _, tbl := range out {
		counts = append(counts, tbl.KeyCount())
	}
	require.Equal(t, []int{3, 3, 3, 1}, counts)
	requireSortedNonOverlapping(t, out)
	require.Equal(t, entries, readTables(t, out))
}

func TestCompactEmptyInput(t *testing.T) {
	lsm, _ := newTestLSM(t)
	out, err := lsm.Compact(nil, lsm.option.CompactOptions(true))
	require.NoError(t, err)
	require.Empty(t, out)
	require.Empty(t, sstFiles(t, lsm.option.WorkDir))
}

func TestCompactAllTombstonesAtBottom(t *testing.T) {
	lsm, _ := newTestLSM(t)
	input := buildTable(t, lsm, utils.DefaultBlockSize, []kv{{"a", ""}, {"b", ""}})
	defer releaseTables(t, []*Table{input})

	out, err := lsm.Compact([]*Table{input}, lsm.option.CompactOptions(true))
	require.NoError(t, err)
	require.Empty(t, out)
	require.Len(t, sstFiles(t, lsm.option.WorkDir), 1)
}

func TestCompactInvalidOptions(t *testing.T) {
	lsm, _ := newTestLSM(t)
	for _, opt := range []CompactOptions{
		{BlockSize: 0, TargetSSTSize: 100},
		{BlockSize: 100, TargetSSTSize: 0},
		{BlockSize: -1, TargetSSTSize: -1},
	} {
		_, err := lsm.Compact(nil, opt)
		require.True(t, errors.Is(err, utils.ErrInvalidCompactOptions), "%+v", opt)
	}
}

func TestCompactMatchesBruteForce(t *testing.T) {
	lsm, _ := newTestLSM(t)
	r := rand.New(rand.NewSource(42))
	const target = 4096

	for round := 0; round < 5; round++ {
		var sources [][]kv
		var inputs []*Table
		for i := 0; i < 2+r.Intn(4); i++ {
			src := randomSource(r, 600)
			sources = append(sources, src)
			inputs = append(inputs, buildTable(t, lsm, 512, src))
		}
		opt := CompactOptions{BlockSize: 512, TargetSSTSize: target}

		out, err := lsm.Compact(inputs, opt)
		require.NoError(t, err)
		requireSortedNonOverlapping(t, out)
		want := bruteForceMerge(sources, false)
		require.Equal(t, want, readTables(t, out), "round %d", round)

		// 非最底层合并保留所有最新的删除标记
		var tombstones int
		for _, e := range want {
			if e.value == "" {
				tombstones++
			}
		}
		var gotTombstones int
		for _, e := range readTables(t, out) {
			if e.value == "" {
				gotTombstones++
			}
		}
		require.Equal(t, tombstones, gotTombstones)

		// 只在越过阈值后才切换 builder
		var written int
		for i, tbl := range out {
			sz := tableDataSize(tbl)
			written += sz
			if i < len(out)-1 {
				require.GreaterOrEqual(t, sz, target)
			}
		}
		require.GreaterOrEqual(t, len(out), written/target)

		bottom, err := lsm.Compact(inputs, CompactOptions{BlockSize: 512, TargetSSTSize: target, CompactToBottomLevel: true})
		require.NoError(t, err)
		requireSortedNonOverlapping(t, bottom)
		bottomEntries := readTables(t, bottom)
		require.Equal(t, bruteForceMerge(sources, true), bottomEntries)
		for _, e := range bottomEntries {
			require.NotEmpty(t, e.value)
		}

		// 最底层再次合并结果不变
		again, err := lsm.Compact(bottom, CompactOptions{BlockSize: 512, TargetSSTSize: target, CompactToBottomLevel: true})
		require.NoError(t, err)
		require.Equal(t, bottomEntries, readTables(t, again))

		// 输入仍然可读
		for i, in := range inputs {
			require.Equal(t, sources[i], readTable(t, in))
		}

		releaseTables(t, inputs)
		releaseTables(t, out)
		releaseTables(t, bottom)
		releaseTables(t, again)
	}
	require.Empty(t, sstFiles(t, lsm.option.WorkDir))
}

func TestCompactCorruptedInput(t *testing.T) {
	lsm, _ := newTestLSM(t)
	good := buildTable(t, lsm, 128, sequentialEntries(100))
	bad := corruptBlock(t, lsm, buildTable(t, lsm, 128, sequentialEntries(100)), 0)
	inputs := []*Table{good, bad}
	defer releaseTables(t, inputs)

	out, err := lsm.Compact(inputs, lsm.option.CompactOptions(false))
	require.True(t, utils.IsCorrupted(err), "%v", err)
	require.Nil(t, out)
	require.Equal(t, int32(1), good.ref.Load())
	require.Equal(t, int32(1), bad.ref.Load())
}

func TestCompactMergeFailureMidway(t *testing.T) {
	lsm, hook := newTestLSM(t)
	good := buildTable(t, lsm, 128, sequentialEntries(300))
	// 第一个 block 正常，推进到后面的 block 时才失败
	bad := corruptBlock(t, lsm, buildTable(t, lsm, 128, sequentialEntries(300)), 3)
	inputs := []*Table{bad, good}
	defer releaseTables(t, inputs)
	before := len(sstFiles(t, lsm.option.WorkDir))

	out, err := lsm.Compact(inputs, CompactOptions{BlockSize: 128, TargetSSTSize: 256})
	require.True(t, utils.IsCorrupted(err), "%v", err)
	require.Nil(t, out)

	// 已经写完的 table 只是被关闭，文件留给调用方处理
	require.Greater(t, len(sstFiles(t, lsm.option.WorkDir)), before)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	require.Equal(t, "lsm_compaction", hook.LastEntry().Data["action"])

	require.Equal(t, sequentialEntries(300), readTable(t, good))
}

func TestCompactBuildFailure(t *testing.T) {
	src, _ := newTestLSM(t)
	input := buildTable(t, src, utils.DefaultBlockSize, sequentialEntries(50))
	defer releaseTables(t, []*Table{input})

	dst, _ := newTestLSM(t)
	// WorkDir 被替换成普通文件，创建 sst 必然失败
	require.NoError(t, os.RemoveAll(dst.option.WorkDir))
	require.NoError(t, os.WriteFile(dst.option.WorkDir, []byte("x"), utils.DefaultFileMode))

	out, err := dst.Compact([]*Table{input}, dst.option.CompactOptions(false))
	require.Error(t, err)
	require.False(t, utils.IsCorrupted(err))
	require.Nil(t, out)
	require.Equal(t, sequentialEntries(50), readTable(t, input))
}

func TestCompactConcurrentDistinctIDs(t *testing.T) {
	lsm, _ := newTestLSM(t)
	const workers = 8
	inputs := make([]*Table, workers)
	for i := range inputs {
		var entries []kv
		for j := 0; j < 200; j++ {
			entries = append(entries, kv{fmt.Sprintf("w%d-%05d", i, j), "value"})
		}
		inputs[i] = buildTable(t, lsm, 256, entries)
	}
	defer releaseTables(t, inputs)

	results := make([][]*Table, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = lsm.Compact([]*Table{inputs[i]}, CompactOptions{BlockSize: 256, TargetSSTSize: 1024})
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Greater(t, len(results[i]), 1)
		for _, tbl := range results[i] {
			require.False(t, seen[tbl.ID()], "duplicate id %d", tbl.ID())
			seen[tbl.ID()] = true
		}
		require.Equal(t, readTable(t, inputs[i]), readTables(t, results[i]))
		releaseTables(t, results[i])
	}
}

func TestCompactLogsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	lsm, hook := newTestLSM(t, func(opt *Options) { opt.Registerer = reg })
	newer := buildTable(t, lsm, utils.DefaultBlockSize, []kv{{"a", ""}, {"b", "2"}})
	older := buildTable(t, lsm, utils.DefaultBlockSize, []kv{{"a", "1"}, {"c", "3"}})
	inputs := []*Table{newer, older}
	defer releaseTables(t, inputs)
	hook.Reset()

	out, err := lsm.Compact(inputs, lsm.option.CompactOptions(true))
	require.NoError(t, err)
	defer releaseTables(t, out)

	var debugLines int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.DebugLevel && e.Data["action"] == "lsm_compaction_table" {
			debugLines++
		}
	}
	require.Equal(t, len(out), debugLines)

	last := hook.LastEntry()
	require.Equal(t, logrus.InfoLevel, last.Level)
	require.Equal(t, "lsm_compaction", last.Data["action"])
	require.Equal(t, 3, last.Data["entries"])
	require.Equal(t, 1, last.Data["tombstones_dropped"])
	require.Equal(t, []string{"00001", "00002"}, last.Data["inputs"])

	require.Equal(t, float64(1), testutil.ToFloat64(lsm.metrics.compactions.WithLabelValues("success")))
	require.Equal(t, float64(len(out)), testutil.ToFloat64(lsm.metrics.tablesWritten))
	require.Equal(t, float64(3), testutil.ToFloat64(lsm.metrics.entriesMerged))
	require.Equal(t, float64(1), testutil.ToFloat64(lsm.metrics.tombstonesDropped))
	require.Positive(t, testutil.ToFloat64(lsm.metrics.bytesWritten))

	_, err = lsm.Compact(inputs, CompactOptions{})
	require.Error(t, err)

	// 同一个 registry 上的第二个实例复用已有的 collector
	other, _ := newTestLSM(t, func(opt *Options) { opt.Registerer = reg })
	require.Same(t, lsm.metrics.tablesWritten, other.metrics.tablesWritten)
}
