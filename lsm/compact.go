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
	"time"

	"github.com/hardcore-os/compactkv/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// compactStats 一次合并的统计
type compactStats struct {
	entries    int
	tombstones int
	written    int64
}

// Compact merges tables into new size bounded tables. tables[0] is the newest
// input and wins on equal keys.
//
// The returned tables are sorted, do not overlap and each carries one reference
// owned by the caller. Inputs are left untouched. On error nothing is
// returned: tables built so far are closed and their files left on disk.
func (lsm *LSM) Compact(tables []*Table, opt CompactOptions) ([]*Table, error) {
	start := time.Now()
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	log := lsm.logger.WithField("action", "lsm_compaction").
		WithField("inputs", tablesToString(tables)).
		WithField("bottom", opt.CompactToBottomLevel)

	newTables, stats, err := lsm.compactBuildTables(tables, opt)
	took := time.Since(start)
	if err != nil {
		lsm.metrics.observe("failure", took.Seconds())
		log.WithError(err).WithField("took", took).Warn("compaction failed")
		return nil, err
	}

	lsm.metrics.observe("success", took.Seconds())
	lsm.metrics.tablesWritten.Add(float64(len(newTables)))
	lsm.metrics.bytesWritten.Add(float64(stats.written))
	lsm.metrics.entriesMerged.Add(float64(stats.entries))
	lsm.metrics.tombstonesDropped.Add(float64(stats.tombstones))
	log.WithFields(logrus.Fields{
		"outputs":            tablesToString(newTables),
		"key_range":          getKeyRange(tables...).String(),
		"entries":            stats.entries,
		"tombstones_dropped": stats.tombstones,
		"bytes_written":      stats.written,
		"took":               took,
	}).Info("compaction done")
	return newTables, nil
}

// compactBuildTables 归并输入并切分成新的 table
func (lsm *LSM) compactBuildTables(tables []*Table, opt CompactOptions) (newTables []*Table, stats compactStats, err error) {
	// 合并期间持有输入的引用
	for _, t := range tables {
		t.IncrRef()
	}
	defer func() {
		if derr := decrRefs(tables); derr != nil && err == nil {
			err = derr
		}
		if err != nil {
			_ = closeTables(newTables)
			newTables = nil
		}
	}()

	iters := make([]utils.Iterator, 0, len(tables))
	for _, t := range tables {
		it, err := newTableIterator(t)
		if err != nil {
			for _, opened := range iters {
				_ = opened.Close()
			}
			return nil, stats, errors.Wrapf(err, "open iterator on table %d", t.ID())
		}
		iters = append(iters, it)
	}
	mi := NewMergeIterator(iters)
	defer func() {
		if cerr := mi.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var builder *tableBuilder
	finish := func() error {
		defer func() { builder = nil }()
		if builder.empty() {
			return nil
		}
		id := lsm.NextTableID()
		t, err := builder.build(id, lsm.cache, lsm.PathOfSST(id))
		if err != nil {
			return err
		}
		newTables = append(newTables, t)
		stats.written += t.Size()
		lsm.logger.WithField("action", "lsm_compaction_table").
			WithField("table", t.String()).
			WithField("keys", t.KeyCount()).
			WithField("size", t.Size()).
			Debug("table written")
		return nil
	}

	for mi.Valid() {
		if builder == nil {
			builder = lsm.newTableBuilder(opt)
		}
		e := utils.Entry{Key: mi.Key(), Value: mi.Value()}
		stats.entries++
		if opt.CompactToBottomLevel && e.IsTombstone() {
			// 最底层没有更旧的数据需要遮蔽，删除标记可以丢弃
			stats.tombstones++
		} else {
			builder.add(e.Key, e.Value)
		}
		if err := mi.Next(); err != nil {
			return newTables, stats, errors.Wrap(err, "merge iterator")
		}
		if builder.estimatedSize() >= opt.TargetSSTSize {
			if err := finish(); err != nil {
				return newTables, stats, err
			}
		}
	}
	if builder != nil {
		if err := finish(); err != nil {
			return newTables, stats, err
		}
	}

	if len(newTables) > 0 {
		// 同步刷盘，保证新文件一定落盘
		if err := utils.SyncDir(lsm.option.WorkDir); err != nil {
			return newTables, stats, err
		}
	}

	for i := 1; i < len(newTables); i++ {
		prev, next := newTables[i-1], newTables[i]
		utils.CondPanic(utils.CompareKeys(prev.MaxKey(), next.MinKey()) >= 0,
			fmt.Errorf("compaction produced overlapping tables %s and %s", prev, next))
	}
	return newTables, stats, nil
}

// tablesToString
func tablesToString(tables []*Table) []string {
	var res []string
	for _, t := range tables {
		res = append(res, fmt.Sprintf("%05d", t.ID()))
	}
	return res
}

// keyRange
type keyRange struct {
	left  []byte
	right []byte
}

func (r keyRange) String() string {
	return fmt.Sprintf("[left=%q, right=%q]", r.left, r.right)
}

// getKeyRange 返回一组sst的区间合并后的最大与最小值
func getKeyRange(tables ...*Table) keyRange {
	if len(tables) == 0 {
		return keyRange{}
	}
	minKey := tables[0].MinKey()
	maxKey := tables[0].MaxKey()
	for i := 1; i < len(tables); i++ {
		if utils.CompareKeys(tables[i].MinKey(), minKey) < 0 {
			minKey = tables[i].MinKey()
		}
		if utils.CompareKeys(tables[i].MaxKey(), maxKey) > 0 {
			maxKey = tables[i].MaxKey()
		}
	}
	return keyRange{left: minKey, right: maxKey}
}
