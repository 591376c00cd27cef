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
	"os"
	"sync"

	"github.com/hardcore-os/compactkv/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LSM 管理 sst 文件所在目录、id 分配与共享的 block cache，对外提供 Compact
type LSM struct {
	option  *Options
	ids     *idAllocator
	cache   *BlockCache
	metrics *compactionMetrics
	logger  logrus.FieldLogger
}

// idAllocator hands out table ids. The lock is only held for the increment.
type idAllocator struct {
	sync.Mutex
	maxFID uint64
}

func (a *idAllocator) next() uint64 {
	a.Lock()
	defer a.Unlock()
	a.maxFID++
	return a.maxFID
}

// NewLSM _
func NewLSM(opt *Options) (*LSM, error) {
	if opt == nil || opt.WorkDir == "" {
		return nil, errors.New("lsm: WorkDir is required")
	}
	opt.FillDefaults()
	if err := os.MkdirAll(opt.WorkDir, utils.DefaultDirMode); err != nil {
		return nil, errors.Wrapf(err, "create work dir %s", opt.WorkDir)
	}
	// 已有的 sst 文件 id 不能被复用
	maxFID, err := utils.MaxFID(opt.WorkDir)
	if err != nil {
		return nil, err
	}
	metrics, err := newCompactionMetrics(opt.Registerer)
	if err != nil {
		return nil, err
	}
	lsm := &LSM{
		option:  opt,
		ids:     &idAllocator{maxFID: maxFID},
		cache:   newBlockCache(opt.BlockCacheSize),
		metrics: metrics,
		logger:  opt.Logger,
	}
	lsm.logger.WithField("action", "lsm_open").
		WithField("work_dir", opt.WorkDir).
		WithField("max_fid", maxFID).
		Debug("lsm opened")
	return lsm, nil
}

// NextTableID allocates a fresh table id.
func (lsm *LSM) NextTableID() uint64 {
	return lsm.ids.next()
}

// PathOfSST is where table id lives.
func (lsm *LSM) PathOfSST(id uint64) string {
	return utils.FileNameSSTable(lsm.option.WorkDir, id)
}

// BlockCache is shared by every table of this LSM. Nil when disabled.
func (lsm *LSM) BlockCache() *BlockCache {
	return lsm.cache
}

// OpenTable opens an existing table in WorkDir. The caller owns the returned
// reference.
func (lsm *LSM) OpenTable(id uint64) (*Table, error) {
	return openTable(id, lsm.PathOfSST(id), lsm.cache)
}

// newTableBuilder 使用本次合并的 block 大小与配置的 bloom 假阳性率
func (lsm *LSM) newTableBuilder(opt CompactOptions) *tableBuilder {
	return newTableBuilder(opt.BlockSize, lsm.option.BloomFalsePositive)
}

// Close _
func (lsm *LSM) Close() error {
	lsm.cache = nil
	return nil
}
