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

	"github.com/goccy/go-yaml"
	"github.com/hardcore-os/compactkv/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Options _
type Options struct {
	WorkDir string `yaml:"work_dir"`
	// BlockSize is the size of each block inside SSTable in bytes.
	BlockSize int `yaml:"block_size"`
	// BloomFalsePositive is the false positive probabiltiy of bloom filter.
	// Zero disables the filter.
	BloomFalsePositive float64 `yaml:"bloom_false_positive"`
	// BlockCacheSize is counted in blocks. Zero disables the cache.
	BlockCacheSize int `yaml:"block_cache_size"`
	// TargetSSTSize 合并输出的单个 sst 的目标大小
	TargetSSTSize int `yaml:"target_sst_size"`

	Logger     logrus.FieldLogger    `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"`
}

// CompactOptions controls a single compaction run.
type CompactOptions struct {
	BlockSize     int
	TargetSSTSize int
	// CompactToBottomLevel drops tombstones, nothing older can be shadowed.
	CompactToBottomLevel bool
}

// Validate _
func (o CompactOptions) Validate() error {
	if o.BlockSize <= 0 {
		return errors.Wrapf(utils.ErrInvalidCompactOptions, "block size %d", o.BlockSize)
	}
	if o.TargetSSTSize <= 0 {
		return errors.Wrapf(utils.ErrInvalidCompactOptions, "target sst size %d", o.TargetSSTSize)
	}
	return nil
}

// NewDefaultOptions returns the options used when nothing is configured.
func NewDefaultOptions(workDir string) *Options {
	opt := &Options{
		WorkDir:            workDir,
		BlockSize:          utils.DefaultBlockSize,
		BloomFalsePositive: utils.DefaultBloomFalseRate,
		BlockCacheSize:     utils.DefaultBlockCacheSize,
		TargetSSTSize:      utils.DefaultTargetSSTSize,
	}
	opt.FillDefaults()
	return opt
}

// FillDefaults 填充未设置的大小以及 logger，cache 与 bloom 的零值表示关闭
func (opt *Options) FillDefaults() {
	if opt.BlockSize <= 0 {
		opt.BlockSize = utils.DefaultBlockSize
	}
	if opt.TargetSSTSize <= 0 {
		opt.TargetSSTSize = utils.DefaultTargetSSTSize
	}
	if opt.Logger == nil {
		opt.Logger = logrus.New()
	}
}

// CompactOptions derives the per-run options. bottom is true when the output
// lands on the last level.
func (opt *Options) CompactOptions(bottom bool) CompactOptions {
	return CompactOptions{
		BlockSize:            opt.BlockSize,
		TargetSSTSize:        opt.TargetSSTSize,
		CompactToBottomLevel: bottom,
	}
}

// LoadOptions reads a yaml file on top of NewDefaultOptions, so absent keys
// keep their defaults.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read options %s", path)
	}
	opt := NewDefaultOptions("")
	if err := yaml.Unmarshal(data, opt); err != nil {
		return nil, errors.Wrapf(err, "parse options %s", path)
	}
	opt.FillDefaults()
	return opt, nil
}
