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
	"path/filepath"
	"testing"

	"github.com/hardcore-os/compactkv/utils"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compactkv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
work_dir: /var/lib/compactkv
block_size: 1024
target_sst_size: 8192
bloom_false_positive: 0
`), 0644))

	opt, err := LoadOptions(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/compactkv", opt.WorkDir)
	require.Equal(t, 1024, opt.BlockSize)
	require.Equal(t, 8192, opt.TargetSSTSize)
	require.Equal(t, float64(0), opt.BloomFalsePositive)
	require.Equal(t, utils.DefaultBlockCacheSize, opt.BlockCacheSize)
	require.NotNil(t, opt.Logger)

	co := opt.CompactOptions(true)
	require.Equal(t, CompactOptions{BlockSize: 1024, TargetSSTSize: 8192, CompactToBottomLevel: true}, co)
	require.NoError(t, co.Validate())

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("block_size: [1, 2"), 0644))
	_, err = LoadOptions(bad)
	require.Error(t, err)
}

func TestFillDefaults(t *testing.T) {
	opt := &Options{WorkDir: "x", BlockSize: -1}
	opt.FillDefaults()
	require.Equal(t, utils.DefaultBlockSize, opt.BlockSize)
	require.Equal(t, utils.DefaultTargetSSTSize, opt.TargetSSTSize)
	require.Zero(t, opt.BlockCacheSize)
	require.Zero(t, opt.BloomFalsePositive)
	require.NotNil(t, opt.Logger)
}
