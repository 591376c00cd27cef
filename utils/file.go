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

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FileNameSSTable sst 文件名
func FileNameSSTable(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%05d%s", id, SSTableSuffix))
}

// FID 根据file name 获取其fid, 非 sst 文件返回 false
func FID(name string) (uint64, bool) {
	name = filepath.Base(name)
	if !strings.HasSuffix(name, SSTableSuffix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(name, SSTableSuffix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// MaxFID returns the highest sst id present in dir, 0 if none.
func MaxFID(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "read dir %s", dir)
	}
	var max uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := FID(e.Name()); ok && id > max {
			max = id
		}
	}
	return max, nil
}

// SyncDir fsyncs the directory so that newly created files survive a crash.
func SyncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "while opening directory: %s", dir)
	}
	if err := df.Sync(); err != nil {
		_ = df.Close()
		return errors.Wrapf(err, "while syncing directory: %s", dir)
	}
	return errors.Wrapf(df.Close(), "while closing directory: %s", dir)
}
