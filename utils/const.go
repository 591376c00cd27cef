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
	"os"
)

// file
const (
	SSTableSuffix   = ".sst"
	DefaultFileFlag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	DefaultFileMode = 0666
	DefaultDirMode  = 0755
)

// sizes
const (
	KB = 1 << 10
	MB = 1 << 20

	DefaultBlockSize      = 4 * KB
	DefaultTargetSSTSize  = 2 * MB
	DefaultBlockCacheSize = 1024 // in blocks
	DefaultBloomFalseRate = 0.01
)
