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

package pb

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestTableIndexEncoding(t *testing.T) {
	idx := &TableIndex{
		Offsets: []*BlockOffset{
			{Key: []byte("a"), Offset: 0, Len: 4096},
			{Key: []byte("m"), Offset: 4096, Len: 1200},
		},
		BloomFilter: []byte{1, 2, 3},
		KeyCount:    77,
		MaxKey:      []byte("zz"),
	}
	data := idx.Marshal()

	// 未知字段需要被跳过
	data = protowire.AppendTag(data, 15, protowire.VarintType)
	data = protowire.AppendVarint(data, 9)

	got := &TableIndex{}
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, idx, got)
}

func TestTableIndexTruncated(t *testing.T) {
	idx := &TableIndex{Offsets: []*BlockOffset{{Key: []byte("key"), Offset: 10, Len: 20}}}
	data := idx.Marshal()
	got := &TableIndex{}
	require.Error(t, got.Unmarshal(data[:len(data)-2]))

	var nilIdx *TableIndex
	require.Nil(t, nilIdx.GetOffsets())
	require.Equal(t, uint32(0), nilIdx.GetKeyCount())
}
