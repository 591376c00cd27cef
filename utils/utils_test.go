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
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFID(t *testing.T) {
	name := FileNameSSTable("/tmp/x", 42)
	require.Equal(t, filepath.Join("/tmp/x", "00042.sst"), name)

	id, ok := FID(name)
	require.True(t, ok)
	require.Equal(t, uint64(42), id)

	_, ok = FID("MANIFEST")
	require.False(t, ok)
	_, ok = FID("abc.sst")
	require.False(t, ok)
}

func TestMaxFID(t *testing.T) {
	dir := t.TempDir()
	max, err := MaxFID(dir)
	require.NoError(t, err)
	require.Equal(t, uint64(0), max)

	for _, n := range []string{"00003.sst", "00017.sst", "00009.sst", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, DefaultFileMode))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "00099.sst"), DefaultDirMode))

	max, err = MaxFID(dir)
	require.NoError(t, err)
	require.Equal(t, uint64(17), max)

	_, err = MaxFID(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestChecksum(t *testing.T) {
	data := []byte("compaction")
	sum := U64ToBytes(CalculateChecksum(data))
	require.NoError(t, VerifyChecksum(data, sum))

	err := VerifyChecksum([]byte("compactiom"), sum)
	require.True(t, errors.Is(err, ErrChecksumMismatch))

	err = VerifyChecksum(data, sum[:4])
	require.True(t, errors.Is(err, ErrChecksumMismatch))
}

func TestCodecU32Slice(t *testing.T) {
	in := []uint32{0, 1, 1 << 31, 12345}
	b := U32SliceToBytes(in)
	require.Len(t, b, 16)
	require.Equal(t, in, BytesToU32Slice(b))
	require.Equal(t, uint32(12345), BytesToU32(b[12:]))
}

func TestCorruptf(t *testing.T) {
	err := Corruptf("block %d", 3)
	require.True(t, IsCorrupted(err))
	require.Contains(t, err.Error(), "block 3")
	require.False(t, IsCorrupted(ErrTableEmpty))
}
