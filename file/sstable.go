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

package file

import (
	"os"

	"github.com/hardcore-os/compactkv/pb"
	"github.com/hardcore-os/compactkv/utils"
	"github.com/pkg/errors"
)

// SSTable 文件的内存封装
//
// layout: | block ... | index | indexLen u32 | checksum | checksumLen u32 |
type SSTable struct {
	f              *MmapFile
	maxKey         []byte
	minKey         []byte
	idxTables      *pb.TableIndex
	hasBloomFilter bool
	idxLen         int
	idxStart       int
	fid            uint64
}

// OpenSStable 打开一个 sst文件, MaxSz > 0 时会创建并扩展文件供写入
func OpenSStable(opt *Options) (*SSTable, error) {
	flag := opt.Flag
	if flag == 0 {
		flag = os.O_RDWR
	}
	omf, err := OpenMmapFile(opt.FileName, flag, opt.MaxSz)
	if err != nil {
		return nil, err
	}
	return &SSTable{f: omf, fid: opt.FID}, nil
}

// Init 解析 footer 与索引，必须在文件内容写完之后调用
func (ss *SSTable) Init() error {
	ko, err := ss.initTable()
	if err != nil {
		return err
	}
	ss.minKey = utils.Copy(ko.GetKey())
	ss.maxKey = utils.Copy(ss.idxTables.GetMaxKey())
	if len(ss.maxKey) == 0 {
		ss.maxKey = ss.minKey
	}
	return nil
}

func (ss *SSTable) initTable() (*pb.BlockOffset, error) {
	name := ss.f.Fd.Name()
	readPos := len(ss.f.Data)

	// Read checksum len from the last 4 bytes.
	readPos -= 4
	buf, err := ss.read(readPos, 4)
	if err != nil {
		return nil, utils.Corruptf("%s: read checksum length", name)
	}
	checksumLen := int(utils.BytesToU32(buf))
	if checksumLen != utils.ChecksumSize {
		return nil, utils.Corruptf("%s: checksum length %d", name, checksumLen)
	}

	// Read checksum.
	readPos -= checksumLen
	expectedChk, err := ss.read(readPos, checksumLen)
	if err != nil {
		return nil, utils.Corruptf("%s: read index checksum", name)
	}

	// Read index size from the footer.
	readPos -= 4
	buf, err = ss.read(readPos, 4)
	if err != nil {
		return nil, utils.Corruptf("%s: read index length", name)
	}
	ss.idxLen = int(utils.BytesToU32(buf))

	// Read index.
	readPos -= ss.idxLen
	ss.idxStart = readPos
	data, err := ss.read(readPos, ss.idxLen)
	if err != nil {
		return nil, utils.Corruptf("%s: index length %d", name, ss.idxLen)
	}
	if err := utils.VerifyChecksum(data, expectedChk); err != nil {
		return nil, errors.Wrapf(utils.ErrTableCorrupted, "failed to verify checksum for table %s: %v", name, err)
	}
	indexTable := &pb.TableIndex{}
	if err := indexTable.Unmarshal(data); err != nil {
		return nil, errors.Wrapf(utils.ErrTableCorrupted, "decode index of %s: %v", name, err)
	}
	ss.idxTables = indexTable

	ss.hasBloomFilter = len(indexTable.BloomFilter) > 0
	offsets := indexTable.GetOffsets()
	if len(offsets) == 0 {
		return nil, errors.Wrap(utils.ErrTableEmpty, name)
	}
	for i, bo := range offsets {
		if int(bo.GetOffset())+int(bo.GetLen()) > ss.idxStart {
			return nil, utils.Corruptf("%s: block %d out of range [%d, +%d)", name, i, bo.GetOffset(), bo.GetLen())
		}
	}
	return offsets[0], nil
}

func (ss *SSTable) read(off, sz int) ([]byte, error) {
	return ss.f.Bytes(off, sz)
}

// Bytes returns data starting from offset off of size sz. If there's not enough data, it would
// return nil slice and io.EOF.
func (ss *SSTable) Bytes(off, sz int) ([]byte, error) {
	return ss.f.Bytes(off, sz)
}

// Sync 将映射区刷到磁盘
func (ss *SSTable) Sync() error {
	return ss.f.Sync()
}

// Close 关闭
func (ss *SSTable) Close() error {
	return ss.f.Close()
}

// Delete 关闭并删除文件
func (ss *SSTable) Delete() error {
	return ss.f.Delete()
}

// Indexs _
func (ss *SSTable) Indexs() *pb.TableIndex {
	return ss.idxTables
}

// MaxKey 当前最大的key
func (ss *SSTable) MaxKey() []byte {
	return ss.maxKey
}

// MinKey 当前最小的key
func (ss *SSTable) MinKey() []byte {
	return ss.minKey
}

// FID 获取fid
func (ss *SSTable) FID() uint64 {
	return ss.fid
}

// HasBloomFilter _
func (ss *SSTable) HasBloomFilter() bool {
	return ss.hasBloomFilter
}

// Size 返回底层文件的尺寸
func (ss *SSTable) Size() int64 {
	return int64(ss.f.Size())
}
