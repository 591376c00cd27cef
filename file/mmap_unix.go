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

//go:build linux || darwin

package file

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MmapFile 将磁盘文件整体映射到内存
type MmapFile struct {
	Data []byte
	Fd   *os.File
}

// OpenMmapFile opens filename with flag and maps it. When maxSz is larger than
// the current file size the file is first extended to maxSz. A file that ends
// up empty is opened but not mapped.
func OpenMmapFile(filename string, flag int, maxSz int) (*MmapFile, error) {
	fd, err := os.OpenFile(filename, flag, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open: %s", filename)
	}
	writable := flag&(os.O_RDWR|os.O_WRONLY) != 0
	mf, err := openMmapFileUsing(fd, maxSz, writable)
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	return mf, nil
}

func openMmapFileUsing(fd *os.File, sz int, writable bool) (*MmapFile, error) {
	filename := fd.Name()
	fi, err := fd.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot stat file: %s", filename)
	}
	fileSize := fi.Size()
	if sz > 0 && fileSize < int64(sz) {
		if !writable {
			return nil, errors.Errorf("cannot grow read-only file %s to %d", filename, sz)
		}
		if err := fd.Truncate(int64(sz)); err != nil {
			return nil, errors.Wrapf(err, "error while truncation: %s", filename)
		}
		fileSize = int64(sz)
	}
	if fileSize == 0 {
		return &MmapFile{Fd: fd}, nil
	}

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	buf, err := unix.Mmap(int(fd.Fd()), 0, int(fileSize), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "while mmapping %s with size: %d", filename, fileSize)
	}
	// sst 的 block 读取是随机的
	_ = unix.Madvise(buf, unix.MADV_RANDOM)
	return &MmapFile{Data: buf, Fd: fd}, nil
}

// Bytes returns data starting from offset off of size sz. If there's not enough data, it would
// return nil slice and io.EOF.
func (m *MmapFile) Bytes(off, sz int) ([]byte, error) {
	if off < 0 || sz < 0 || off+sz > len(m.Data) {
		return nil, io.EOF
	}
	return m.Data[off : off+sz], nil
}

// Size 映射区的长度
func (m *MmapFile) Size() int {
	return len(m.Data)
}

// Sync flushes the mapping to disk.
func (m *MmapFile) Sync() error {
	if m == nil || len(m.Data) == 0 {
		return nil
	}
	return errors.Wrapf(unix.Msync(m.Data, unix.MS_SYNC), "msync %s", m.Fd.Name())
}

func (m *MmapFile) unmap() error {
	if len(m.Data) == 0 {
		return nil
	}
	err := unix.Munmap(m.Data)
	m.Data = nil
	return errors.Wrapf(err, "munmap %s", m.Fd.Name())
}

// Close unmaps and closes the file, keeping it on disk.
func (m *MmapFile) Close() error {
	if m.Fd == nil {
		return nil
	}
	if err := m.unmap(); err != nil {
		return err
	}
	err := m.Fd.Close()
	m.Fd = nil
	return err
}

// Delete unmaps, closes and removes the file.
func (m *MmapFile) Delete() error {
	if m.Fd == nil {
		return nil
	}
	name := m.Fd.Name()
	if err := m.Close(); err != nil {
		return err
	}
	return errors.Wrapf(os.Remove(name), "while deleting file: %s", name)
}
