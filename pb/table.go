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
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// BlockOffset 记录一个 block 的首 key 以及其在 sst 中的位置
type BlockOffset struct {
	Key    []byte
	Offset uint32
	Len    uint32
}

func (m *BlockOffset) GetKey() []byte {
	if m != nil {
		return m.Key
	}
	return nil
}

func (m *BlockOffset) GetOffset() uint32 {
	if m != nil {
		return m.Offset
	}
	return 0
}

func (m *BlockOffset) GetLen() uint32 {
	if m != nil {
		return m.Len
	}
	return 0
}

// Marshal encodes the message in protobuf wire format.
func (m *BlockOffset) Marshal() []byte {
	return m.appendTo(nil)
}

func (m *BlockOffset) appendTo(b []byte) []byte {
	if len(m.Key) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
	}
	if m.Offset != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Offset))
	}
	if m.Len != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Len))
	}
	return b
}

// Unmarshal decodes b into m. Unknown fields are skipped.
func (m *BlockOffset) Unmarshal(b []byte) error {
	*m = BlockOffset{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "BlockOffset: tag")
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "BlockOffset.Key")
			}
			m.Key = append([]byte{}, v...)
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "BlockOffset.Offset")
			}
			m.Offset = uint32(v)
			b = b[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "BlockOffset.Len")
			}
			m.Len = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "BlockOffset: field %d", num)
			}
			b = b[n:]
		}
	}
	return nil
}

// TableIndex sst 的索引，位于所有 block 之后
type TableIndex struct {
	Offsets     []*BlockOffset
	BloomFilter []byte
	KeyCount    uint32
	MaxKey      []byte
}

func (m *TableIndex) GetOffsets() []*BlockOffset {
	if m != nil {
		return m.Offsets
	}
	return nil
}

func (m *TableIndex) GetBloomFilter() []byte {
	if m != nil {
		return m.BloomFilter
	}
	return nil
}

func (m *TableIndex) GetKeyCount() uint32 {
	if m != nil {
		return m.KeyCount
	}
	return 0
}

func (m *TableIndex) GetMaxKey() []byte {
	if m != nil {
		return m.MaxKey
	}
	return nil
}

// Marshal encodes the message in protobuf wire format.
func (m *TableIndex) Marshal() []byte {
	var b []byte
	for _, o := range m.Offsets {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, o.Marshal())
	}
	if len(m.BloomFilter) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.BloomFilter)
	}
	if m.KeyCount != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.KeyCount))
	}
	if len(m.MaxKey) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, m.MaxKey)
	}
	return b
}

// Unmarshal decodes b into m. Unknown fields are skipped.
func (m *TableIndex) Unmarshal(b []byte) error {
	*m = TableIndex{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "TableIndex: tag")
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "TableIndex.Offsets")
			}
			bo := &BlockOffset{}
			if err := bo.Unmarshal(v); err != nil {
				return err
			}
			m.Offsets = append(m.Offsets, bo)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "TableIndex.BloomFilter")
			}
			m.BloomFilter = append([]byte{}, v...)
			b = b[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "TableIndex.KeyCount")
			}
			m.KeyCount = uint32(v)
			b = b[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "TableIndex.MaxKey")
			}
			m.MaxKey = append([]byte{}, v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "TableIndex: field %d", num)
			}
			b = b[n:]
		}
	}
	return nil
}
