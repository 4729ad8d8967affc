// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/tsdemux/pkg/base"
)

// PsiId
const (
	TsPsiIdPas            = 0x00 // program_association_section
	TsPsiIdCas            = 0x01 // conditional_access_section (CA_section)
	TsPsiIdPms            = 0x02 // TS_program_map_section
	TsPsiIdDs             = 0x03 // TS_description_section
	TsPsiIdSds            = 0x04 // ISO_IEC_14496_scene_description_section
	TsPsiIdOds            = 0x05 // ISO_IEC_14496_object_descriptor_section
	TsPsiIdIso138181Start = 0x06 // ITU-T Rec. H.222.0 | ISO/IEC 13818-1 reserved
	TsPsiIdIso138181End   = 0x37
	TsPsiIdIso138186Start = 0x38 // Defined in ISO/IEC 13818-6
	TsPsiIdIso138186End   = 0x3F
	TsPsiIdUserStart      = 0x40 // User private
	TsPsiIdSdt            = 0x42 // service_description_section, actual_transport_stream
	TsPsiIdUserEnd        = 0xFE
	TsPsiIdForbidden      = 0xFF // forbidden
)

const (
	DescriptorTagAC3                        = 0x6a
	DescriptorTagAVCVideo                   = 0x28
	DescriptorTagComponent                  = 0x50
	DescriptorTagContent                    = 0x54
	DescriptorTagDataStreamAlignment        = 0x6
	DescriptorTagDts                        = 0x7b
	DescriptorTagEnhancedAC3                = 0x7a
	DescriptorTagExtendedEvent              = 0x4e
	DescriptorTagExtension                  = 0x7f
	DescriptorTagFmc                        = 0x1f
	DescriptorTagIod                        = 0x1d
	DescriptorTagISO639LanguageAndAudioType = 0xa
	DescriptorTagLocalTimeOffset            = 0x58
	DescriptorTagMaximumBitrate             = 0xe
	DescriptorTagNetworkName                = 0x40
	DescriptorTagParentalRating             = 0x55
	DescriptorTagPrivateDataIndicator       = 0xf
	DescriptorTagPrivateDataSpecifier       = 0x5f
	DescriptorTagRegistration               = 0x5
	DescriptorTagService                    = 0x48
	DescriptorTagShortEvent                 = 0x4d
	DescriptorTagSl                         = 0x1e
	DescriptorTagStreamIdentifier           = 0x52
	DescriptorTagSubtitling                 = 0x59
	DescriptorTagTeletext                   = 0x56
	DescriptorTagVBIData                    = 0x45
	DescriptorTagVBITeletext                = 0x46
)

// extension descriptor中的扩展tag
const (
	descriptorExtTagOpus = 0x80 // User defined (provisional Opus)
)

// ---------------------------------------------------------------------------------------------------
// <iso13818-1.pdf> <2.4.4.10 Syntax of the Private section> <page 69/174>
// table_id                 [8b]  *
// section_syntax_indicator [1b]
// private_indicator        [1b]
// reserved                 [2b]
// section_length           [12b] **
// table_id_extension       [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// ---------------------------------------------------------------------------------------------------
type SectionHeader struct {
	Tid        uint8
	Length     uint16 // section_length
	Id         uint16 // table_id_extension，PAT中为transport_stream_id，PMT中为program_number
	Version    uint8
	SecNum     uint8
	LastSecNum uint8
}

const (
	sectionHeaderSize = 8
	sectionCrcSize    = 4
)

// ParseSectionHeader
//
// @param section: 完整的section，包含末尾4字节crc
//
// @return body: section header之后，crc之前的数据
//
func ParseSectionHeader(section []byte) (h SectionHeader, body []byte, err error) {
	if len(section) < sectionHeaderSize+sectionCrcSize {
		return h, nil, base.NewErrInvalidSection(0, "short section")
	}
	br := nazabits.NewBitReader(section)
	h.Tid, _ = br.ReadBits8(8)
	_, _ = br.ReadBits8(4)
	h.Length, _ = br.ReadBits16(12)
	h.Id, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(2)
	h.Version, _ = br.ReadBits8(5)
	_, _ = br.ReadBits8(1)
	h.SecNum, _ = br.ReadBits8(8)
	h.LastSecNum, _ = br.ReadBits8(8)

	// section后面可能跟着填充数据
	total := int(h.Length) + 3
	if total < sectionHeaderSize+sectionCrcSize || total > len(section) {
		return h, nil, base.NewErrInvalidSection(h.Tid, "section length mismatch")
	}
	return h, section[sectionHeaderSize : total-sectionCrcSize], nil
}

// ----- byte cursor ---------------------------------------------------------------------------------------------------

// byteCursor 按字节读取section内的变长结构，比如描述符循环
//
// 所有读取操作越界时返回错误，不移动读取位置
//
type byteCursor struct {
	b   []byte
	pos int
}

func newByteCursor(b []byte) *byteCursor {
	return &byteCursor{b: b}
}

func (c *byteCursor) Len() int {
	return len(c.b) - c.pos
}

func (c *byteCursor) Pos() int {
	return c.pos
}

func (c *byteCursor) ReadUint8() (uint8, error) {
	if c.Len() < 1 {
		return 0, base.ErrShortBuffer
	}
	v := c.b[c.pos]
	c.pos++
	return v, nil
}

func (c *byteCursor) ReadUint16() (uint16, error) {
	if c.Len() < 2 {
		return 0, base.ErrShortBuffer
	}
	v := bele.BeUint16(c.b[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadLeUint32 registration descriptor的format_identifier按小端读取，和 mkTag 对应
func (c *byteCursor) ReadLeUint32() (uint32, error) {
	if c.Len() < 4 {
		return 0, base.ErrShortBuffer
	}
	v := bele.LeUint32(c.b[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *byteCursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.Len() < n {
		return nil, base.ErrShortBuffer
	}
	v := c.b[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// ReadStr8 1字节长度 + 字符串
func (c *byteCursor) ReadStr8() (string, error) {
	n, err := c.ReadUint8()
	if err != nil {
		return "", err
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		c.pos--
		return "", err
	}
	return string(b), nil
}

// Skip 跳过`n`字节，剩余不足时移动到末尾
func (c *byteCursor) Skip(n int) {
	if n > c.Len() {
		n = c.Len()
	}
	if n > 0 {
		c.pos += n
	}
}

// Sub 切出接下来的`n`字节作为一个新的cursor，并跳过它们
func (c *byteCursor) Sub(n int) (*byteCursor, error) {
	b, err := c.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return newByteCursor(b), nil
}
