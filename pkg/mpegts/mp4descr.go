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
	"github.com/q191201771/tsdemux/pkg/base"
)

// MPEG-4 Systems描述符，出现在PMT的IOD描述符，以及stream_type为0x13的object descriptor section中
//
// <ISO/IEC 14496-1> <7.2.6 Object Descriptor Components>

const (
	mp4ODescrTag         = 0x01
	mp4IODescrTag        = 0x02
	mp4ESDescrTag        = 0x03
	mp4DecConfigDescrTag = 0x04
	mp4DecSpecificTag    = 0x05
	mp4SLDescrTag        = 0x06

	mp4DescrMaxLevel = 4
)

// SlConfig SLConfigDescriptor，决定pes负载中SL header各个字段是否存在以及位宽
type SlConfig struct {
	UseAuStart      bool
	UseAuEnd        bool
	UseRandAccPt    bool
	UsePadding      bool
	UseTimestamps   bool
	UseIdle         bool
	TimestampRes    uint32
	TimestampLen    int
	OcrLen          int
	AuLen           int
	InstBitrateLen  int
	DegrPriorLen    int
	AuSeqNumLen     int
	PacketSeqNumLen int
}

// slConfigTable es_id到SL配置的映射，由IOD和object descriptor section填充，pes重组时查询
type slConfigTable map[int]SlConfig

func (t slConfigTable) get(esId int) SlConfig {
	return t[esId]
}

func (t slConfigTable) set(descrs []mp4Descr) {
	for i := range descrs {
		t[descrs[i].esId] = descrs[i].sl
	}
}

type mp4Descr struct {
	esId      int
	decConfig []byte // DecoderConfigDescriptor的内容，不包含tag和长度
	sl        SlConfig
}

type mp4DescrParser struct {
	descrs   []mp4Descr
	maxCount int
	level    int
	active   *mp4Descr
}

// readMp4Iods 解析InitialObjectDescriptor
//
// 出错时，已经解析出的ES描述依然返回
//
func readMp4Iods(b []byte, maxCount int) ([]mp4Descr, error) {
	p := &mp4DescrParser{maxCount: maxCount}
	_, err := p.parseDescr(b, mp4IODescrTag)
	return p.descrs, err
}

// readMp4Od 解析object descriptor section中的ObjectDescriptor数组
func readMp4Od(b []byte, maxCount int) ([]mp4Descr, error) {
	p := &mp4DescrParser{maxCount: maxCount}
	err := p.parseDescrArr(b)
	return p.descrs, err
}

// readMp4DescrHeader tag + 可变长度
//
// @return n: tag和长度字段占用的字节数
//
func readMp4DescrHeader(b []byte) (tag uint8, length int, n int, err error) {
	if len(b) < 2 {
		return 0, 0, 0, base.ErrShortBuffer
	}
	tag = b[0]
	n = 1
	// 每字节低7位有效，最高位为1表示后面还有，最多4字节
	for i := 0; i < 4; i++ {
		if n >= len(b) {
			return tag, 0, n, base.ErrShortBuffer
		}
		c := b[n]
		n++
		length = length<<7 | int(c&0x7f)
		if c&0x80 == 0 {
			break
		}
	}
	return tag, length, n, nil
}

// parseDescr
//
// @param targetTag: 非0时，要求描述符的tag必须是该值
//
// @return consumed: 该描述符占用的总字节数
//
func (p *mp4DescrParser) parseDescr(b []byte, targetTag uint8) (consumed int, err error) {
	tag, length, n, err := readMp4DescrHeader(b)
	if err != nil {
		return len(b), err
	}
	if length <= 0 || length > len(b)-n {
		Log.Errorf("mp4 descriptor length violation. tag=%x, length=%d, remaining=%d", tag, length, len(b)-n)
		return len(b), base.NewErrInvalidDescriptor(tag, length, len(b)-n)
	}
	consumed = n + length

	if p.level >= mp4DescrMaxLevel {
		Log.Errorf("mp4 descriptor maximum level exceeded. tag=%x", tag)
		return consumed, base.NewErrInvalidDescriptor(tag, p.level, mp4DescrMaxLevel)
	}
	p.level++
	defer func() {
		p.level--
	}()

	if targetTag != 0 && tag != targetTag {
		Log.Errorf("mp4 descriptor tag mismatch. tag=%x, expected=%x", tag, targetTag)
		return consumed, base.NewErrInvalidDescriptor(tag, int(targetTag), int(tag))
	}

	body := b[n:consumed]
	switch tag {
	case mp4IODescrTag:
		err = p.parseIod(body)
	case mp4ODescrTag:
		err = p.parseOd(body)
	case mp4ESDescrTag:
		err = p.parseEs(body)
	case mp4DecConfigDescrTag:
		err = p.parseDecConfig(body)
	case mp4SLDescrTag:
		err = p.parseSl(body)
	}
	return consumed, err
}

func (p *mp4DescrParser) parseDescrArr(b []byte) error {
	for len(b) > 0 {
		n, err := p.parseDescr(b, 0)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func (p *mp4DescrParser) parseIod(b []byte) error {
	// ObjectDescriptorID + flags(2)，5个profile level indication
	if len(b) < 7 {
		return nil
	}
	return p.parseDescrArr(b[7:])
}

func (p *mp4DescrParser) parseOd(b []byte) error {
	if len(b) < 2 {
		return nil
	}
	idFlags := bele.BeUint16(b)
	if idFlags&0x0020 != 0 {
		// URL_Flag
		return nil
	}
	return p.parseDescrArr(b[2:])
}

func (p *mp4DescrParser) parseEs(b []byte) error {
	if len(p.descrs) >= p.maxCount {
		return base.NewErrInvalidDescriptor(mp4ESDescrTag, p.maxCount, len(p.descrs))
	}

	c := newByteCursor(b)
	esId, err := c.ReadUint16()
	if err != nil {
		return base.NewErrInvalidDescriptor(mp4ESDescrTag, 3, len(b))
	}
	flags, err := c.ReadUint8()
	if err != nil {
		return base.NewErrInvalidDescriptor(mp4ESDescrTag, 3, len(b))
	}
	if flags&0x80 != 0 {
		// dependsOn_ES_ID
		c.Skip(2)
	}
	if flags&0x40 != 0 {
		// URL
		l, _ := c.ReadUint8()
		c.Skip(int(l))
	}
	if flags&0x20 != 0 {
		// OCR_ES_Id
		c.Skip(2)
	}

	p.descrs = append(p.descrs, mp4Descr{esId: int(esId)})
	p.active = &p.descrs[len(p.descrs)-1]
	defer func() {
		p.active = nil
	}()

	rest := b[c.Pos():]
	n, err := p.parseDescr(rest, mp4DecConfigDescrTag)
	if err != nil {
		return err
	}
	rest = rest[n:]
	if len(rest) > 0 {
		_, err = p.parseDescr(rest, mp4SLDescrTag)
	}
	return err
}

func (p *mp4DescrParser) parseDecConfig(b []byte) error {
	if p.active == nil {
		return base.NewErrInvalidDescriptor(mp4DecConfigDescrTag, 0, len(b))
	}
	p.active.decConfig = append([]byte(nil), b...)
	return nil
}

func (p *mp4DescrParser) parseSl(b []byte) error {
	if p.active == nil {
		return base.NewErrInvalidDescriptor(mp4SLDescrTag, 0, len(b))
	}
	if len(b) < 1 {
		return nil
	}
	if predefined := b[0]; predefined != 0 {
		Log.Warnf("predefined SLConfigDescriptor not supported. predefined=%d", predefined)
		return nil
	}
	// predefined(1) flags(1) timeStampResolution(4) OCRResolution(4) 4个长度(4) lengths(2)
	if len(b) < 16 {
		return base.NewErrInvalidDescriptor(mp4SLDescrTag, 16, len(b))
	}
	sl := &p.active.sl
	flags := b[1]
	sl.UseAuStart = flags&0x80 != 0
	sl.UseAuEnd = flags&0x40 != 0
	sl.UseRandAccPt = flags&0x20 != 0
	sl.UsePadding = flags&0x08 != 0
	sl.UseTimestamps = flags&0x04 != 0
	sl.UseIdle = flags&0x02 != 0
	sl.TimestampRes = bele.BeUint32(b[2:])
	sl.TimestampLen = int(b[10])
	sl.OcrLen = int(b[11])
	sl.AuLen = int(b[12])
	sl.InstBitrateLen = int(b[13])
	lengths := bele.BeUint16(b[14:])
	sl.DegrPriorLen = int(lengths >> 12)
	sl.AuSeqNumLen = int((lengths >> 7) & 0x1f)
	sl.PacketSeqNumLen = int((lengths >> 2) & 0x1f)
	if sl.TimestampLen >= 64 || sl.OcrLen >= 64 || sl.AuLen >= 32 {
		return base.NewErrInvalidDescriptor(mp4SLDescrTag, 0, len(b))
	}
	return nil
}

// ---------------------------------------------------------------------------------------------------------------------

// readDecConfig 根据DecoderConfigDescriptor设置流的codec和extradata
//
// objectTypeIndication(1) streamType(1) bufferSizeDB(3) maxBitrate(4) avgBitrate(4) [DecoderSpecificInfo]
//
func readDecConfig(st *Stream, b []byte) {
	if len(b) < 13 {
		return
	}
	if codecId, ok := mp4ObjectTypes[b[0]]; ok {
		st.CodecId = codecId
		st.MediaType = codecId.MediaType()
	}
	rest := b[13:]
	tag, length, n, err := readMp4DescrHeader(rest)
	if err != nil || tag != mp4DecSpecificTag {
		return
	}
	if length <= 0 || length > len(rest)-n {
		return
	}
	st.ExtraData = append([]byte(nil), rest[n:n+length]...)
}
