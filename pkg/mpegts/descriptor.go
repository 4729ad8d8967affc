// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"bytes"
	"strings"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/tsdemux/pkg/base"
)

// parseEsDescriptor 解析PMT中某一路流的一个描述符，结果写入`st`
//
// @param mp4Descrs: PMT program info中IOD描述符解析出的ES描述
//
func (d *Demuxer) parseEsDescriptor(st *Stream, streamType uint8, desc Descriptor, mp4Descrs []mp4Descr, pid uint16) error {
	if st.CodecId == CodecIdNone && streamType == StreamTypePrivateData {
		findStreamType(st, uint32(desc.Tag), descTypes)
	}

	c := newByteCursor(desc.Data)
	switch desc.Tag {
	case DescriptorTagSl:
		esId, err := c.ReadUint16()
		if err != nil {
			return base.NewErrInvalidDescriptor(desc.Tag, 2, len(desc.Data))
		}
		if f := d.pids[pid]; f != nil {
			f.esId = int(esId)
			if f.pes != nil {
				f.pes.esId = int(esId)
			}
		}
		for i := range mp4Descrs {
			if len(mp4Descrs[i].decConfig) == 0 || mp4Descrs[i].esId != int(esId) {
				continue
			}
			readDecConfig(st, mp4Descrs[i].decConfig)
			if st.CodecId == CodecIdMpeg4Systems {
				d.openSectionFilter(pid, tableKindM4od)
			}
		}
	case DescriptorTagFmc:
		if _, err := c.ReadUint16(); err != nil {
			return base.NewErrInvalidDescriptor(desc.Tag, 2, len(desc.Data))
		}
		if len(mp4Descrs) > 0 && st.CodecId == CodecIdAacLatm &&
			len(mp4Descrs[0].decConfig) > 0 && mp4Descrs[0].esId == int(pid) {
			readDecConfig(st, mp4Descrs[0].decConfig)
		}
	case DescriptorTagTeletext:
		lang, err := c.ReadBytes(3)
		if err != nil {
			return base.NewErrInvalidDescriptor(desc.Tag, 3, len(desc.Data))
		}
		st.Language = string(lang)
	case DescriptorTagSubtitling:
		// ISO_639_language_code(24) subtitling_type(8) composition_page_id(16) ancillary_page_id(16)
		if c.Len() < 8 {
			return base.NewErrInvalidDescriptor(desc.Tag, 8, len(desc.Data))
		}
		lang, _ := c.ReadBytes(3)
		subtitlingType, _ := c.ReadUint8()
		if subtitlingType >= 0x20 && subtitlingType <= 0x25 {
			// for the hard of hearing
			st.Disposition |= DispositionHearingImpaired
		}
		ids, _ := c.ReadBytes(4)
		if st.ExtraData == nil {
			st.ExtraData = append([]byte(nil), ids...)
		} else if len(st.ExtraData) == 4 && !bytes.Equal(st.ExtraData, ids) {
			Log.Warnf("[%s] dvb subtitle with multiple ids. pid=0x%x", d.uniqueKey, pid)
		}
		st.Language = string(lang)
	case DescriptorTagISO639LanguageAndAudioType:
		var langs []string
		for c.Len() >= 4 {
			lang, _ := c.ReadBytes(3)
			audioType, _ := c.ReadUint8()
			switch audioType {
			case 0x01:
				st.Disposition |= DispositionCleanEffects
			case 0x02:
				st.Disposition |= DispositionHearingImpaired
			case 0x03:
				st.Disposition |= DispositionVisualImpaired
			}
			langs = append(langs, string(lang))
		}
		if len(langs) > 0 && desc.Data[0] != 0 {
			st.Language = strings.Join(langs, ",")
		}
	case DescriptorTagRegistration:
		tag, err := c.ReadLeUint32()
		if err != nil {
			return base.NewErrInvalidDescriptor(desc.Tag, 4, len(desc.Data))
		}
		st.CodecTag = tag
		if st.CodecId == CodecIdNone {
			findStreamType(st, tag, regdTypes)
		}
	case DescriptorTagStreamIdentifier:
		ct, err := c.ReadUint8()
		if err != nil {
			return base.NewErrInvalidDescriptor(desc.Tag, 1, len(desc.Data))
		}
		st.ComponentTag = int(ct)
	case DescriptorTagExtension:
		extTag, err := c.ReadUint8()
		if err != nil {
			return base.NewErrInvalidDescriptor(desc.Tag, 1, len(desc.Data))
		}
		if st.CodecId == CodecIdOpus && extTag == descriptorExtTagOpus && st.ExtraData == nil {
			code, err := c.ReadUint8()
			if err != nil {
				return base.NewErrInvalidDescriptor(desc.Tag, 2, len(desc.Data))
			}
			st.ExtraData = makeOpusExtraData(code)
			if code > 8 {
				Log.Warnf("[%s] opus channel config code not supported. pid=0x%x, code=%d", d.uniqueKey, pid, code)
			}
		}
	}
	return nil
}

// ----- opus ----------------------------------------------------------------------------------------------------------

var opusCoupledStreamCnt = [9]uint8{1, 0, 1, 1, 2, 2, 2, 3, 3}

var opusStreamCnt = [9]uint8{1, 1, 1, 2, 2, 3, 4, 4, 5}

var opusChannelMap = [8][]uint8{
	{0},
	{0, 1},
	{0, 2, 1},
	{0, 1, 2, 3},
	{0, 4, 1, 2, 3},
	{0, 4, 1, 2, 3, 5},
	{0, 4, 1, 2, 3, 5, 6},
	{0, 6, 1, 2, 3, 4, 5, 7},
}

const opusExtraDataSize = 30

// makeOpusExtraData 根据channel_config_code构造OpusHead，不支持的code只填充默认的双声道头
//
// <RFC 7845> <5.1 Identification Header>
// magic(8) version(1) channels(1) pre-skip(2) sample rate(4) gain(2) mapping family(1)
// stream count(1) coupled count(1) channel mapping(channels)
//
func makeOpusExtraData(code uint8) []byte {
	b := make([]byte, opusExtraDataSize)
	copy(b, "OpusHead")
	b[8] = 1
	b[9] = 2
	bele.LePutUint32(b[12:], 48000)
	if code > 8 {
		return b
	}

	channels := code
	if code == 0 {
		channels = 2
	}
	b[9] = channels
	if code == 0 {
		b[18] = 255
	} else if channels > 2 {
		b[18] = 1
	}
	b[19] = opusStreamCnt[code]
	b[20] = opusCoupledStreamCnt[code]
	copy(b[21:], opusChannelMap[channels-1])
	return b
}
