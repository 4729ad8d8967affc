// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/bele"
)

func TestOpusDescriptor(t *testing.T) {
	d := NewDemuxer(nil)
	golden := []struct {
		code     uint8
		channels uint8
		family   uint8
		streams  uint8
		coupled  uint8
		mapping  []uint8
	}{
		{0, 2, 255, 1, 1, []uint8{0, 1}},
		{2, 2, 0, 1, 1, []uint8{0, 1}},
		{6, 6, 1, 4, 2, []uint8{0, 4, 1, 2, 3, 5}},
		{9, 2, 0, 0, 0, []uint8{0, 0}},
	}
	for _, g := range golden {
		st := newStream(0, 0x100)
		st.CodecId = CodecIdOpus
		err := d.parseEsDescriptor(st, StreamTypePrivateData, Descriptor{
			Tag:  DescriptorTagExtension,
			Data: []byte{descriptorExtTagOpus, g.code},
		}, nil, 0x100)
		assert.Equal(t, nil, err)

		b := st.ExtraData
		assert.Equal(t, opusExtraDataSize, len(b))
		assert.Equal(t, "OpusHead", string(b[:8]))
		assert.Equal(t, uint8(1), b[8])
		assert.Equal(t, g.channels, b[9])
		assert.Equal(t, uint32(48000), bele.LeUint32(b[12:]))
		assert.Equal(t, g.family, b[18])
		assert.Equal(t, g.streams, b[19])
		assert.Equal(t, g.coupled, b[20])
		assert.Equal(t, g.mapping, b[21:21+len(g.mapping)])
	}

	// 只对opus生效
	st := newStream(0, 0x100)
	st.CodecId = CodecIdAac
	_ = d.parseEsDescriptor(st, StreamTypePrivateData, Descriptor{
		Tag:  DescriptorTagExtension,
		Data: []byte{descriptorExtTagOpus, 2},
	}, nil, 0x100)
	assert.Equal(t, true, st.ExtraData == nil)
}

func TestLanguageDescriptor(t *testing.T) {
	d := NewDemuxer(nil)

	st := newStream(0, 0x100)
	err := d.parseEsDescriptor(st, StreamTypeAac, Descriptor{
		Tag:  DescriptorTagISO639LanguageAndAudioType,
		Data: []byte{'e', 'n', 'g', 0x00, 'f', 'r', 'a', 0x03},
	}, nil, 0x100)
	assert.Equal(t, nil, err)
	assert.Equal(t, "eng,fra", st.Language)
	assert.Equal(t, DispositionVisualImpaired, st.Disposition)

	// teletext
	st = newStream(0, 0x100)
	err = d.parseEsDescriptor(st, StreamTypePrivateData, Descriptor{
		Tag:  DescriptorTagTeletext,
		Data: []byte{'i', 't', 'a', 0x09, 0x88},
	}, nil, 0x100)
	assert.Equal(t, nil, err)
	assert.Equal(t, "ita", st.Language)
	assert.Equal(t, CodecIdDvbTeletext, st.CodecId)
	assert.Equal(t, MediaTypeSubtitle, st.MediaType)

	// 数据不够
	err = d.parseEsDescriptor(st, StreamTypePrivateData, Descriptor{
		Tag:  DescriptorTagTeletext,
		Data: []byte{'i', 't'},
	}, nil, 0x100)
	assert.Equal(t, true, err != nil)
}

func TestSubtitlingDescriptor(t *testing.T) {
	d := NewDemuxer(nil)

	st := newStream(0, 0x100)
	desc := Descriptor{
		Tag:  DescriptorTagSubtitling,
		Data: []byte{'d', 'e', 'u', 0x20, 0x00, 0x01, 0x00, 0x02},
	}
	err := d.parseEsDescriptor(st, StreamTypePrivateData, desc, nil, 0x100)
	assert.Equal(t, nil, err)
	assert.Equal(t, CodecIdDvbSubtitle, st.CodecId)
	assert.Equal(t, "deu", st.Language)
	assert.Equal(t, DispositionHearingImpaired, st.Disposition)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02}, st.ExtraData)

	// 第二个不同的id不覆盖第一个
	desc.Data = []byte{'d', 'e', 'u', 0x10, 0x00, 0x03, 0x00, 0x04}
	err = d.parseEsDescriptor(st, StreamTypePrivateData, desc, nil, 0x100)
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02}, st.ExtraData)

	desc.Data = desc.Data[:5]
	err = d.parseEsDescriptor(st, StreamTypePrivateData, desc, nil, 0x100)
	assert.Equal(t, true, err != nil)
}

func TestRegistrationDescriptor(t *testing.T) {
	d := NewDemuxer(nil)

	st := newStream(0, 0x100)
	err := d.parseEsDescriptor(st, StreamTypePrivateData, Descriptor{
		Tag:  DescriptorTagRegistration,
		Data: []byte("AC-3"),
	}, nil, 0x100)
	assert.Equal(t, nil, err)
	assert.Equal(t, CodecIdAc3, st.CodecId)
	assert.Equal(t, MediaTypeAudio, st.MediaType)
	assert.Equal(t, mkTag("AC-3"), st.CodecTag)

	// 已经确定codec时只更新codec tag
	st = newStream(0, 0x100)
	st.CodecId = CodecIdH264
	st.MediaType = MediaTypeVideo
	err = d.parseEsDescriptor(st, StreamTypeAvc, Descriptor{
		Tag:  DescriptorTagRegistration,
		Data: []byte("HEVC"),
	}, nil, 0x100)
	assert.Equal(t, nil, err)
	assert.Equal(t, CodecIdH264, st.CodecId)
	assert.Equal(t, mkTag("HEVC"), st.CodecTag)

	err = d.parseEsDescriptor(st, StreamTypeAvc, Descriptor{
		Tag:  DescriptorTagRegistration,
		Data: []byte("HE"),
	}, nil, 0x100)
	assert.Equal(t, true, err != nil)
}

func TestPrivateDataDescriptorType(t *testing.T) {
	d := NewDemuxer(nil)

	// stream_type为private data时，由AC-3描述符确定codec
	st := newStream(0, 0x100)
	err := d.parseEsDescriptor(st, StreamTypePrivateData, Descriptor{
		Tag:  DescriptorTagAC3,
		Data: []byte{0x00},
	}, nil, 0x100)
	assert.Equal(t, nil, err)
	assert.Equal(t, CodecIdAc3, st.CodecId)

	// 其他stream_type不受影响
	st = newStream(0, 0x100)
	_ = d.parseEsDescriptor(st, StreamTypeAvc, Descriptor{
		Tag:  DescriptorTagAC3,
		Data: []byte{0x00},
	}, nil, 0x100)
	assert.Equal(t, CodecIdNone, st.CodecId)
}
