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
)

func mp4Descriptor(tag uint8, body []byte) []byte {
	return append([]byte{tag, uint8(len(body))}, body...)
}

// testEsDescr es_id为`esId`的AAC，DecoderSpecificInfo为[0x12, 0x10]，SL header中使用32位、1000Hz的时间戳
func testEsDescr(esId uint16) []byte {
	decConfig := []byte{
		0x40,                   // objectTypeIndication
		0x15,                   // streamType
		0x00, 0x00, 0x00,       // bufferSizeDB
		0x00, 0x00, 0x00, 0x00, // maxBitrate
		0x00, 0x00, 0x00, 0x00, // avgBitrate
	}
	decConfig = append(decConfig, mp4Descriptor(mp4DecSpecificTag, []byte{0x12, 0x10})...)

	sl := []byte{
		0x00,                   // predefined
		0x04,                   // useTimeStampsFlag
		0x00, 0x00, 0x03, 0xe8, // timeStampResolution
		0x00, 0x00, 0x00, 0x00, // OCRResolution
		32,                     // timeStampLength
		0,                      // OCRLength
		0,                      // AU_Length
		0,                      // instantBitrateLength
		0, 0,                   // degradationPriorityLength AU_seqNumLength packetSeqNumLength
	}

	es := []byte{uint8(esId >> 8), uint8(esId), 0x00}
	es = append(es, mp4Descriptor(mp4DecConfigDescrTag, decConfig)...)
	es = append(es, mp4Descriptor(mp4SLDescrTag, sl)...)
	return mp4Descriptor(mp4ESDescrTag, es)
}

func testIod(esId uint16) []byte {
	body := []byte{0x00, 0x1f, 0xff, 0xff, 0xff, 0xff, 0xff}
	body = append(body, testEsDescr(esId)...)
	return mp4Descriptor(mp4IODescrTag, body)
}

func TestReadMp4DescrHeader(t *testing.T) {
	tag, length, n, err := readMp4DescrHeader([]byte{0x03, 0x81, 0x00, 0xff})
	assert.Equal(t, nil, err)
	assert.Equal(t, uint8(0x03), tag)
	assert.Equal(t, 128, length)
	assert.Equal(t, 3, n)

	_, _, _, err = readMp4DescrHeader([]byte{0x03, 0x81})
	assert.Equal(t, true, err != nil)
}

func TestReadMp4Iods(t *testing.T) {
	descrs, err := readMp4Iods(testIod(1), maxMp4DescrCount)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(descrs))
	assert.Equal(t, 1, descrs[0].esId)
	assert.Equal(t, 17, len(descrs[0].decConfig))
	assert.Equal(t, true, descrs[0].sl.UseTimestamps)
	assert.Equal(t, false, descrs[0].sl.UseAuStart)
	assert.Equal(t, uint32(1000), descrs[0].sl.TimestampRes)
	assert.Equal(t, 32, descrs[0].sl.TimestampLen)

	st := newStream(0, 0x100)
	readDecConfig(st, descrs[0].decConfig)
	assert.Equal(t, CodecIdAac, st.CodecId)
	assert.Equal(t, MediaTypeAudio, st.MediaType)
	assert.Equal(t, []byte{0x12, 0x10}, st.ExtraData)

	// tag不对
	_, err = readMp4Iods(testEsDescr(1), maxMp4DescrCount)
	assert.Equal(t, true, err != nil)

	// 长度超出
	b := testIod(1)
	_, err = readMp4Iods(b[:len(b)-3], maxMp4DescrCount)
	assert.Equal(t, true, err != nil)
}

func TestReadMp4Od(t *testing.T) {
	od := []byte{0x00, 0x4f}
	od = append(od, testEsDescr(7)...)
	var b []byte
	b = append(b, mp4Descriptor(mp4ODescrTag, od)...)
	b = append(b, mp4Descriptor(mp4ODescrTag, od)...)

	descrs, err := readMp4Od(b, maxMp4DescrCount)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(descrs))
	assert.Equal(t, 7, descrs[1].esId)

	// 个数限制
	descrs, err = readMp4Od(b, 1)
	assert.Equal(t, true, err != nil)
	assert.Equal(t, 1, len(descrs))

	table := make(slConfigTable)
	table.set(descrs)
	assert.Equal(t, uint32(1000), table.get(7).TimestampRes)
	assert.Equal(t, SlConfig{}, table.get(8))
}

// TestDemuxerIod PMT中的IOD描述了一路SL打包的AAC
func TestDemuxerIod(t *testing.T) {
	tp := newTestPacker()
	pc := newPesCollector()

	iod := append([]byte{0x10, 0x01}, testIod(1)...) // scope + label
	feedCells(pc.d, tp.packSectionCells(PidPat, packPatSection(1, 0, []testProgram{{1, 0x100}})))
	feedCells(pc.d, tp.packSectionCells(0x100, packPmtSection(1, 0, 0x101, []Descriptor{
		{Tag: DescriptorTagIod, Data: iod},
	}, []testEs{
		{streamType: StreamTypeMpeg4SlPes, pid: 0x101, descriptors: []Descriptor{
			{Tag: DescriptorTagSl, Data: []byte{0x00, 0x01}},
		}},
	})))

	streams := pc.d.Streams()
	assert.Equal(t, 1, len(streams))
	assert.Equal(t, CodecIdAac, streams[0].CodecId)
	assert.Equal(t, MediaTypeAudio, streams[0].MediaType)
	assert.Equal(t, []byte{0x12, 0x10}, streams[0].ExtraData)

	// dts_flag cts_flag dts(32) cts(32)
	sl := make([]byte, 9)
	putBits(sl, 0, 2, 3)
	putBits(sl, 2, 32, 1000)
	putBits(sl, 34, 32, 2000)
	payload := testPayload(20, 1)
	pes := buildPesHeader(StreamIdAudio, 0x00, nil, len(sl)+len(payload))
	pes = append(append(pes, sl...), payload...)
	feedCells(pc.d, packCell(0x101, true, 0, pes))

	assert.Equal(t, 1, len(pc.pkts))
	assert.Equal(t, payload, pc.pkts[0].Payload)
	assert.Equal(t, int64(1000), pc.pkts[0].Dts)
	assert.Equal(t, int64(2000), pc.pkts[0].Pts)
	assert.Equal(t, 1000, pc.d.Streams()[0].TimeBaseDen)
	assert.Equal(t, 32, pc.d.Streams()[0].PtsWrapBits)
}
