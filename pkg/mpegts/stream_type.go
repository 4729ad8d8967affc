// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

type streamTypeEntry struct {
	streamType uint32
	mediaType  MediaType
	codecId    CodecId
}

var isoTypes = []streamTypeEntry{
	{0x01, MediaTypeVideo, CodecIdMpeg2Video},
	{0x02, MediaTypeVideo, CodecIdMpeg2Video},
	{0x03, MediaTypeAudio, CodecIdMp3},
	{0x04, MediaTypeAudio, CodecIdMp3},
	{0x0f, MediaTypeAudio, CodecIdAac},
	{0x10, MediaTypeVideo, CodecIdMpeg4},
	{0x11, MediaTypeAudio, CodecIdAacLatm},
	{0x1b, MediaTypeVideo, CodecIdH264},
	{0x21, MediaTypeVideo, CodecIdJpeg2000},
	{0x24, MediaTypeVideo, CodecIdHevc},
	{0x42, MediaTypeVideo, CodecIdCavs},
	{0xd1, MediaTypeVideo, CodecIdDirac},
	{0xea, MediaTypeVideo, CodecIdVc1},
}

// 只在program info中存在"HDMV"注册描述时使用
var hdmvTypes = []streamTypeEntry{
	{0x80, MediaTypeAudio, CodecIdPcmBluray},
	{0x81, MediaTypeAudio, CodecIdAc3},
	{0x82, MediaTypeAudio, CodecIdDts},
	{0x83, MediaTypeAudio, CodecIdTrueHd},
	{0x84, MediaTypeAudio, CodecIdEac3},
	{0x85, MediaTypeAudio, CodecIdDts}, // DTS HD
	{0x86, MediaTypeAudio, CodecIdDts}, // DTS HD MASTER
	{0x90, MediaTypeSubtitle, CodecIdHdmvPgsSubtitle},
}

// ATSC
var miscTypes = []streamTypeEntry{
	{0x81, MediaTypeAudio, CodecIdAc3},
	{0x8a, MediaTypeAudio, CodecIdDts},
}

// registration descriptor中的format_identifier
var regdTypes = []streamTypeEntry{
	{mkTag("drac"), MediaTypeVideo, CodecIdDirac},
	{mkTag("AC-3"), MediaTypeAudio, CodecIdAc3},
	{mkTag("BSSD"), MediaTypeAudio, CodecIdS302m},
	{mkTag("DTS1"), MediaTypeAudio, CodecIdDts},
	{mkTag("DTS2"), MediaTypeAudio, CodecIdDts},
	{mkTag("DTS3"), MediaTypeAudio, CodecIdDts},
	{mkTag("HEVC"), MediaTypeVideo, CodecIdHevc},
	{mkTag("VC-1"), MediaTypeVideo, CodecIdVc1},
	{mkTag("Opus"), MediaTypeAudio, CodecIdOpus},
}

// stream_type为private data时，根据描述符tag判断
var descTypes = []streamTypeEntry{
	{DescriptorTagAC3, MediaTypeAudio, CodecIdAc3},
	{DescriptorTagEnhancedAC3, MediaTypeAudio, CodecIdEac3},
	{DescriptorTagDts, MediaTypeAudio, CodecIdDts},
	{DescriptorTagTeletext, MediaTypeSubtitle, CodecIdDvbTeletext},
	{DescriptorTagSubtitling, MediaTypeSubtitle, CodecIdDvbSubtitle},
}

// findStreamType 在`types`中查找，找到则设置`st`的codec
func findStreamType(st *Stream, streamType uint32, types []streamTypeEntry) bool {
	for _, t := range types {
		if t.streamType == streamType {
			st.MediaType = t.mediaType
			st.CodecId = t.codecId
			return true
		}
	}
	return false
}

// mp4 DecoderConfigDescriptor 中的 objectTypeIndication
var mp4ObjectTypes = map[uint8]CodecId{
	0x01: CodecIdMpeg4Systems,
	0x20: CodecIdMpeg4,
	0x21: CodecIdH264,
	0x40: CodecIdAac,
	0x60: CodecIdMpeg2Video, // MPEG-2 Simple
	0x61: CodecIdMpeg2Video, // MPEG-2 Main
	0x62: CodecIdMpeg2Video, // MPEG-2 SNR
	0x63: CodecIdMpeg2Video, // MPEG-2 Spatial
	0x64: CodecIdMpeg2Video, // MPEG-2 High
	0x65: CodecIdMpeg2Video, // MPEG-2 422
	0x66: CodecIdAac,        // MPEG-2 AAC Main
	0x67: CodecIdAac,        // MPEG-2 AAC Low
	0x68: CodecIdAac,        // MPEG-2 AAC SSR
	0x69: CodecIdMp3,        // 13818-3
	0x6A: CodecIdMpeg1Video, // 11172-2
	0x6B: CodecIdMp3,        // 11172-3
	0x6C: CodecIdMjpeg,      // 10918-1
}
