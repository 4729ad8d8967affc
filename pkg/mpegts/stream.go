// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"fmt"
	"strings"
)

type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeData
	MediaTypeSubtitle
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeData:
		return "data"
	case MediaTypeSubtitle:
		return "subtitle"
	}
	return "unknown"
}

type CodecId int

const (
	CodecIdNone CodecId = iota
	CodecIdMpeg1Video
	CodecIdMpeg2Video
	CodecIdMpeg4
	CodecIdH264
	CodecIdHevc
	CodecIdCavs
	CodecIdDirac
	CodecIdVc1
	CodecIdJpeg2000
	CodecIdMjpeg
	CodecIdMp3
	CodecIdAac
	CodecIdAacLatm
	CodecIdAc3
	CodecIdEac3
	CodecIdDts
	CodecIdTrueHd
	CodecIdPcmBluray
	CodecIdS302m
	CodecIdOpus
	CodecIdHdmvPgsSubtitle
	CodecIdDvbSubtitle
	CodecIdDvbTeletext
	CodecIdMpeg4Systems
)

var codecIdNames = map[CodecId]string{
	CodecIdNone:            "none",
	CodecIdMpeg1Video:      "mpeg1video",
	CodecIdMpeg2Video:      "mpeg2video",
	CodecIdMpeg4:           "mpeg4",
	CodecIdH264:            "h264",
	CodecIdHevc:            "hevc",
	CodecIdCavs:            "cavs",
	CodecIdDirac:           "dirac",
	CodecIdVc1:             "vc1",
	CodecIdJpeg2000:        "jpeg2000",
	CodecIdMjpeg:           "mjpeg",
	CodecIdMp3:             "mp3",
	CodecIdAac:             "aac",
	CodecIdAacLatm:         "aac_latm",
	CodecIdAc3:             "ac3",
	CodecIdEac3:            "eac3",
	CodecIdDts:             "dts",
	CodecIdTrueHd:          "truehd",
	CodecIdPcmBluray:       "pcm_bluray",
	CodecIdS302m:           "s302m",
	CodecIdOpus:            "opus",
	CodecIdHdmvPgsSubtitle: "hdmv_pgs_subtitle",
	CodecIdDvbSubtitle:     "dvb_subtitle",
	CodecIdDvbTeletext:     "dvb_teletext",
	CodecIdMpeg4Systems:    "mpeg4systems",
}

func (c CodecId) String() string {
	if s, ok := codecIdNames[c]; ok {
		return s
	}
	return fmt.Sprintf("codec(%d)", int(c))
}

// MediaType codec对应的媒体类型
func (c CodecId) MediaType() MediaType {
	switch c {
	case CodecIdNone:
		return MediaTypeUnknown
	case CodecIdMpeg1Video, CodecIdMpeg2Video, CodecIdMpeg4, CodecIdH264, CodecIdHevc, CodecIdCavs, CodecIdDirac,
		CodecIdVc1, CodecIdJpeg2000, CodecIdMjpeg:
		return MediaTypeVideo
	case CodecIdHdmvPgsSubtitle, CodecIdDvbSubtitle, CodecIdDvbTeletext:
		return MediaTypeSubtitle
	case CodecIdMpeg4Systems:
		return MediaTypeData
	}
	return MediaTypeAudio
}

type Disposition uint32

const (
	DispositionCleanEffects    Disposition = 1 << 0
	DispositionHearingImpaired Disposition = 1 << 1
	DispositionVisualImpaired  Disposition = 1 << 2
)

func (d Disposition) String() string {
	var ss []string
	if d&DispositionCleanEffects != 0 {
		ss = append(ss, "clean_effects")
	}
	if d&DispositionHearingImpaired != 0 {
		ss = append(ss, "hearing_impaired")
	}
	if d&DispositionVisualImpaired != 0 {
		ss = append(ss, "visual_impaired")
	}
	return strings.Join(ss, "|")
}

// Stream demux出的一路流
//
// 注意，HDMV TrueHD的pid会产生两个 Stream ，它们的 Pid 相同
//
type Stream struct {
	Index      int
	Pid        uint16
	StreamType uint8 // PMT中的stream_type，0表示未知

	MediaType MediaType
	CodecId   CodecId
	CodecTag  uint32

	Language     string // ISO 639，多个时以逗号分隔
	Disposition  Disposition
	ExtraData    []byte
	ComponentTag int // stream_identifier_descriptor，-1表示不存在

	// 时间基，pts和dts的单位为 TimeBaseNum/TimeBaseDen 秒
	TimeBaseNum int
	TimeBaseDen int
	PtsWrapBits int

	// Discard 为true时，该流的pes数据不再重组
	Discard bool
}

func newStream(index int, pid uint16) *Stream {
	return &Stream{
		Index:        index,
		Pid:          pid,
		ComponentTag: -1,
		TimeBaseNum:  1,
		TimeBaseDen:  90000,
		PtsWrapBits:  33,
	}
}

func (s *Stream) setTimeBase(wrapBits int, num int, den int) {
	s.PtsWrapBits = wrapBits
	s.TimeBaseNum = num
	s.TimeBaseDen = den
}

func (s *Stream) String() string {
	return fmt.Sprintf("stream(index=%d, pid=0x%x, type=0x%x, codec=%s, media=%s, lang=%s)",
		s.Index, s.Pid, s.StreamType, s.CodecId, s.MediaType, s.Language)
}

// Program PAT中的一个节目
type Program struct {
	Id     uint16 // program_number, 也即service id
	PmtPid uint16
	PcrPid int // -1表示PMT还未解析

	// Pids 属于该节目的pid，包含PAT、PMT、PCR以及各路流的pid
	Pids []uint16

	// StreamIndexes 属于该节目的流在 Demuxer.Streams 中的索引
	StreamIndexes []int

	// 来自SDT
	ServiceType     uint8
	ServiceProvider string
	ServiceName     string

	Discard bool
}

func (p *Program) addPid(pid uint16) {
	if len(p.Pids) >= maxPidsPerProgram || p.hasPid(pid) {
		return
	}
	p.Pids = append(p.Pids, pid)
}

func (p *Program) hasPid(pid uint16) bool {
	for _, v := range p.Pids {
		if v == pid {
			return true
		}
	}
	return false
}

func (p *Program) addStreamIndex(index int) {
	for _, v := range p.StreamIndexes {
		if v == index {
			return
		}
	}
	p.StreamIndexes = append(p.StreamIndexes, index)
}

// Packet demux出的一个pes包
type Packet struct {
	StreamIndex int
	Pid         uint16
	Pts         int64 // NoPts 表示不存在，单位参见 Stream 的时间基
	Dts         int64
	Pos         int64 // 该pes包第一个ts包在输入流中的偏移
	Corrupt     bool  // 长度和pes头中声明的不一致，或者重组期间发生了continuity_counter错误
	Payload     []byte
}

func (p *Packet) DebugString() string {
	return fmt.Sprintf("packet(stream=%d, pid=0x%x, pts=%d, dts=%d, pos=%d, corrupt=%t, size=%d)",
		p.StreamIndex, p.Pid, p.Pts, p.Dts, p.Pos, p.Corrupt, len(p.Payload))
}
