// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"encoding/hex"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/tsdemux/pkg/base"
)

// -----------------------------------------------------------
// <iso13818-1.pdf>
// <2.4.3.6 PES packet> <page 49/174>
// <Table E.1 - PES packet header example> <page 142/174>
// <F.0.2 PES packet> <page 144/174>
// packet_start_code_prefix  [24b] *** always 0x00, 0x00, 0x01
// stream_id                 [8b]  *
// PES_packet_length         [16b] **
// '10'                      [2b]
// PES_scrambling_control    [2b]
// PES_priority              [1b]
// data_alignment_indicator  [1b]
// copyright                 [1b]
// original_or_copy          [1b]  *
// PTS_DTS_flags             [2b]
// ESCR_flag                 [1b]
// ES_rate_flag              [1b]
// DSM_trick_mode_flag       [1b]
// additional_copy_info_flag [1b]
// PES_CRC_flag              [1b]
// PES_extension_flag        [1b]  *
// PES_header_data_length    [8b]  *
// -----------------------------------------------------------
type PesHeader struct {
	StreamId         uint8
	PacketLength     uint16
	Scrambling       uint8
	PtsDtsFlags      uint8
	EscrFlag         uint8
	EsRateFlag       uint8
	DsmTrickModeFlag uint8
	AddCopyInfoFlag  uint8
	CrcFlag          uint8
	ExtensionFlag    uint8
	HeaderDataLength uint8

	Pts              int64 // NoPts 表示不存在
	Dts              int64 // 只有pts时，和pts相同
	ExtendedStreamId int   // -1表示不存在
}

const (
	pesStartSize  = 6 // start code prefix + stream_id + PES_packet_length
	pesHeaderSize = 9 // 到PES_header_data_length为止
)

// ParsePesHeader 解析pes头，包括可选头
//
// @param b: 从packet_start_code_prefix开始，至少包含 9 + PES_header_data_length 字节
//
func ParsePesHeader(b []byte) (h PesHeader, err error) {
	h.Pts = NoPts
	h.Dts = NoPts
	h.ExtendedStreamId = -1
	if len(b) < pesHeaderSize {
		return h, base.ErrShortBuffer
	}

	br := nazabits.NewBitReader(b)
	_, _ = br.ReadBits32(24)
	h.StreamId, _ = br.ReadBits8(8)
	h.PacketLength, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(2)
	h.Scrambling, _ = br.ReadBits8(2)
	_, _ = br.ReadBits8(4)
	h.PtsDtsFlags, _ = br.ReadBits8(2)
	h.EscrFlag, _ = br.ReadBits8(1)
	h.EsRateFlag, _ = br.ReadBits8(1)
	h.DsmTrickModeFlag, _ = br.ReadBits8(1)
	h.AddCopyInfoFlag, _ = br.ReadBits8(1)
	h.CrcFlag, _ = br.ReadBits8(1)
	h.ExtensionFlag, _ = br.ReadBits8(1)
	h.HeaderDataLength, _ = br.ReadBits8(8)

	end := pesHeaderSize + int(h.HeaderDataLength)
	if len(b) < end {
		return h, base.ErrShortBuffer
	}

	r := pesHeaderSize
	switch h.PtsDtsFlags {
	case 0x2:
		if r+5 <= end {
			h.Pts = ParsePesPts(b[r:])
			h.Dts = h.Pts
			r += 5
		}
	case 0x3:
		if r+10 <= end {
			h.Pts = ParsePesPts(b[r:])
			h.Dts = ParsePesPts(b[r+5:])
			r += 10
		}
	}

	if h.ExtensionFlag == 0 {
		return h, nil
	}

	// 扩展字段之前的可选字段
	if h.EscrFlag != 0 {
		r += 6
	}
	if h.EsRateFlag != 0 {
		r += 3
	}
	if h.DsmTrickModeFlag != 0 {
		r++
	}
	if h.AddCopyInfoFlag != 0 {
		r++
	}
	if h.CrcFlag != 0 {
		r += 2
	}
	if r >= end {
		return h, nil
	}

	pesExt := b[r]
	r++
	// PES_private_data(16) pack_header_field(不支持) program_packet_sequence_counter(2) P-STD_buffer(2)
	skip := int(pesExt>>4) & 0xb
	skip += skip & 0x9
	r += skip
	if pesExt&0x41 == 0x01 && r+2 <= end {
		// PES_extension_field_length, stream_id_extension_flag == 0
		if b[r]&0x7f > 0 && b[r+1]&0x80 == 0 {
			h.ExtendedStreamId = int(b[r+1])
		}
	}
	return h, nil
}

// ParsePesPts 解析5字节的pts或dts，结果为33位
func ParsePesPts(b []byte) int64 {
	pts := int64(b[0]&0x0e) << 29
	pts |= int64(bele.BeUint16(b[1:])>>1) << 15
	pts |= int64(bele.BeUint16(b[3:]) >> 1)
	return pts
}

// ----- pes reassembly ------------------------------------------------------------------------------------------------

type pesState int

const (
	pesStateHeader pesState = iota
	pesStatePesHeader
	pesStatePesHeaderFill
	pesStatePayload
	pesStateSkip
)

func (s pesState) String() string {
	switch s {
	case pesStateHeader:
		return "HEADER"
	case pesStatePesHeader:
		return "PESHEADER"
	case pesStatePesHeaderFill:
		return "PESHEADER_FILL"
	case pesStatePayload:
		return "PAYLOAD"
	case pesStateSkip:
		return "SKIP"
	}
	return "unknown"
}

// 负载缓存的初始容量，之后按需增长
const pesInitBufSize = 4096

// pesContext 一个pid上的pes重组状态
//
// HDMV TrueHD的pid上会有两路流，AC-3子流的包通过extended_stream_id区分
//
type pesContext struct {
	d *Demuxer

	pid        uint16
	pcrPid     int
	streamType uint8
	st         *Stream
	subSt      *Stream

	state            pesState
	dataIndex        int
	corrupt          bool
	bounded          bool // PES_packet_length不为0
	totalSize        int  // PES_packet_length
	pesHeaderSize    int
	extendedStreamId int
	pts              int64
	dts              int64
	packetPos        int64 // 当前pes包第一个ts包的位置

	header [pesHeaderSize + 255]byte
	buf    []byte // nil表示当前没有可写入的pes包

	// stream_type为0x12时，按es_id查找SL配置
	esId      int
	slConfigs slConfigTable
}

func newPesContext(d *Demuxer, pid uint16, pcrPid int) *pesContext {
	return &pesContext{
		d:                d,
		pid:              pid,
		pcrPid:           pcrPid,
		state:            pesStateSkip,
		extendedStreamId: -1,
		pts:              NoPts,
		dts:              NoPts,
		esId:             -1,
		slConfigs:        d.slConfigs,
	}
}

// setStreamInfo 根据stream_type设置流的codec信息
//
// @param progRegDesc: PMT program info中registration descriptor的format_identifier，没有时为0
//
func (p *pesContext) setStreamInfo(st *Stream, streamType uint8, progRegDesc uint32) {
	st.setTimeBase(33, 1, 90000)
	st.MediaType = MediaTypeData
	st.CodecId = CodecIdNone
	st.StreamType = streamType
	st.CodecTag = uint32(streamType)
	p.st = st
	p.streamType = streamType

	findStreamType(st, uint32(streamType), isoTypes)
	if isBlurayRegistration(progRegDesc) && st.CodecId == CodecIdNone {
		findStreamType(st, uint32(streamType), hdmvTypes)
		if streamType == StreamTypeHdmvTrueHd && p.subSt == nil {
			// TrueHD流中同时包含AC-3编码的版本，增加一路流
			subSt := p.d.newStream(p.pid)
			subSt.StreamType = streamType
			subSt.MediaType = MediaTypeAudio
			subSt.CodecId = CodecIdAc3
			p.subSt = subSt
		}
	}
	if st.CodecId == CodecIdNone {
		findStreamType(st, uint32(streamType), miscTypes)
	}

	Log.Infof("[%s] stream. %s", p.d.uniqueKey, st.String())
}

// push 输入一个ts包的负载
//
// @param isStart: payload_unit_start_indicator
// @param pos:     ts包在输入流中的位置
//
func (p *pesContext) push(b []byte, isStart bool, pos int64) {
	if isStart {
		if p.state == pesStatePayload && p.dataIndex > 0 {
			p.emit()
		}
		// 上一个包没有输出时，它残留的状态不能带到新包
		p.corrupt = false
		p.pts = NoPts
		p.dts = NoPts
		p.extendedStreamId = -1
		p.state = pesStateHeader
		p.dataIndex = 0
		p.packetPos = pos
	}

	for len(b) > 0 {
		switch p.state {
		case pesStateHeader:
			n := copy(p.header[p.dataIndex:pesStartSize], b)
			p.dataIndex += n
			b = b[n:]
			if p.dataIndex == pesStartSize {
				p.onStartCode()
			}
		case pesStatePesHeader:
			n := copy(p.header[p.dataIndex:pesHeaderSize], b)
			p.dataIndex += n
			b = b[n:]
			if p.dataIndex == pesHeaderSize {
				p.pesHeaderSize = int(p.header[8]) + pesHeaderSize
				p.state = pesStatePesHeaderFill
			}
		case pesStatePesHeaderFill:
			n := copy(p.header[p.dataIndex:p.pesHeaderSize], b)
			p.dataIndex += n
			b = b[n:]
			if p.dataIndex == p.pesHeaderSize {
				p.onPesHeader()
				p.state = pesStatePayload
				p.dataIndex = 0
				if p.streamType == StreamTypeMpeg4SlPes && len(b) > 0 {
					n := p.readSlHeader(b)
					if n > len(b) {
						n = len(b)
					}
					p.pesHeaderSize += n
					b = b[n:]
				}
			}
		case pesStatePayload:
			b = p.writePayload(b, pos)
		case pesStateSkip:
			b = nil
		}
	}
}

// flush 输入结束时调用，返回是否输出了一个包
func (p *pesContext) flush() bool {
	if p.state != pesStatePayload || p.dataIndex == 0 || p.buf == nil {
		return false
	}
	p.emit()
	p.state = pesStateSkip
	return true
}

func (p *pesContext) onStartCode() {
	h := p.header[:pesStartSize]
	if h[0] != 0x00 || h[1] != 0x00 || h[2] != 0x01 {
		// 不是pes，比如被错误当作pes的section数据
		Log.Tracef("[%s] not pes start code, skip. pid=0x%x, header=%s", p.d.uniqueKey, p.pid, hex.EncodeToString(h))
		p.state = pesStateSkip
		return
	}

	sid := h[3]
	Log.Tracef("[%s] pes start. pid=0x%x, stream id=0x%x", p.d.uniqueKey, p.pid, sid)
	if (p.st != nil && p.st.Discard && (p.subSt == nil || p.subSt.Discard)) || sid == StreamIdPaddingStream {
		p.state = pesStateSkip
		return
	}

	// PMT中没有的流
	if p.st == nil {
		p.setStreamInfo(p.d.newStream(p.pid), 0, 0)
	}

	p.totalSize = int(bele.BeUint16(h[4:]))
	p.bounded = p.totalSize != 0
	p.buf = make([]byte, 0, pesInitBufSize)

	switch sid {
	case StreamIdProgramStreamMap, StreamIdPrivateStream2, StreamIdEcmStream, StreamIdEmmStream,
		StreamIdProgramStreamDirectory, StreamIdDsmccStream, StreamIdH2221TypeE:
		// 没有可选头
		p.pesHeaderSize = pesStartSize
		p.state = pesStatePayload
		p.dataIndex = 0
	default:
		p.state = pesStatePesHeader
	}
}

func (p *pesContext) onPesHeader() {
	b := p.header[:p.pesHeaderSize]
	p.d.pesDumper.Dump(b, "[%s] pes header. pid=0x%x", p.d.uniqueKey, p.pid)

	h, err := ParsePesHeader(b)
	if err != nil {
		Log.Warnf("[%s] parse pes header failed. pid=0x%x, err=%+v", p.d.uniqueKey, p.pid, err)
	}
	p.pts = h.Pts
	p.dts = h.Dts
	p.extendedStreamId = h.ExtendedStreamId
}

// payloadCapacity 当前pes包负载的最大字节数
func (p *pesContext) payloadCapacity() int {
	if !p.bounded {
		return p.d.option.MaxPesPayload
	}
	c := p.totalSize + pesStartSize - p.pesHeaderSize
	if c < 0 {
		c = 0
	}
	return c
}

// writePayload 返回当前pes包写满之后剩余的数据
//
// @param pos: `b`所在ts包的位置，剩余数据开始的新包使用该位置
//
func (p *pesContext) writePayload(b []byte, pos int64) []byte {
	if p.buf == nil {
		// 按声明长度提前输出后，直到下一个起始包之前的数据都丢弃
		return nil
	}

	capacity := p.payloadCapacity()
	if p.bounded && p.dataIndex == 0 && len(b) > capacity {
		// pes包比ts包还小，并且剩余部分用0xff填充在负载中
		b = b[:capacity]
	}

	if room := capacity - p.dataIndex; len(b) > room {
		// 写满当前包并输出，剩余数据作为一个新的不定长包的开始
		Log.Debugf("[%s] pes payload full. pid=0x%x, capacity=%d, index=%d, in=%d", p.d.uniqueKey, p.pid,
			capacity, p.dataIndex, len(b))
		p.buf = append(p.buf, b[:room]...)
		p.dataIndex += room
		rest := b[room:]
		p.emit()
		p.bounded = false
		p.totalSize = 0
		p.packetPos = pos
		p.buf = make([]byte, 0, pesInitBufSize)
		return rest
	}

	p.buf = append(p.buf, b...)
	p.dataIndex += len(b)

	// 长度确定的包，数据完整时立即输出，不用等下一个pes的起始
	if p.bounded && p.dataIndex == capacity {
		p.emit()
	}
	return nil
}

func (p *pesContext) emit() {
	if p.bounded && p.pesHeaderSize+p.dataIndex != p.totalSize+pesStartSize {
		Log.Warnf("[%s] pes packet size mismatch. pid=0x%x, declared=%d, actual=%d", p.d.uniqueKey, p.pid,
			p.totalSize+pesStartSize, p.pesHeaderSize+p.dataIndex)
		p.corrupt = true
	}

	st := p.st
	if p.subSt != nil && p.streamType == StreamTypeHdmvTrueHd && p.extendedStreamId == extendedStreamIdAc3 {
		st = p.subSt
	}

	pkt := Packet{
		StreamIndex: st.Index,
		Pid:         p.pid,
		Pts:         p.pts,
		Dts:         p.dts,
		Pos:         p.packetPos,
		Corrupt:     p.corrupt,
		Payload:     p.buf[:p.dataIndex],
	}

	p.pts = NoPts
	p.dts = NoPts
	p.buf = nil
	p.dataIndex = 0
	p.corrupt = false

	p.d.onPesPacket(pkt)
}
