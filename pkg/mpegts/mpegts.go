// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"math"

	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsdemux/pkg/base"
)

var Log = nazalog.GetGlobalLogger()

var ErrMpegts = base.ErrMpegts

// NoPts 表示pts或dts不存在
const NoPts int64 = math.MinInt64

const (
	syncByte uint8 = 0x47

	PacketSize     = 188 // 标准ts包
	DvhsPacketSize = 192 // 4字节时间码 + 188
	FecPacketSize  = 204 // 188 + 16字节 Reed-Solomon 校验
	MaxPacketSize  = FecPacketSize

	// NbPidMax pid为13位
	NbPidMax = 8192

	MaxSectionSize = 4096

	// MaxResyncSize 同步丢失时，最多向后查找多少字节的0x47
	MaxResyncSize = 65536

	// MaxPesPayload 没有声明长度的pes包，缓存的上限
	MaxPesPayload = 200 * 1024

	// DefaultProbeSize 启动阶段用于探测包大小的数据量
	DefaultProbeSize = 5 * 1024

	// DefaultScanSize 启动阶段用于扫描PAT、PMT的数据量
	DefaultScanSize = 5 * 1000 * 1000

	maxPidsPerProgram = 64
	maxMp4DescrCount  = 16
)

// pid
const (
	PidPat  uint16 = 0x0000
	PidCat  uint16 = 0x0001
	PidSdt  uint16 = 0x0011
	PidNull uint16 = 0x1FFF
)

// adaptation_field_control
const (
	AdaptationFieldControlReserved uint8 = 0 // Reserved for future use by ISO/IEC
	AdaptationFieldControlNo       uint8 = 1 // No adaptation_field, payload only
	AdaptationFieldControlOnly     uint8 = 2 // Adaptation_field only, no payload
	AdaptationFieldControlFollowed uint8 = 3 // Adaptation_field followed by payload
)

// stream_type
//
// <iso13818-1.pdf> <Table 2-29 Stream type assignments> <page 66/174>
const (
	StreamTypeMpeg1Video      uint8 = 0x01
	StreamTypeMpeg2Video      uint8 = 0x02
	StreamTypeMpeg1Audio      uint8 = 0x03
	StreamTypeMpeg2Audio      uint8 = 0x04
	StreamTypePrivateSection  uint8 = 0x05
	StreamTypePrivateData     uint8 = 0x06
	StreamTypeAac             uint8 = 0x0F
	StreamTypeMpeg4Video      uint8 = 0x10
	StreamTypeAacLatm         uint8 = 0x11
	StreamTypeMpeg4SlPes      uint8 = 0x12 // ISO/IEC 14496-1 SL-packetized stream in PES packets
	StreamTypeMpeg4SlSection  uint8 = 0x13 // ISO/IEC 14496-1 SL-packetized stream in 14496_sections
	StreamTypeAvc             uint8 = 0x1B
	StreamTypeJpeg2000        uint8 = 0x21
	StreamTypeHevc            uint8 = 0x24
	StreamTypeCavs            uint8 = 0x42
	StreamTypeHdmvPcm         uint8 = 0x80
	StreamTypeAc3             uint8 = 0x81
	StreamTypeHdmvDts         uint8 = 0x82
	StreamTypeHdmvTrueHd      uint8 = 0x83
	StreamTypeHdmvEac3        uint8 = 0x84
	StreamTypeHdmvDtsHd       uint8 = 0x85
	StreamTypeHdmvDtsHdMaster uint8 = 0x86
	StreamTypeDts             uint8 = 0x8A
	StreamTypeHdmvPgs         uint8 = 0x90
	StreamTypeDirac           uint8 = 0xD1
	StreamTypeVc1             uint8 = 0xEA
)

// PES stream_id，和pes头中的packet code的低8位对应
//
// <iso13818-1.pdf> <Table 2-18 Stream_id assignments> <page 52/174>
const (
	StreamIdProgramStreamMap       uint8 = 0xBC
	StreamIdPrivateStream1         uint8 = 0xBD
	StreamIdPaddingStream          uint8 = 0xBE
	StreamIdPrivateStream2         uint8 = 0xBF
	StreamIdAudio                  uint8 = 0xC0 // 110x xxxx
	StreamIdVideo                  uint8 = 0xE0 // 1110 xxxx
	StreamIdEcmStream              uint8 = 0xF0
	StreamIdEmmStream              uint8 = 0xF1
	StreamIdDsmccStream            uint8 = 0xF2
	StreamIdH2221TypeE             uint8 = 0xF8
	StreamIdProgramStreamDirectory uint8 = 0xFF
)

// extended_stream_id，HDMV TrueHD pid中携带的AC-3子流
const extendedStreamIdAc3 = 0x76

// mkTag 和registration descriptor中按小端读取的4字节标识对应
func mkTag(s string) uint32 {
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24
}

var (
	tagHdmv = mkTag("HDMV")
	tagHdpr = mkTag("HDPR")
)

// isBlurayRegistration program info中的registration为HDMV或者HDPR时，stream_type按蓝光的定义
func isBlurayRegistration(tag uint32) bool {
	return tag == tagHdmv || tag == tagHdpr
}
