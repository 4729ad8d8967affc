// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/nazabits"
)

// SL header最多只看这么多字节
const maxSlHeaderSize = 128

// slBitReader 在nazabits.BitReader的基础上统计读取的位数，越界读取得到0
type slBitReader struct {
	br    nazabits.BitReader
	count int
}

func newSlBitReader(b []byte) *slBitReader {
	if len(b) > maxSlHeaderSize {
		b = b[:maxSlHeaderSize]
	}
	return &slBitReader{
		br: nazabits.NewBitReader(b),
	}
}

func (r *slBitReader) readBits(n int) uint64 {
	var v uint64
	for n > 0 {
		k := n
		if k > 32 {
			k = 32
		}
		x, err := r.br.ReadBits32(uint(k))
		if err != nil {
			x = 0
		}
		v = v<<uint(k) | uint64(x)
		r.count += k
		n -= k
	}
	return v
}

func (r *slBitReader) readFlag() bool {
	return r.readBits(1) == 1
}

func (r *slBitReader) skip(n int) {
	r.readBits(n)
}

// bytes 已读取的位数向上取整到字节
func (r *slBitReader) bytes() int {
	return (r.count + 7) >> 3
}

// readSlHeader 解析pes负载开头的SL packet header，更新pts和dts
//
// <ISO/IEC 14496-1> <7.2.3.2 SL Packet Header>
//
// @return SL header占用的字节数
//
func (p *pesContext) readSlHeader(b []byte) int {
	sl := p.slConfigs.get(p.esId)
	r := newSlBitReader(b)

	var (
		auStart         bool
		ocrFlag         bool
		idleFlag        bool
		paddingFlag     bool
		paddingBits     uint64
		instBitrateFlag bool
		dtsFlag         bool
		ctsFlag         bool
	)
	dts := NoPts
	cts := NoPts

	if sl.UseAuStart {
		auStart = r.readFlag()
	}
	if sl.UseAuEnd {
		// accessUnitEndFlag
		r.readFlag()
	}
	if !sl.UseAuStart && !sl.UseAuEnd {
		auStart = true
	}
	if sl.OcrLen > 0 {
		ocrFlag = r.readFlag()
	}
	if sl.UseIdle {
		idleFlag = r.readFlag()
	}
	if sl.UsePadding {
		paddingFlag = r.readFlag()
	}
	if paddingFlag {
		paddingBits = r.readBits(3)
	}

	if !idleFlag && (!paddingFlag || paddingBits != 0) {
		if sl.PacketSeqNumLen > 0 {
			r.skip(sl.PacketSeqNumLen)
		}
		if sl.DegrPriorLen > 0 && r.readFlag() {
			r.skip(sl.DegrPriorLen)
		}
		if ocrFlag {
			r.skip(sl.OcrLen)
		}
		if auStart {
			if sl.UseRandAccPt {
				r.readFlag()
			}
			if sl.AuSeqNumLen > 0 {
				r.skip(sl.AuSeqNumLen)
			}
			if sl.UseTimestamps {
				dtsFlag = r.readFlag()
				ctsFlag = r.readFlag()
			}
		}
		if sl.InstBitrateLen > 0 {
			instBitrateFlag = r.readFlag()
		}
		if dtsFlag {
			dts = int64(r.readBits(sl.TimestampLen))
		}
		if ctsFlag {
			cts = int64(r.readBits(sl.TimestampLen))
		}
		if sl.AuLen > 0 {
			r.skip(sl.AuLen)
		}
		if instBitrateFlag {
			r.skip(sl.InstBitrateLen)
		}
	}

	if dts != NoPts {
		p.dts = dts
	}
	if cts != NoPts {
		p.pts = cts
	}
	if sl.TimestampLen > 0 && sl.TimestampRes > 0 && p.st != nil {
		p.st.setTimeBase(sl.TimestampLen, 1, int(sl.TimestampRes))
	}
	return r.bytes()
}
