// Copyright 2020, Chef.  All rights reserved.
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
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/tsdemux/pkg/base"
)

// ------------------------------------------------
// <iso13818-1.pdf> <2.4.3.2> <page 36/174>
// sync_byte                    [8b]  * always 0x47
// transport_error_indicator    [1b]
// payload_unit_start_indicator [1b]
// transport_priority           [1b]
// PID                          [13b] **
// transport_scrambling_control [2b]
// adaptation_field_control     [2b]
// continuity_counter           [4b]  *
// ------------------------------------------------
type TsPacketHeader struct {
	Sync             uint8
	Err              uint8
	PayloadUnitStart uint8
	Prio             uint8
	Pid              uint16
	Scra             uint8
	Adaptation       uint8
	Cc               uint8
}

func (h *TsPacketHeader) HasAdaptation() bool {
	return h.Adaptation&0x2 != 0
}

func (h *TsPacketHeader) HasPayload() bool {
	return h.Adaptation&0x1 != 0
}

// ----------------------------------------------------------
// <iso13818-1.pdf> <Table 2-6> <page 40/174>
// adaptation_field_length              [8b] * 不包括自己这1字节
// discontinuity_indicator              [1b]
// random_access_indicator              [1b]
// elementary_stream_priority_indicator [1b]
// PCR_flag                             [1b]
// OPCR_flag                            [1b]
// splicing_point_flag                  [1b]
// transport_private_data_flag          [1b]
// adaptation_field_extension_flag      [1b] *
// -----if PCR_flag == 1-----
// program_clock_reference_base         [33b]
// reserved                             [6b]
// program_clock_reference_extension    [9b] ******
// ----------------------------------------------------------
type TsPacketAdaptation struct {
	Length        uint8
	Discontinuity uint8
	RandomAccess  uint8
	EsPrio        uint8
	PcrFlag       uint8

	PcrBase int64 // 90kHz
	PcrExt  int   // 27MHz
}

// ParseTsPacketHeader 解析4字节TS Packet header
func ParseTsPacketHeader(b []byte) (h TsPacketHeader) {
	br := nazabits.NewBitReader(b)
	h.Sync, _ = br.ReadBits8(8)
	h.Err, _ = br.ReadBits8(1)
	h.PayloadUnitStart, _ = br.ReadBits8(1)
	h.Prio, _ = br.ReadBits8(1)
	h.Pid, _ = br.ReadBits16(13)
	h.Scra, _ = br.ReadBits8(2)
	h.Adaptation, _ = br.ReadBits8(2)
	h.Cc, _ = br.ReadBits8(4)
	return
}

// ParseTsPacketAdaptation
//
// @param b: 从adaptation_field_length开始
//
func ParseTsPacketAdaptation(b []byte) (f TsPacketAdaptation, err error) {
	br := nazabits.NewBitReader(b)
	if f.Length, err = br.ReadBits8(8); err != nil {
		return f, nazaerrors.Wrap(err)
	}
	if f.Length == 0 {
		return
	}
	if int(f.Length)+1 > len(b) {
		return f, nazaerrors.Wrap(base.ErrShortBuffer)
	}
	f.Discontinuity, _ = br.ReadBits8(1)
	f.RandomAccess, _ = br.ReadBits8(1)
	f.EsPrio, _ = br.ReadBits8(1)
	f.PcrFlag, _ = br.ReadBits8(1)
	_, _ = br.ReadBits8(4)
	if f.PcrFlag == 1 && f.Length >= 7 {
		f.PcrBase, f.PcrExt = readPcr(b[2:])
	}
	return
}

// ParsePcr 从一个188字节的ts包中解析PCR
//
// @return pcrBase: 90kHz
// @return pcrExt:  27MHz下的扩展部分，完整的27MHz PCR为 pcrBase*300 + pcrExt
//
func ParsePcr(packet []byte) (pcrBase int64, pcrExt int, err error) {
	if len(packet) < 12 {
		return 0, 0, base.ErrShortBuffer
	}
	afc := (packet[3] >> 4) & 0x3
	if afc <= AdaptationFieldControlNo {
		return 0, 0, base.ErrNoPcr
	}
	length := int(packet[4])
	if length == 0 {
		return 0, 0, base.ErrNoPcr
	}
	flags := packet[5]
	length--
	if flags&0x10 == 0 || length < 6 {
		return 0, 0, base.ErrNoPcr
	}
	pcrBase, pcrExt = readPcr(packet[6:])
	return
}

// ---------------------------------------------------------------------------------------------------------------------

func readPcr(b []byte) (pcrBase int64, pcrExt int) {
	v := bele.BeUint32(b)
	pcrBase = int64(v)<<1 | int64(b[4]>>7)
	pcrExt = int(b[4]&0x1)<<8 | int(b[5])
	return
}
