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
)

// 测试用的ts打包工具

// ----- psi -----------------------------------------------------------------------------------------------------------

// packSection 打包一个完整的section，包括section header和末尾的crc
func packSection(tid uint8, id uint16, version uint8, body []byte) []byte {
	length := 5 + len(body) + 4
	section := make([]byte, 3+length)
	bw := nazabits.NewBitWriter(section)
	bw.WriteBits8(8, tid)
	bw.WriteBit(1) // section_syntax_indicator
	bw.WriteBit(0)
	bw.WriteBits8(2, 0xff)
	bw.WriteBits16(12, uint16(length))
	bw.WriteBits16(16, id)
	bw.WriteBits8(2, 0xff)
	bw.WriteBits8(5, version)
	bw.WriteBit(1) // current_next_indicator
	bw.WriteBits8(8, 0)
	bw.WriteBits8(8, 0)
	copy(section[8:], body)
	bele.BePutUint32(section[len(section)-4:], Crc32Mpeg(section[:len(section)-4]))
	return section
}

// withCrc 给不带crc的section加上crc
func withCrc(b []byte) []byte {
	ret := make([]byte, len(b)+4)
	copy(ret, b)
	bele.BePutUint32(ret[len(b):], Crc32Mpeg(b))
	return ret
}

type testProgram struct {
	number uint16
	pmtPid uint16
}

func packPatSection(tsid uint16, version uint8, programs []testProgram) []byte {
	body := make([]byte, 4*len(programs))
	bw := nazabits.NewBitWriter(body)
	for _, p := range programs {
		bw.WriteBits16(16, p.number)
		bw.WriteBits8(3, 0xff)
		bw.WriteBits16(13, p.pmtPid)
	}
	return packSection(TsPsiIdPas, tsid, version, body)
}

type testEs struct {
	streamType  uint8
	pid         uint16
	descriptors []Descriptor
}

func packDescriptors(ds []Descriptor) []byte {
	var ret []byte
	for _, d := range ds {
		ret = append(ret, d.Tag, uint8(len(d.Data)))
		ret = append(ret, d.Data...)
	}
	return ret
}

func packPmtSection(program uint16, version uint8, pcrPid uint16, programDescriptors []Descriptor, ess []testEs) []byte {
	pi := packDescriptors(programDescriptors)
	body := make([]byte, 4, 64)
	bw := nazabits.NewBitWriter(body)
	bw.WriteBits8(3, 0xff)
	bw.WriteBits16(13, pcrPid)
	bw.WriteBits8(4, 0xff)
	bw.WriteBits16(12, uint16(len(pi)))
	body = append(body, pi...)
	for _, es := range ess {
		ds := packDescriptors(es.descriptors)
		item := make([]byte, 5)
		bw := nazabits.NewBitWriter(item)
		bw.WriteBits8(8, es.streamType)
		bw.WriteBits8(3, 0xff)
		bw.WriteBits16(13, es.pid)
		bw.WriteBits8(4, 0xff)
		bw.WriteBits16(12, uint16(len(ds)))
		body = append(body, item...)
		body = append(body, ds...)
	}
	return packSection(TsPsiIdPms, program, version, body)
}

// ----- ts ------------------------------------------------------------------------------------------------------------

type testPacker struct {
	ccs map[uint16]uint8
}

func newTestPacker() *testPacker {
	return &testPacker{
		ccs: make(map[uint16]uint8),
	}
}

func (tp *testPacker) nextCc(pid uint16) uint8 {
	cc := tp.ccs[pid]
	tp.ccs[pid] = (cc + 1) & 0xf
	return cc
}

// packSectionCells 将section按pointer_field为0的方式切分到ts包中，剩余空间用0xff填充
func (tp *testPacker) packSectionCells(pid uint16, section []byte) []byte {
	var ret []byte
	first := true
	for first || len(section) > 0 {
		packet := make([]byte, PacketSize)
		for i := range packet {
			packet[i] = 0xff
		}
		packet[0] = syncByte
		packet[1] = uint8(pid>>8) & 0x1f
		if first {
			packet[1] |= 0x40
		}
		packet[2] = uint8(pid)
		packet[3] = 0x10 | tp.nextCc(pid)
		wpos := 4
		if first {
			packet[4] = 0 // pointer_field
			wpos++
			first = false
		}
		n := copy(packet[wpos:], section)
		section = section[n:]
		ret = append(ret, packet...)
	}
	return ret
}

// testFrame 打包成一个pes
type testFrame struct {
	Pts uint64
	Dts uint64
	Pid uint16
	Sid uint8

	// Key 为true时，首个ts包携带PCR，值为dts
	Key bool

	// Unbounded 为true时，PES_packet_length写0
	Unbounded bool

	// NoPts 为true时，PTS_DTS_flags为0
	NoPts bool

	Raw []byte
}

// Pack
//
// 帧尾不足一个ts包时，在adaptation field中填充0xff
//
func (frame *testFrame) Pack(tp *testPacker) []byte {
	var buf []byte

	lpos := 0
	rpos := len(frame.Raw)
	first := true

	for first || lpos != rpos {
		packet := make([]byte, PacketSize)
		wpos := 0

		packet[0] = syncByte
		packet[1] = 0x0
		if first {
			packet[1] = 0x40 // payload_unit_start_indicator
		}
		packet[1] |= uint8((frame.Pid >> 8) & 0x1F)
		packet[2] = uint8(frame.Pid & 0xFF)
		packet[3] = 0x10 | tp.nextCc(frame.Pid)
		wpos += 4

		if first {
			if frame.Key {
				packet[3] |= 0x20 // adaptation_field_control
				packet[4] = 7     // adaptation_field_length
				packet[5] = 0x50  // random_access_indicator + PCR_flag
				packPcr(packet[6:], frame.Dts)
				wpos += 8
			}

			packet[wpos] = 0x00
			packet[wpos+1] = 0x00
			packet[wpos+2] = 0x01
			packet[wpos+3] = frame.Sid
			wpos += 4

			headerSize := uint8(5)
			flags := uint8(0x80)
			if frame.NoPts {
				headerSize = 0
				flags = 0
			} else if frame.Dts != frame.Pts {
				headerSize += 5
				flags |= 0x40
			}

			pesSize := rpos + int(headerSize) + 3
			if pesSize > 0xFFFF || frame.Unbounded {
				pesSize = 0
			}

			packet[wpos] = uint8(pesSize >> 8)
			packet[wpos+1] = uint8(pesSize & 0xFF)
			packet[wpos+2] = 0x80
			packet[wpos+3] = flags
			packet[wpos+4] = headerSize
			wpos += 5

			if !frame.NoPts {
				packPts(packet[wpos:], flags>>6, frame.Pts)
				wpos += 5
				if frame.Pts != frame.Dts {
					packPts(packet[wpos:], 1, frame.Dts)
					wpos += 5
				}
			}

			first = false
		}

		bodySize := PacketSize - wpos
		inSize := rpos - lpos

		if bodySize <= inSize {
			copy(packet[wpos:], frame.Raw[lpos:lpos+bodySize])
			lpos += bodySize
		} else {
			stuffSize := bodySize - inSize

			if packet[3]&0x20 != 0 {
				base := int(5 + packet[4]) // TS Header + adaptation_field_length + Adaptation
				if wpos > base {
					copy(packet[base+stuffSize:], packet[base:wpos])
				}
				wpos = base + stuffSize

				packet[4] += uint8(stuffSize)
				for i := 0; i < stuffSize; i++ {
					packet[base+i] = 0xFF
				}
			} else {
				packet[3] |= 0x20

				base := 4
				if wpos > base {
					copy(packet[base+stuffSize:], packet[base:wpos])
				}
				wpos += stuffSize

				packet[4] = uint8(stuffSize - 1)
				if stuffSize >= 2 {
					packet[5] = 0
					for i := 0; i < stuffSize-2; i++ {
						packet[6+i] = 0xFF
					}
				}
			}

			copy(packet[wpos:], frame.Raw[lpos:lpos+inSize])
			lpos = rpos
		}
		buf = append(buf, packet...)
	}

	return buf
}

func packPcr(out []byte, pcr uint64) {
	out[0] = uint8(pcr >> 25)
	out[1] = uint8(pcr >> 17)
	out[2] = uint8(pcr >> 9)
	out[3] = uint8(pcr >> 1)
	out[4] = uint8(pcr<<7) | 0x7e
	out[5] = 0
}

// 注意，除PTS外，DTS也使用这个函数打包
func packPts(out []byte, fb uint8, pts uint64) {
	var val uint64
	out[0] = (fb << 4) | (uint8(pts>>30) & 0x07) | 1

	val = (((pts >> 15) & 0x7FFF) << 1) | 1
	out[1] = uint8(val >> 8)
	out[2] = uint8(val)

	val = ((pts & 0x7FFF) << 1) | 1
	out[3] = uint8(val >> 8)
	out[4] = uint8(val)
}

// pcrPacket 只有adaptation field，携带PCR
func (tp *testPacker) pcrPacket(pid uint16, pcrBase uint64) []byte {
	packet := make([]byte, PacketSize)
	for i := range packet {
		packet[i] = 0xff
	}
	packet[0] = syncByte
	packet[1] = uint8(pid>>8) & 0x1f
	packet[2] = uint8(pid)
	packet[3] = 0x20 | (tp.ccs[pid]+15)&0xf // 没有负载，cc和上一个包相同
	packet[4] = 183
	packet[5] = 0x10
	packPcr(packet[6:], pcrBase)
	return packet
}

// nullPacket pid为0x1fff的填充包
func nullPacket() []byte {
	packet := make([]byte, PacketSize)
	for i := range packet {
		packet[i] = 0xff
	}
	packet[0] = syncByte
	packet[1] = 0x1f
	packet[2] = 0xff
	packet[3] = 0x10
	return packet
}

// ----- 组合 -----------------------------------------------------------------------------------------------------------

const (
	testPmtPid   uint16 = 0x1000
	testVideoPid uint16 = 0x100
	testAudioPid uint16 = 0x101
)

// packHeader PAT加上一个节目的PMT，节目中有一路h264和一路aac
func (tp *testPacker) packHeader() []byte {
	var ret []byte
	ret = append(ret, tp.packSectionCells(PidPat, packPatSection(1, 0, []testProgram{{1, testPmtPid}}))...)
	ret = append(ret, tp.packSectionCells(testPmtPid, packPmtSection(1, 0, testVideoPid, nil, []testEs{
		{streamType: StreamTypeAvc, pid: testVideoPid},
		{streamType: StreamTypeAac, pid: testAudioPid},
	}))...)
	return ret
}

// testPayload 长度为n，内容可区分
func testPayload(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}
