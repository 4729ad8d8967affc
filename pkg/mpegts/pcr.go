// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"io"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/tsdemux/pkg/base"
)

// PcrEstimate 根据输入流开头的两个PCR估算的码率
//
// 码率按188字节的包计算，不包括DVHS和FEC的尾部
//
type PcrEstimate struct {
	PcrPid   uint16
	PcrIncr  int64 // 每个ts包对应的27MHz时钟增量
	StartPcr int64 // 推算出的第一个ts包的PCR，27MHz
	Bitrate  int64 // bit/s
}

// EstimateBitrate 读取ts包，直到同一个pid上出现两个递增的PCR
//
// @param pr: 包大小已经确定
//
func EstimateBitrate(pr *PacketReader) (e PcrEstimate, err error) {
	var (
		pcrs        [2]int64
		packetCount [2]int64
		nbPcrs      int
		nbPackets   int64
	)
	pcrPid := -1

	for {
		packet, _, err := pr.ReadPacket()
		if err != nil {
			if err == io.EOF {
				return e, base.ErrNoPcr
			}
			return e, err
		}
		pid := int(bele.BeUint16(packet[1:]) & 0x1fff)
		if pcrPid == -1 || pcrPid == pid {
			if pcrBase, pcrExt, err := ParsePcr(packet); err == nil {
				pcrPid = pid
				pcrs[nbPcrs] = pcrBase*300 + int64(pcrExt)
				packetCount[nbPcrs] = nbPackets
				nbPcrs++
				if nbPcrs == 2 {
					if pcrs[1] > pcrs[0] && packetCount[1] > packetCount[0] {
						break
					}
					Log.Warnf("invalid pcr pair. pcr=(%d, %d)", pcrs[0], pcrs[1])
					pcrs[0] = pcrs[1]
					packetCount[0] = packetCount[1]
					nbPcrs--
				}
			}
		}
		nbPackets++
	}

	e.PcrPid = uint16(pcrPid)
	e.PcrIncr = (pcrs[1] - pcrs[0]) / (packetCount[1] - packetCount[0])
	if e.PcrIncr <= 0 {
		return e, nazaerrors.Wrap(base.ErrNoPcr)
	}
	e.StartPcr = pcrs[0] - e.PcrIncr*packetCount[0]
	e.Bitrate = PacketSize * 8 * 27000000 / e.PcrIncr
	return e, nil
}

// FindPcrNear 从`offset`向后对齐到ts包的边界，查找第一个带PCR的包
//
// @param pos47:  ts包起始位置对包大小取模的值，参见 PacketReader.Pos47
// @param pcrPid: -1表示任意pid
//
// @return pcr: 90kHz
// @return pos: 带PCR的ts包的偏移
//
func FindPcrNear(rs io.ReadSeeker, offset int64, pos47 int64, packetSize int, pcrPid int) (pcr int64, pos int64, err error) {
	size := int64(packetSize)
	pos = ((offset+size-1-pos47)/size)*size + pos47
	if pos < pos47 {
		pos = pos47
	}
	if _, err = rs.Seek(pos, io.SeekStart); err != nil {
		return NoPts, pos, nazaerrors.Wrap(err)
	}

	pr := NewPacketReader(rs, packetSize, MaxResyncSize)
	pr.Reset(pos)
	for {
		packet, ppos, err := pr.ReadPacket()
		if err != nil {
			if err == io.EOF {
				err = base.ErrNoPcr
			}
			return NoPts, ppos, err
		}
		if pcrPid >= 0 && int(bele.BeUint16(packet[1:])&0x1fff) != pcrPid {
			continue
		}
		if pcrBase, _, err := ParsePcr(packet); err == nil {
			return pcrBase, ppos, nil
		}
	}
}

// ReadTimestamp 查找`offset`之后该流所属节目的第一个PCR
//
// 读取位置在返回前恢复
//
// @return pcr: 90kHz
// @return pos: 带PCR的ts包的偏移
//
func (d *Demuxer) ReadTimestamp(streamIndex int, offset int64) (pcr int64, pos int64, err error) {
	if d.disposed {
		return NoPts, 0, base.ErrDisposed
	}
	if d.seeker == nil {
		return NoPts, 0, base.ErrNotSeekable
	}
	if streamIndex < 0 || streamIndex >= len(d.streams) {
		return NoPts, 0, base.ErrStreamIndex
	}
	rs, ok := d.seeker.(io.ReadSeeker)
	if !ok {
		return NoPts, 0, base.ErrNotSeekable
	}

	pcrPid := -1
	if f := d.pids[d.streams[streamIndex].Pid]; f != nil && f.pes != nil {
		pcrPid = f.pes.pcrPid
	}

	cur := d.pr.Pos()
	pcr, pos, err = FindPcrNear(&offsetReadSeeker{rs: rs, base: d.basePos}, offset, d.pr.Pos47(), d.pr.PacketSize(), pcrPid)

	if _, serr := d.seeker.Seek(d.basePos+cur, io.SeekStart); serr != nil {
		return pcr, pos, nazaerrors.Wrap(serr)
	}
	d.pr.Reset(cur)
	return
}

// offsetReadSeeker 让偏移从创建 Demuxer 时的输入位置开始计算
type offsetReadSeeker struct {
	rs   io.ReadSeeker
	base int64
}

func (o *offsetReadSeeker) Read(p []byte) (int, error) {
	return o.rs.Read(p)
}

func (o *offsetReadSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekStart {
		offset += o.base
	}
	n, err := o.rs.Seek(offset, whence)
	return n - o.base, err
}
