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

	"github.com/q191201771/tsdemux/pkg/base"
)

// PacketReader 从字节流中按ts包切分数据
//
// 支持188，192(DVHS)，204(FEC)三种包大小，返回的始终是188字节的ts包，多出的尾部数据被跳过
// 同步字节错误时，在有限的窗口内向后查找下一个0x47
//
type PacketReader struct {
	r          io.Reader
	packetSize int
	resyncSize int

	buf     *base.Buffer
	pos     int64 // buf中首字节在输入流中的偏移
	readErr error

	pos47   int64 // 包起始位置对packetSize取模的值
	prevPos int64 // pos47对应的上一个包的位置，-1表示无效

	packet [PacketSize]byte
}

const (
	readChunkSize   = 64 * PacketSize
	maxEmptyReadNum = 100
)

// NewPacketReader
//
// @param packetSize: 0表示还未确定，需要调用 DetectPacketSize 后使用 SetPacketSize 设置
// @param resyncSize: 同步丢失时最多查找的字节数
//
func NewPacketReader(r io.Reader, packetSize int, resyncSize int) *PacketReader {
	if resyncSize <= 0 {
		resyncSize = MaxResyncSize
	}
	return &PacketReader{
		r:          r,
		packetSize: packetSize,
		resyncSize: resyncSize,
		buf:        base.NewBuffer(readChunkSize),
		prevPos:    -1,
	}
}

func (pr *PacketReader) PacketSize() int {
	return pr.packetSize
}

func (pr *PacketReader) SetPacketSize(packetSize int) {
	pr.packetSize = packetSize
}

// Pos 下一个待读取字节在输入流中的偏移
func (pr *PacketReader) Pos() int64 {
	return pr.pos
}

// Pos47 ts包同步网格的偏移，也即包起始位置对包大小取模
func (pr *PacketReader) Pos47() int64 {
	return pr.pos47
}

// Peek 预读至多`n`字节，不消费
//
// 输入流结束时返回已缓存的数据，缓存为空时返回 io.EOF
//
func (pr *PacketReader) Peek(n int) ([]byte, error) {
	if err := pr.fill(n); err != nil {
		if pr.buf.Len() == 0 {
			return nil, err
		}
	}
	return pr.buf.Peek(n), nil
}

// ReadPacket 读取下一个ts包
//
// @return packet: 188字节，内存块在下次调用 ReadPacket 前有效
// @return pos:    该包在输入流中的偏移
// @return err:    输入结束时为 io.EOF；同步丢失且在窗口内找不到同步字节时为 base.ErrSyncLost
//
func (pr *PacketReader) ReadPacket() (packet []byte, pos int64, err error) {
	for {
		if err = pr.fill(PacketSize); err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return nil, pr.pos, err
		}
		b := pr.buf.Peek(PacketSize)
		if b[0] == syncByte {
			break
		}
		Log.Warnf("sync byte lost, resync. pos=%d, byte=%x", pr.pos, b[0])
		if err = pr.Resync(); err != nil {
			if err != io.EOF {
				Log.Errorf("resync failed. err=%+v", err)
			}
			return nil, pr.pos, err
		}
	}

	pos = pr.pos
	copy(pr.packet[:], pr.buf.Peek(PacketSize))
	pr.skip(PacketSize)
	pr.updatePos47(pos)

	// FEC/DVHS 的尾部数据
	if tail := pr.packetSize - PacketSize; tail > 0 {
		// 输入结束时尾部数据可能不完整，忽略错误
		_ = pr.fill(tail)
		n := pr.buf.Len()
		if n > tail {
			n = tail
		}
		pr.skip(n)
	}
	return pr.packet[:], pos, nil
}

// Resync 跳过非0x47的字节，直到缓存首字节为0x47
//
func (pr *PacketReader) Resync() error {
	scanned := 0
	for scanned < pr.resyncSize {
		if err := pr.fill(1); err != nil {
			return err
		}
		b := pr.buf.Bytes()
		limit := pr.resyncSize - scanned
		if idx := FindSyncByte(b, limit); idx >= 0 {
			pr.skip(idx)
			return nil
		}
		n := len(b)
		if n > limit {
			n = limit
		}
		pr.skip(n)
		scanned += n
	}
	return base.NewErrSyncLost(pr.pos, scanned)
}

// Reset 外部seek之后调用，丢弃缓存
//
// @param pos: seek后的输入流偏移
//
func (pr *PacketReader) Reset(pos int64) {
	pr.buf.Reset()
	pr.pos = pos
	pr.readErr = nil
	pr.prevPos = -1
}

// ---------------------------------------------------------------------------------------------------------------------

// FindSyncByte 在`b`的前`maxScan`字节中查找0x47，找不到返回-1
func FindSyncByte(b []byte, maxScan int) int {
	if maxScan > len(b) {
		maxScan = len(b)
	}
	for i := 0; i < maxScan; i++ {
		if b[i] == syncByte {
			return i
		}
	}
	return -1
}

// minDetectScore 胜出的包大小至少要有这么多个周期对齐的同步字节
const minDetectScore = 5

// DetectPacketSize 根据同步字节出现的周期判断包大小
//
// `buf`至少需要 FecPacketSize*5+1 字节
//
func DetectPacketSize(buf []byte) (int, error) {
	if len(buf) < FecPacketSize*5+1 {
		return 0, base.ErrShortBuffer
	}

	score := analyze(buf, PacketSize, false)
	dvhsScore := analyze(buf, DvhsPacketSize, false)
	fecScore := analyze(buf, FecPacketSize, false)
	Log.Tracef("detect packet size. score=%d, dvhs score=%d, fec score=%d", score, dvhsScore, fecScore)

	switch {
	case score > fecScore && score > dvhsScore && score >= minDetectScore:
		return PacketSize, nil
	case dvhsScore > score && dvhsScore > fecScore && dvhsScore >= minDetectScore:
		return DvhsPacketSize, nil
	case score < fecScore && dvhsScore < fecScore && fecScore >= minDetectScore:
		return FecPacketSize, nil
	}
	return 0, base.NewErrPacketSizeUndetermined(score, dvhsScore, fecScore)
}

// Probe 判断`buf`是否为mpegts数据，返回0表示不是，否则分数越高可能性越大，最大为100
//
func Probe(buf []byte) int {
	const (
		checkCount = 10
		scoreMax   = 100
	)

	n := len(buf) / FecPacketSize
	if n < checkCount {
		return 0
	}
	score := analyze(buf[:PacketSize*n], PacketSize, true) * checkCount / n
	dvhsScore := analyze(buf[:DvhsPacketSize*n], DvhsPacketSize, true) * checkCount / n
	fecScore := analyze(buf[:FecPacketSize*n], FecPacketSize, true) * checkCount / n
	Log.Tracef("probe. score=%d, dvhs score=%d, fec score=%d", score, dvhsScore, fecScore)

	switch {
	case score > fecScore && score > dvhsScore && score > 6:
		return scoreMax + score - checkCount
	case dvhsScore > score && dvhsScore > fecScore && dvhsScore > 6:
		return scoreMax + dvhsScore - checkCount
	case fecScore > 6:
		return scoreMax + fecScore - checkCount
	}
	return 0
}

// ---------------------------------------------------------------------------------------------------------------------

// analyze 按`packetSize`取模统计0x47出现的次数，返回最大的次数
//
// @param probe: 为true时，额外要求 transport_error_indicator 为0，且 adaptation_field_control 不为0
//
func analyze(buf []byte, packetSize int, probe bool) int {
	var stat [MaxPacketSize]int
	bestScore := 0
	x := 0
	for i := 0; i < len(buf)-3; i++ {
		if buf[i] == syncByte && (!probe || (buf[i+1]&0x80 == 0 && buf[i+3]&0x30 != 0)) {
			stat[x]++
			if stat[x] > bestScore {
				bestScore = stat[x]
			}
		}
		x++
		if x == packetSize {
			x = 0
		}
	}
	return bestScore
}

func (pr *PacketReader) fill(n int) error {
	emptyNum := 0
	for pr.buf.Len() < n {
		if pr.readErr != nil {
			if pr.readErr == io.EOF && pr.buf.Len() > 0 {
				return io.ErrUnexpectedEOF
			}
			return pr.readErr
		}
		size := readChunkSize
		if n-pr.buf.Len() > size {
			size = n - pr.buf.Len()
		}
		nn, err := pr.buf.ReadOnceFrom(pr.r, size)
		if err != nil {
			pr.readErr = err
		}
		if nn == 0 && err == nil {
			emptyNum++
			if emptyNum > maxEmptyReadNum {
				pr.readErr = io.ErrNoProgress
			}
		}
	}
	return nil
}

func (pr *PacketReader) skip(n int) {
	pr.buf.Skip(n)
	pr.pos += int64(n)
}

func (pr *PacketReader) updatePos47(pos int64) {
	packetSize := int64(pr.packetSize)
	if packetSize <= 0 {
		packetSize = PacketSize
	}
	if pr.prevPos < 0 || pos-pr.prevPos != packetSize {
		pr.pos47 = pos % packetSize
	}
	pr.prevPos = pos
}
