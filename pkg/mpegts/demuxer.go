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

	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsdemux/pkg/base"
)

type DemuxerOption struct {
	// PacketSize ts包大小，0表示自动探测
	PacketSize int

	// ResyncSize 同步丢失时最多查找的字节数
	ResyncSize int

	// MaxPesPayload 没有声明长度的pes包，负载超过该值时先输出
	MaxPesPayload int

	// ProbeSize 用于探测包大小的数据量，至少为 FecPacketSize*5+1
	ProbeSize int

	// ScanSize ReadHeader 阶段最多扫描多少字节用于获取PAT和PMT
	ScanSize int

	// AutoGuess 为true时，没有出现在PMT中的pid，遇到payload_unit_start的包也按pes处理
	// ReadHeader 结束后自动打开
	AutoGuess bool

	// CheckCrc 是否校验section的crc32
	CheckCrc bool

	// OnPacket 不为nil时，demux出的pes包通过回调输出，而不是放入 ReadPacket 的队列
	OnPacket func(pkt Packet)
}

var defaultDemuxerOption = DemuxerOption{
	PacketSize:    0,
	ResyncSize:    MaxResyncSize,
	MaxPesPayload: MaxPesPayload,
	ProbeSize:     DefaultProbeSize,
	ScanSize:      DefaultScanSize,
	AutoGuess:     false,
	CheckCrc:      true,
	OnPacket:      nil,
}

type ModDemuxerOption func(option *DemuxerOption)

// Demuxer
//
// 拉模式：NewDemuxer 传入输入流，然后循环调用 ReadPacket
// 推模式：NewDemuxer 的输入流传nil，设置 DemuxerOption.OnPacket ，然后调用 FeedPacket 或 Parse
//
// 非协程安全
//
type Demuxer struct {
	uniqueKey string
	option    DemuxerOption

	pr      *PacketReader
	seeker  io.Seeker
	basePos int64 // 创建时输入流的偏移，seek时的参考点

	pids           [NbPidMax]*filter
	streams        []*Stream
	programs       []*Program
	programDiscard map[uint16]bool
	services       map[uint16]ServiceInfo
	slConfigs      slConfigTable

	queue      []Packet
	stopParse  bool
	headerRead bool
	headerErr  error // ReadHeader 的结果，失败后再次调用直接返回
	disposed   bool

	sectionDumper *base.HexDumper
	pesDumper     *base.HexDumper
}

// NewDemuxer
//
// @param r: 输入流，推模式下为nil；实现了io.Seeker时支持 Seek 和 ReadTimestamp
//
func NewDemuxer(r io.Reader, modOptions ...ModDemuxerOption) *Demuxer {
	option := defaultDemuxerOption
	for _, fn := range modOptions {
		fn(&option)
	}
	if option.ProbeSize < FecPacketSize*5+1 {
		option.ProbeSize = FecPacketSize*5 + 1
	}

	d := &Demuxer{
		uniqueKey:      base.GenUkDemuxer(),
		option:         option,
		programDiscard: make(map[uint16]bool),
		services:       make(map[uint16]ServiceInfo),
		slConfigs:      make(slConfigTable),
		sectionDumper:  base.NewHexDumper(Log, base.SectionHexDumpDebugMaxNum, base.SectionHexDumpPrefixLen),
		pesDumper:      base.NewHexDumper(Log, base.PesHexDumpDebugMaxNum, base.PesHexDumpPrefixLen),
	}
	d.openSectionFilter(PidSdt, tableKindSdt)
	d.openSectionFilter(PidPat, tableKindPat)

	if r != nil {
		d.pr = NewPacketReader(r, option.PacketSize, option.ResyncSize)
		if s, ok := r.(io.Seeker); ok {
			if pos, err := s.Seek(0, io.SeekCurrent); err == nil {
				d.seeker = s
				d.basePos = pos
			}
		}
	}
	Log.Infof("[%s] lifecycle new demuxer. demuxer=%p, seekable=%t", d.uniqueKey, d, d.seeker != nil)
	return d
}

// ReadHeader 确定包大小，并扫描输入流开头获取节目和流信息
//
// 不调用时，第一次 ReadPacket 会自动调用
//
func (d *Demuxer) ReadHeader() error {
	if d.disposed {
		return base.ErrDisposed
	}
	if d.pr == nil {
		return nazaerrors.Wrap(base.ErrMpegts)
	}
	if d.headerRead {
		return d.headerErr
	}
	d.headerRead = true
	d.headerErr = d.readHeader()
	return d.headerErr
}

func (d *Demuxer) readHeader() error {
	if d.pr.PacketSize() == 0 {
		buf, err := d.pr.Peek(d.option.ProbeSize)
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		packetSize, err := DetectPacketSize(buf)
		if err != nil {
			return err
		}
		d.pr.SetPacketSize(packetSize)
	}
	Log.Debugf("[%s] packet size. size=%d", d.uniqueKey, d.pr.PacketSize())

	startPos := d.pr.Pos()
	d.stopParse = false
	num := d.option.ScanSize / d.pr.PacketSize()
	for i := 0; i < num && !d.stopParse; i++ {
		packet, pos, err := d.pr.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		d.handlePacket(packet, pos)
	}
	Log.Debugf("[%s] header scanned. pos=%d, programs=%d, streams=%d", d.uniqueKey, d.pr.Pos(), len(d.programs),
		len(d.streams))

	// 回到开头，扫描阶段还没有filter的pes数据重新读取
	if d.seeker != nil {
		if _, err := d.seeker.Seek(d.basePos+startPos, io.SeekStart); err != nil {
			return nazaerrors.Wrap(err)
		}
		d.pr.Reset(startPos)
		d.resetFilters()
		d.queue = nil
	}

	d.option.AutoGuess = true
	return nil
}

// ReadPacket 读取下一个pes包
//
// 输入流结束时，依次输出各个pid上未完成的pes包，最后返回io.EOF
//
func (d *Demuxer) ReadPacket() (pkt Packet, err error) {
	if err = d.ReadHeader(); err != nil {
		return
	}
	for {
		if len(d.queue) > 0 {
			pkt = d.queue[0]
			d.queue = d.queue[1:]
			if len(d.queue) == 0 {
				d.queue = nil
			}
			return pkt, nil
		}

		packet, pos, err := d.pr.ReadPacket()
		if err != nil {
			if err == io.EOF && d.flushOne() {
				continue
			}
			return pkt, err
		}
		d.handlePacket(packet, pos)
	}
}

// FeedPacket 推模式下输入一个ts包
//
// @param packet: 以0x47开始，至少188字节，多出的部分被忽略
// @param pos:    该包在输入流中的偏移，用于 Packet.Pos
//
func (d *Demuxer) FeedPacket(packet []byte, pos int64) error {
	if d.disposed {
		return base.ErrDisposed
	}
	if len(packet) < PacketSize {
		return base.ErrShortBuffer
	}
	if packet[0] != syncByte {
		return nazaerrors.Wrap(base.NewErrSyncLost(pos, 0))
	}
	d.handlePacket(packet[:PacketSize], pos)
	return nil
}

// Parse 推模式下输入一段包含ts包的数据，比如RTP负载
//
// 逐字节查找0x47，剩余数据不足一个ts包时停止
//
// @return 消费的字节数
//
func (d *Demuxer) Parse(buf []byte) int {
	if d.disposed {
		return 0
	}
	i := 0
	for len(buf)-i >= PacketSize {
		if buf[i] != syncByte {
			i++
			continue
		}
		d.handlePacket(buf[i:i+PacketSize], int64(i))
		i += PacketSize
	}
	return i
}

// Flush 推模式下输入结束时调用，输出所有未完成的pes包
func (d *Demuxer) Flush() {
	for d.flushOne() {
	}
}

// Seek 跳转到`offset`之后第一个payload_unit_start的ts包
//
// 所有未完成的pes包被丢弃
//
func (d *Demuxer) Seek(offset int64) error {
	if d.disposed {
		return base.ErrDisposed
	}
	if d.seeker == nil {
		return base.ErrNotSeekable
	}
	if err := d.ReadHeader(); err != nil {
		return err
	}

	size := int64(d.pr.PacketSize())
	pos47 := d.pr.Pos47()
	pos := ((offset+size-1-pos47)/size)*size + pos47
	if pos < pos47 {
		pos = pos47
	}
	if _, err := d.seeker.Seek(d.basePos+pos, io.SeekStart); err != nil {
		return nazaerrors.Wrap(err)
	}
	d.pr.Reset(pos)
	d.resetFilters()
	d.queue = nil

	for {
		packet, pos, err := d.pr.ReadPacket()
		if err != nil {
			return err
		}
		if packet[1]&0x40 != 0 {
			Log.Debugf("[%s] seek. offset=%d, pos=%d", d.uniqueKey, offset, pos)
			d.handlePacket(packet, pos)
			return nil
		}
	}
}

// Streams 目前为止发现的所有流，按 Stream.Index 排列
func (d *Demuxer) Streams() []*Stream {
	ret := make([]*Stream, len(d.streams))
	copy(ret, d.streams)
	return ret
}

// Programs 最近一次PAT中的节目，返回的是拷贝
func (d *Demuxer) Programs() []Program {
	ret := make([]Program, 0, len(d.programs))
	for _, p := range d.programs {
		c := *p
		c.Pids = append([]uint16(nil), p.Pids...)
		c.StreamIndexes = append([]int(nil), p.StreamIndexes...)
		ret = append(ret, c)
	}
	return ret
}

// SetProgramDiscard 丢弃节目后，只属于该节目的pid上的数据不再处理
//
// 对之后的PAT中出现的同id节目同样有效
//
func (d *Demuxer) SetProgramDiscard(id uint16, discard bool) {
	d.programDiscard[id] = discard
	if p := d.findProgram(id); p != nil {
		p.Discard = discard
	}
}

func (d *Demuxer) SetStreamDiscard(index int, discard bool) error {
	if index < 0 || index >= len(d.streams) {
		return base.ErrStreamIndex
	}
	d.streams[index].Discard = discard
	return nil
}

func (d *Demuxer) UniqueKey() string {
	return d.uniqueKey
}

// PacketSize 0表示还未确定
func (d *Demuxer) PacketSize() int {
	if d.pr == nil {
		return PacketSize
	}
	return d.pr.PacketSize()
}

func (d *Demuxer) Dispose() {
	if d.disposed {
		return
	}
	Log.Infof("[%s] lifecycle dispose demuxer.", d.uniqueKey)
	d.disposed = true
	for i := range d.pids {
		d.pids[i] = nil
	}
	d.queue = nil
}

// ----- 内部 ----------------------------------------------------------------------------------------------------------

func (d *Demuxer) handlePacket(packet []byte, pos int64) {
	h := ParseTsPacketHeader(packet)
	pid := h.Pid
	isStart := h.PayloadUnitStart == 1

	if pid != PidPat && d.discardPid(pid) {
		return
	}

	f := d.pids[pid]
	if f == nil && d.option.AutoGuess && isStart {
		d.addPesStream(pid, -1)
		f = d.pids[pid]
	}
	if f == nil {
		return
	}

	if h.Adaptation == AdaptationFieldControlReserved {
		return
	}
	hasAdaptation := h.HasAdaptation()
	hasPayload := h.HasPayload()
	isDiscontinuity := hasAdaptation && packet[4] != 0 && packet[5]&0x80 != 0

	cc := int(h.Cc)
	expectedCc := f.lastCc
	if hasPayload {
		expectedCc = (f.lastCc + 1) & 0xf
	}
	ccOk := pid == PidNull || isDiscontinuity || f.lastCc < 0 || expectedCc == cc
	if !ccOk {
		Log.Warnf("[%s] continuity check failed. pid=0x%x, expected=%d, got=%d", d.uniqueKey, pid, expectedCc, cc)
		if f.pes != nil {
			f.pes.corrupt = true
		}
	}
	f.lastCc = cc

	if !hasPayload {
		return
	}
	p := 4
	if hasAdaptation {
		p += int(packet[4]) + 1
	}
	if p >= PacketSize {
		return
	}
	payload := packet[p:PacketSize]

	switch f.typ {
	case filterTypeSection:
		if isStart {
			// pointer_field之前是上一个section的结尾
			l := int(payload[0])
			payload = payload[1:]
			if l > len(payload) {
				return
			}
			if l > 0 && ccOk {
				d.writeSection(f, payload[:l], false)
				if d.pids[pid] != f {
					return
				}
			}
			payload = payload[l:]
			if len(payload) > 0 {
				d.writeSection(f, payload, true)
			}
		} else if ccOk {
			d.writeSection(f, payload, false)
		}
	case filterTypePes:
		f.pes.push(payload, isStart, pos)
	}
}

func (d *Demuxer) writeSection(f *filter, b []byte, isStart bool) {
	sf := f.section
	section, err := sf.write(b, isStart)
	if err != nil {
		Log.Warnf("[%s] %+v", d.uniqueKey, err)
		return
	}
	if section == nil {
		return
	}
	d.sectionDumper.Dump(section, "[%s] section. pid=0x%x, kind=%s", d.uniqueKey, sf.pid, sf.kind)

	switch sf.kind {
	case tableKindPat:
		d.handlePat(sf, section)
	case tableKindPmt:
		d.handlePmt(sf, section)
	case tableKindSdt:
		d.handleSdt(sf, section)
	case tableKindM4od:
		d.handleM4od(sf, section)
	}
}

// handleM4od ISO/IEC 14496 object descriptor section，更新对应es_id的pes的SL配置和codec信息
func (d *Demuxer) handleM4od(sf *sectionFilter, section []byte) {
	h, body, err := ParseSectionHeader(section)
	if err != nil {
		return
	}
	if h.Tid != TsPsiIdOds {
		return
	}
	if !sf.checkVersion(h.Version) {
		return
	}

	descrs, err := readMp4Od(body, maxMp4DescrCount)
	if err != nil {
		Log.Warnf("[%s] read mp4 od failed. pid=0x%x, err=%+v", d.uniqueKey, sf.pid, err)
	}
	Log.Debugf("[%s] M4OD. pid=0x%x, version=%d, num=%d", d.uniqueKey, sf.pid, h.Version, len(descrs))
	d.slConfigs.set(descrs)

	for _, f := range d.pids {
		if f == nil {
			continue
		}
		for i := range descrs {
			if f.esId != descrs[i].esId {
				continue
			}
			if f.typ != filterTypePes {
				Log.Errorf("[%s] pid with es id is not pes. pid=0x%x, es id=%d", d.uniqueKey, f.pid, f.esId)
				continue
			}
			if f.pes.st == nil {
				continue
			}
			readDecConfig(f.pes.st, descrs[i].decConfig)
		}
	}
}

func (d *Demuxer) onPesPacket(pkt Packet) {
	if Log.GetOption().Level <= nazalog.LevelTrace {
		Log.Tracef("[%s] %s", d.uniqueKey, pkt.DebugString())
	}
	if d.option.OnPacket != nil {
		d.option.OnPacket(pkt)
		return
	}
	d.queue = append(d.queue, pkt)
}

// flushOne 输出第一个还有未完成数据的pes包，没有时返回false
func (d *Demuxer) flushOne() bool {
	for _, f := range d.pids {
		if f == nil || f.typ != filterTypePes {
			continue
		}
		if f.pes.flush() {
			return true
		}
	}
	return false
}

func (d *Demuxer) newStream(pid uint16) *Stream {
	st := newStream(len(d.streams), pid)
	d.streams = append(d.streams, st)
	return st
}

func (d *Demuxer) findStreamByPid(pid uint16) *Stream {
	for _, st := range d.streams {
		if st.Pid == pid {
			return st
		}
	}
	return nil
}
