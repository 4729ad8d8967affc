// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"sync"

	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/naza/pkg/nazamd5"
	"github.com/q191201771/tsdemux/pkg/base"
	"github.com/q191201771/tsdemux/pkg/mpegts"
)

// StreamSummary 一路流的统计
type StreamSummary struct {
	Index    int
	Pid      uint16
	Codec    string
	Packets  int
	Bytes    int64
	Corrupt  int
	FirstPts int64
	LastPts  int64
	Filename string
	Md5      string
}

func (s StreamSummary) String() string {
	return fmt.Sprintf("stream %d pid=0x%x codec=%s packets=%d bytes=%d corrupt=%d pts=[%d, %d] file=%s md5=%s",
		s.Index, s.Pid, s.Codec, s.Packets, s.Bytes, s.Corrupt, s.FirstPts, s.LastPts, s.Filename, s.Md5)
}

// Sink 接收demux出的pes包，写es文件和dump文件，并做统计
//
// OnPacket 在demux协程中调用，Report 在统计协程中调用
//
type Sink struct {
	uniqueKey string
	outDir    string
	writeEs   bool

	mu          sync.Mutex
	summaries   map[int]*StreamSummary
	writers     map[int]*mpegts.FileWriter
	dump        *base.DumpFile
	readBitrate bitrate.Bitrate
	readBytes   int64
}

func NewSink(config *Config) (*Sink, error) {
	s := &Sink{
		uniqueKey: base.GenUkEsSink(),
		outDir:    config.OutDir,
		writeEs:   config.WriteEs,
		summaries: make(map[int]*StreamSummary),
		writers:   make(map[int]*mpegts.FileWriter),
		readBitrate: bitrate.New(func(option *bitrate.Option) {
			option.WindowMs = config.StatIntervalS * 1000
		}),
	}
	if config.DumpFilename != "" {
		s.dump = base.NewDumpFile()
		if err := s.dump.OpenToWrite(config.DumpFilename); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WrapReader 统计从输入读取的字节数
func (s *Sink) WrapReader(r io.Reader) io.Reader {
	return &countingReader{r: r, s: s}
}

func (s *Sink) OnPacket(st *mpegts.Stream, pkt mpegts.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.summaries[pkt.StreamIndex]
	if !ok {
		summary = &StreamSummary{
			Index:    st.Index,
			Pid:      st.Pid,
			Codec:    st.CodecId.String(),
			FirstPts: mpegts.NoPts,
			LastPts:  mpegts.NoPts,
		}
		s.summaries[pkt.StreamIndex] = summary
		nazalog.Infof("[%s] new stream. %s", s.uniqueKey, st.String())
	}
	summary.Packets++
	summary.Bytes += int64(len(pkt.Payload))
	if pkt.Corrupt {
		summary.Corrupt++
	}
	if pkt.Pts != mpegts.NoPts {
		if summary.FirstPts == mpegts.NoPts {
			summary.FirstPts = pkt.Pts
		}
		summary.LastPts = pkt.Pts
	}

	if s.writeEs {
		fw, ok := s.writers[pkt.StreamIndex]
		if !ok {
			fw = &mpegts.FileWriter{}
			filename := mpegts.EsFilename(s.outDir, st)
			if err := fw.Create(filename); err != nil {
				return err
			}
			summary.Filename = filename
			s.writers[pkt.StreamIndex] = fw
		}
		if err := fw.Write(pkt.Payload); err != nil {
			return err
		}
	}

	if s.dump != nil {
		if err := s.dump.Write(pkt.Payload, uint32(pkt.StreamIndex), packetTimestampMs(st, pkt)); err != nil {
			return err
		}
	}
	return nil
}

// Report 周期性打印一次当前的统计
func (s *Sink) Report() {
	s.mu.Lock()
	defer s.mu.Unlock()

	nazalog.Infof("[%s] read. bytes=%d, bitrate=%dkbit/s", s.uniqueKey, s.readBytes, int(s.readBitrate.Rate()))
	for _, index := range s.sortedIndexes() {
		summary := s.summaries[index]
		nazalog.Debugf("[%s] stream %d. packets=%d, bytes=%d, corrupt=%d", s.uniqueKey, index, summary.Packets, summary.Bytes, summary.Corrupt)
	}
}

// Summary 关闭所有文件，按流的索引顺序返回统计，es文件会计算md5
func (s *Sink) Summary() []StreamSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeFiles()

	var ret []StreamSummary
	for _, index := range s.sortedIndexes() {
		summary := *s.summaries[index]
		if summary.Filename != "" {
			if b, err := ioutil.ReadFile(summary.Filename); err == nil {
				summary.Md5 = nazamd5.Md5(b)
			} else {
				nazalog.Warnf("read es file failed. file=%s, err=%+v", summary.Filename, err)
			}
		}
		ret = append(ret, summary)
	}
	return ret
}

func (s *Sink) ReadBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBytes
}

func (s *Sink) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFiles()
}

func (s *Sink) onRead(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readBytes += int64(n)
	s.readBitrate.Add(n)
}

func (s *Sink) closeFiles() {
	for index, fw := range s.writers {
		if err := fw.Dispose(); err != nil {
			nazalog.Warnf("close es file failed. index=%d, err=%+v", index, err)
		}
	}
	s.writers = make(map[int]*mpegts.FileWriter)
	if s.dump != nil {
		_ = s.dump.Close()
		s.dump = nil
	}
}

func (s *Sink) sortedIndexes() []int {
	indexes := make([]int, 0, len(s.summaries))
	for index := range s.summaries {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	return indexes
}

// packetTimestampMs dts优先，单位毫秒
func packetTimestampMs(st *mpegts.Stream, pkt mpegts.Packet) uint32 {
	ts := pkt.Dts
	if ts == mpegts.NoPts {
		ts = pkt.Pts
	}
	if ts == mpegts.NoPts || st.TimeBaseDen == 0 {
		return 0
	}
	return uint32(ts * 1000 * int64(st.TimeBaseNum) / int64(st.TimeBaseDen))
}

type countingReader struct {
	r io.Reader
	s *Sink
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.s.onRead(n)
	}
	return n, err
}
