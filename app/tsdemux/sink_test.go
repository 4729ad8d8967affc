// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/nazamd5"
	"github.com/q191201771/tsdemux/pkg/base"
	"github.com/q191201771/tsdemux/pkg/mpegts"
)

func TestSink(t *testing.T) {
	dir, err := ioutil.TempDir("", "tsdemux")
	assert.Equal(t, nil, err)
	defer os.RemoveAll(dir)

	config, err := parseConf([]byte(`{}`))
	assert.Equal(t, nil, err)
	config.OutDir = filepath.Join(dir, "out")
	config.DumpFilename = filepath.Join(dir, "dump", "tsdemux.dump")

	sink, err := NewSink(config)
	assert.Equal(t, nil, err)

	video := &mpegts.Stream{Index: 0, Pid: 0x100, CodecId: mpegts.CodecIdH264, TimeBaseNum: 1, TimeBaseDen: 90000}
	audio := &mpegts.Stream{Index: 1, Pid: 0x101, CodecId: mpegts.CodecIdAac, TimeBaseNum: 1, TimeBaseDen: 90000}

	pkts := []struct {
		st  *mpegts.Stream
		pkt mpegts.Packet
	}{
		{audio, mpegts.Packet{StreamIndex: 1, Pid: 0x101, Pts: 9000, Dts: mpegts.NoPts, Payload: []byte{1, 2}}},
		{video, mpegts.Packet{StreamIndex: 0, Pid: 0x100, Pts: 3600, Dts: 1800, Payload: []byte{3, 4, 5}}},
		{video, mpegts.Packet{StreamIndex: 0, Pid: 0x100, Pts: mpegts.NoPts, Dts: mpegts.NoPts, Corrupt: true, Payload: []byte{6}}},
		{video, mpegts.Packet{StreamIndex: 0, Pid: 0x100, Pts: 7200, Dts: 5400, Payload: []byte{7}}},
	}
	for _, item := range pkts {
		assert.Equal(t, nil, sink.OnPacket(item.st, item.pkt))
	}

	r := sink.WrapReader(bytes.NewReader(make([]byte, 100)))
	_, _ = io.Copy(ioutil.Discard, r)
	assert.Equal(t, int64(100), sink.ReadBytes())
	sink.Report()

	summaries := sink.Summary()
	assert.Equal(t, 2, len(summaries))

	v := summaries[0]
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, "h264", v.Codec)
	assert.Equal(t, 3, v.Packets)
	assert.Equal(t, int64(5), v.Bytes)
	assert.Equal(t, 1, v.Corrupt)
	assert.Equal(t, int64(3600), v.FirstPts)
	assert.Equal(t, int64(7200), v.LastPts)
	assert.Equal(t, filepath.Join(config.OutDir, "256_0.h264"), v.Filename)
	assert.Equal(t, nazamd5.Md5([]byte{3, 4, 5, 6, 7}), v.Md5)

	a := summaries[1]
	assert.Equal(t, 1, a.Packets)
	assert.Equal(t, filepath.Join(config.OutDir, "257_1.aac"), a.Filename)
	b, err := ioutil.ReadFile(a.Filename)
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{1, 2}, b)

	// dump文件中的时间戳是毫秒，dts优先
	df := base.NewDumpFile()
	assert.Equal(t, nil, df.OpenToRead(config.DumpFilename))
	expected := []struct {
		typ       uint32
		timestamp uint32
	}{
		{1, 100},
		{0, 20},
		{0, 0},
		{0, 60},
	}
	for i, e := range expected {
		m, err := df.ReadOneMessage()
		assert.Equal(t, nil, err)
		assert.Equal(t, e.typ, m.Typ)
		assert.Equal(t, e.timestamp, m.Timestamp)
		assert.Equal(t, pkts[i].pkt.Payload, m.Body)
	}
	_, err = df.ReadOneMessage()
	assert.Equal(t, true, err != nil)
	_ = df.Close()

	sink.Dispose()
}

func TestSinkNoEs(t *testing.T) {
	config, err := parseConf([]byte(`{"write_es": false}`))
	assert.Equal(t, nil, err)
	sink, err := NewSink(config)
	assert.Equal(t, nil, err)

	st := &mpegts.Stream{Index: 0, Pid: 0x100, CodecId: mpegts.CodecIdH264, TimeBaseNum: 1, TimeBaseDen: 90000}
	assert.Equal(t, nil, sink.OnPacket(st, mpegts.Packet{Pts: mpegts.NoPts, Dts: mpegts.NoPts, Payload: []byte{1}}))
	summaries := sink.Summary()
	assert.Equal(t, 1, len(summaries))
	assert.Equal(t, "", summaries[0].Filename)
	assert.Equal(t, "", summaries[0].Md5)
	assert.Equal(t, mpegts.NoPts, summaries[0].FirstPts)
}
