// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsdemux/pkg/base"
	"github.com/q191201771/tsdemux/pkg/mpegts"
	"golang.org/x/sync/errgroup"
)

// 将ts流（文件、标准输入或者srt推流）拆分成各路流的es文件，并打印统计信息

func main() {
	defer nazalog.Sync()

	confFile, input, outDir := parseFlag()
	config := loadConf(confFile)
	if input != "" {
		config.Input = input
	}
	if outDir != "" {
		config.OutDir = outDir
	}
	if config.Input == "" {
		_, _ = fmt.Fprintln(os.Stderr, "no input. use -i or set `input` in conf file")
		os.Exit(1)
	}
	initLog(config.LogConfig)
	nazalog.Infof("bininfo: %s", bininfo.StringifySingleLine())
	nazalog.Infof("version: %s", base.TsdemuxFullInfo)

	ctx, cancel := context.WithCancel(context.Background())
	go base.RunSignalHandler(cancel)

	if err := run(ctx, config); err != nil {
		nazalog.Errorf("run failed. err=%+v", err)
		nazalog.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, config *Config) error {
	sink, err := NewSink(config)
	if err != nil {
		return err
	}
	defer sink.Dispose()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var demuxer *mpegts.Demuxer
	g.Go(func() error {
		defer cancel()
		r, closer, err := openInput(gctx, config)
		if err != nil {
			return err
		}
		defer closer()

		demuxer = mpegts.NewDemuxer(sink.WrapReader(r), config.demuxerOptions()...)
		defer demuxer.Dispose()
		return demuxLoop(gctx, demuxer, sink)
	})
	g.Go(func() error {
		return statLoop(gctx, sink, time.Duration(config.StatIntervalS)*time.Second)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range demuxer.Programs() {
		nazalog.Infof("program %d. pmt=0x%x, pcr=%d, service=%s/%s, streams=%v",
			p.Id, p.PmtPid, p.PcrPid, p.ServiceProvider, p.ServiceName, p.StreamIndexes)
	}
	for _, s := range sink.Summary() {
		nazalog.Infof("%s", s.String())
	}
	nazalog.Infof("read bytes=%d", sink.ReadBytes())

	if isFileInput(config.Input) {
		logPcrBitrate(config.Input, demuxer.PacketSize())
	}
	return nil
}

func demuxLoop(ctx context.Context, d *mpegts.Demuxer, sink *Sink) error {
	if err := d.ReadHeader(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			nazalog.Infof("demux canceled.")
			return nil
		default:
		}

		pkt, err := d.ReadPacket()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		st := d.Streams()[pkt.StreamIndex]
		if err := sink.OnPacket(st, pkt); err != nil {
			return err
		}
	}
}

func statLoop(ctx context.Context, sink *Sink, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			sink.Report()
		}
	}
}

// openInput 返回的closer在ctx结束后也会被调用，用于打断阻塞的读
func openInput(ctx context.Context, config *Config) (io.Reader, func(), error) {
	if config.Input == "-" {
		return os.Stdin, func() {}, nil
	}

	port, isSrt, err := parseSrtInput(config.Input, config.SrtConfig.ListenPort)
	if err != nil {
		return nil, nil, err
	}
	if isSrt {
		src, err := ListenSrt(port, config.SrtConfig.LatencyMs)
		if err != nil {
			return nil, nil, err
		}
		r, err := src.Accept(ctx)
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		return r, closeOnDone(ctx, src.Close), nil
	}

	fp, err := os.Open(config.Input)
	if err != nil {
		return nil, nil, err
	}
	return fp, closeOnDone(ctx, func() { _ = fp.Close() }), nil
}

func closeOnDone(ctx context.Context, fn func()) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			fn()
		case <-done:
		}
	}()
	return func() {
		close(done)
		fn()
	}
}

func isFileInput(input string) bool {
	if input == "-" {
		return false
	}
	_, isSrt, _ := parseSrtInput(input, 0)
	return !isSrt
}

func logPcrBitrate(filename string, packetSize int) {
	if packetSize == 0 {
		return
	}
	fp, err := os.Open(filename)
	if err != nil {
		return
	}
	defer fp.Close()

	e, err := mpegts.EstimateBitrate(mpegts.NewPacketReader(fp, packetSize, mpegts.MaxResyncSize))
	if err != nil {
		nazalog.Warnf("estimate pcr bitrate failed. err=%+v", err)
		return
	}
	nazalog.Infof("pcr bitrate. pid=0x%x, bitrate=%dkbit/s, start pcr=%d", e.PcrPid, e.Bitrate/1000, e.StartPcr)
}

func parseFlag() (confFile string, input string, outDir string) {
	binInfoFlag := flag.Bool("v", false, "show bin info")
	cf := flag.String("c", "", "specify conf file")
	i := flag.String("i", "", "specify input, file path, `-` for stdin, or srt://:port")
	o := flag.String("o", "", "specify output dir of es files")
	flag.Parse()
	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.TsdemuxFullInfo)
		os.Exit(0)
	}
	if *cf == "" {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `
Example:
  ./bin/tsdemux -c ./conf/tsdemux.conf.json -i ./testdata/test.ts -o ./out
  ./bin/tsdemux -c ./conf/tsdemux.conf.json -i srt://:6001
`)
		os.Exit(1)
	}
	return *cf, *i, *o
}

func loadConf(confFile string) *Config {
	config, err := LoadConf(confFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load conf failed. file=%s err=%+v\n", confFile, err)
		os.Exit(1)
	}
	return config
}

func initLog(opt nazalog.Option) {
	if err := nazalog.Init(func(option *nazalog.Option) {
		*option = opt
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "initial log failed. err=%+v\n", err)
		os.Exit(1)
	}
	nazalog.Info("initial log succ.")
}
