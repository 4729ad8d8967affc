// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"encoding/json"
	"io/ioutil"

	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsdemux/pkg/base"
	"github.com/q191201771/tsdemux/pkg/mpegts"
)

const (
	defaultOutDir        = "./out"
	defaultSrtListenPort = 6001
	defaultSrtLatencyMs  = 120
	defaultStatIntervalS = 5
)

type Config struct {
	Input         string `json:"input"`
	OutDir        string `json:"out_dir"`
	WriteEs       bool   `json:"write_es"`
	DumpFilename  string `json:"dump_filename"`
	PacketSize    int    `json:"packet_size"`
	ResyncSize    int    `json:"resync_size"`
	MaxPesPayload int    `json:"max_pes_payload"`
	CheckCrc      bool   `json:"check_crc"`
	StatIntervalS int    `json:"stat_interval_sec"`

	SrtConfig SrtConfig      `json:"srt"`
	LogConfig nazalog.Option `json:"log"`
}

type SrtConfig struct {
	ListenPort int `json:"listen_port"`
	LatencyMs  int `json:"latency_ms"`
}

func LoadConf(confFile string) (*Config, error) {
	rawContent, err := ioutil.ReadFile(confFile)
	if err != nil {
		return nil, err
	}
	return parseConf(rawContent)
}

func parseConf(rawContent []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(rawContent, &config); err != nil {
		return nil, err
	}

	j, err := nazajson.New(rawContent)
	if err != nil {
		return nil, err
	}

	// 配置不存在时，设置默认值
	if !j.Exist("out_dir") {
		config.OutDir = defaultOutDir
	}
	if !j.Exist("write_es") {
		config.WriteEs = true
	}
	if !j.Exist("resync_size") {
		config.ResyncSize = mpegts.MaxResyncSize
	}
	if !j.Exist("max_pes_payload") {
		config.MaxPesPayload = mpegts.MaxPesPayload
	}
	if !j.Exist("check_crc") {
		config.CheckCrc = true
	}
	if !j.Exist("stat_interval_sec") {
		config.StatIntervalS = defaultStatIntervalS
	}
	if !j.Exist("srt.listen_port") {
		config.SrtConfig.ListenPort = defaultSrtListenPort
	}
	if !j.Exist("srt.latency_ms") {
		config.SrtConfig.LatencyMs = defaultSrtLatencyMs
	}
	if !j.Exist("log.level") {
		config.LogConfig.Level = nazalog.LevelInfo
	}
	if !j.Exist("log.filename") {
		config.LogConfig.Filename = "./logs/tsdemux.log"
	}
	if !j.Exist("log.is_to_stdout") {
		config.LogConfig.IsToStdout = true
	}
	if !j.Exist("log.is_rotate_daily") {
		config.LogConfig.IsRotateDaily = true
	}
	if !j.Exist("log.short_file_flag") {
		config.LogConfig.ShortFileFlag = true
	}
	if !j.Exist("log.assert_behavior") {
		config.LogConfig.AssertBehavior = nazalog.AssertError
	}

	// 检查配置
	switch config.PacketSize {
	case 0, mpegts.PacketSize, mpegts.DvhsPacketSize, mpegts.FecPacketSize:
	default:
		return nil, base.NewErrTsdemuxConfig("packet_size", config.PacketSize)
	}
	if config.ResyncSize < 0 {
		return nil, base.NewErrTsdemuxConfig("resync_size", config.ResyncSize)
	}
	if config.MaxPesPayload <= 0 {
		return nil, base.NewErrTsdemuxConfig("max_pes_payload", config.MaxPesPayload)
	}
	if config.SrtConfig.ListenPort <= 0 || config.SrtConfig.ListenPort > 65535 {
		return nil, base.NewErrTsdemuxConfig("srt.listen_port", config.SrtConfig.ListenPort)
	}

	return &config, nil
}

func (c *Config) demuxerOptions() []mpegts.ModDemuxerOption {
	return []mpegts.ModDemuxerOption{
		func(option *mpegts.DemuxerOption) {
			option.PacketSize = c.PacketSize
			option.ResyncSize = c.ResyncSize
			option.MaxPesPayload = c.MaxPesPayload
			option.CheckCrc = c.CheckCrc
		},
	}
}
