// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"encoding/hex"
	"fmt"

	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazalog"
)

// HexDumper 打印二进制数据的hex dump，次数受日志级别限制
//
// trace级别每次都打印，debug级别最多打印`debugMaxNum`次，更高的级别不打印
//
type HexDumper struct {
	log         nazalog.Logger
	debugMaxNum int
	prefixLen   int

	count int
}

// NewHexDumper
//
// @param prefixLen: 每次最多dump的字节数
//
func NewHexDumper(log nazalog.Logger, debugMaxNum int, prefixLen int) *HexDumper {
	return &HexDumper{
		log:         log,
		debugMaxNum: debugMaxNum,
		prefixLen:   prefixLen,
	}
}

// Dump 格式化`format`在不打印时不会发生
func (h *HexDumper) Dump(b []byte, format string, v ...interface{}) {
	if !h.enabled() {
		return
	}
	h.count++
	msg := fmt.Sprintf(format, v...)
	h.log.Out(h.log.GetOption().Level, 3, fmt.Sprintf("%s, len=%d\n%s", msg, len(b), hex.Dump(nazabytes.Prefix(b, h.prefixLen))))
}

// Count 已经打印的次数
func (h *HexDumper) Count() int {
	return h.count
}

func (h *HexDumper) enabled() bool {
	switch h.log.GetOption().Level {
	case nazalog.LevelTrace:
		return true
	case nazalog.LevelDebug:
		return h.count < h.debugMaxNum
	}
	return false
}
