// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

// ----- mpegts --------------------
var (
	// SectionHexDumpDebugMaxNum 日志级别为debug时，最多打印多少个section的hex dump
	SectionHexDumpDebugMaxNum = 8
	SectionHexDumpPrefixLen   = 64

	// PesHexDumpDebugMaxNum 日志级别为debug时，最多打印多少个pes头的hex dump
	PesHexDumpDebugMaxNum = 8
	PesHexDumpPrefixLen   = 32
)
