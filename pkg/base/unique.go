// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UkPreDemuxer      = "TSDEMUX"
	UkPreSrtInSession = "SRTIN"
	UkPreEsSink       = "ESSINK"
)

func GenUkDemuxer() string {
	return siUkDemuxer.GenUniqueKey()
}

func GenUkSrtInSession() string {
	return siUkSrtInSession.GenUniqueKey()
}

func GenUkEsSink() string {
	return siUkEsSink.GenUniqueKey()
}

var (
	siUkDemuxer      *unique.SingleGenerator
	siUkSrtInSession *unique.SingleGenerator
	siUkEsSink       *unique.SingleGenerator
)

func init() {
	siUkDemuxer = unique.NewSingleGenerator(UkPreDemuxer)
	siUkSrtInSession = unique.NewSingleGenerator(UkPreSrtInSession)
	siUkEsSink = unique.NewSingleGenerator(UkPreEsSink)
}
