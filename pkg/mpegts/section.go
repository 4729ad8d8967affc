// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/tsdemux/pkg/base"
)

// tableKind section filter对应的表，决定section完整后交给哪个解析函数
type tableKind int

const (
	tableKindPat tableKind = iota + 1
	tableKindPmt
	tableKindSdt
	tableKindM4od // ISO/IEC 14496 object descriptor section，stream_type 0x13
)

func (k tableKind) String() string {
	switch k {
	case tableKindPat:
		return "PAT"
	case tableKindPmt:
		return "PMT"
	case tableKindSdt:
		return "SDT"
	case tableKindM4od:
		return "M4OD"
	}
	return "unknown"
}

// sectionFilter 将多个ts包中的数据拼接成完整的section
//
type sectionFilter struct {
	pid      uint16
	kind     tableKind
	checkCrc bool

	buf        [MaxSectionSize]byte
	index      int
	hSize      int // 根据section_length计算出的总大小，-1表示还未确定
	endReached bool

	lastVer int // 上次解析过的version_number，-1表示没有
}

func newSectionFilter(pid uint16, kind tableKind, checkCrc bool) *sectionFilter {
	return &sectionFilter{
		pid:      pid,
		kind:     kind,
		checkCrc: checkCrc,
		hSize:    -1,
		lastVer:  -1,
	}
}

// write
//
// @param isStart: 为true时，`b`为一个新section的起始
//
// @return section: 拼接完成时返回完整的section，内存块在下次调用 write 前有效；没有完成时返回nil
// @return err:     crc校验失败时返回，该section被丢弃
//
func (sf *sectionFilter) write(b []byte, isStart bool) (section []byte, err error) {
	if isStart {
		sf.index = copy(sf.buf[:], b)
		sf.hSize = -1
		sf.endReached = false
	} else {
		if sf.endReached {
			return nil, nil
		}
		sf.index += copy(sf.buf[sf.index:], b)
	}

	if sf.hSize == -1 && sf.index >= 3 {
		l := int(bele.BeUint16(sf.buf[1:])&0xfff) + 3
		if l > MaxSectionSize {
			return nil, nil
		}
		sf.hSize = l
	}

	if sf.hSize == -1 || sf.index < sf.hSize {
		return nil, nil
	}

	sf.endReached = true
	section = sf.buf[:sf.hSize]
	if sf.checkCrc {
		if crc := Crc32Mpeg(section); crc != 0 {
			return nil, base.NewErrSectionCrc(sf.pid, crc)
		}
	}
	return section, nil
}

// checkVersion 版本号和上次相同时返回false，否则记录新版本号并返回true
func (sf *sectionFilter) checkVersion(version uint8) bool {
	if int(version) == sf.lastVer {
		return false
	}
	sf.lastVer = int(version)
	return true
}
