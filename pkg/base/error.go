// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer     = errors.New("tsdemux: buffer too short")
	ErrFileNotExist    = errors.New("tsdemux: file not exist")
	ErrSrtSourceClosed = errors.New("tsdemux: srt source closed")
)

// ----- pkg/base ------------------------------------------------------------------------------------------------------

var ErrDumpFileVer = errors.New("tsdemux.base: unsupported dump file version")

// ----- pkg/mpegts ----------------------------------------------------------------------------------------------------

var (
	ErrMpegts = errors.New("tsdemux.mpegts: fxxk")

	ErrPacketSizeUndetermined = errors.New("tsdemux.mpegts: cannot determine transport packet size")
	ErrSyncLost               = errors.New("tsdemux.mpegts: sync byte not found within resync window")

	ErrInvalidSection    = errors.New("tsdemux.mpegts: invalid section")
	ErrSectionCrc        = errors.New("tsdemux.mpegts: section crc mismatch")
	ErrInvalidDescriptor = errors.New("tsdemux.mpegts: invalid descriptor")

	ErrNoPcr       = errors.New("tsdemux.mpegts: no pcr found")
	ErrNotSeekable = errors.New("tsdemux.mpegts: source is not seekable")
	ErrStreamIndex = errors.New("tsdemux.mpegts: invalid stream index")
	ErrDisposed    = errors.New("tsdemux.mpegts: demuxer already disposed")
)

func NewErrPacketSizeUndetermined(score188, score192, score204 int) error {
	return fmt.Errorf("%w. score=(%d, %d, %d)", ErrPacketSizeUndetermined, score188, score192, score204)
}

func NewErrSyncLost(pos int64, scanned int) error {
	return fmt.Errorf("%w. pos=%d, scanned=%d", ErrSyncLost, pos, scanned)
}

func NewErrInvalidSection(tid uint8, reason string) error {
	return fmt.Errorf("%w. tid=%d, reason=%s", ErrInvalidSection, tid, reason)
}

func NewErrSectionCrc(pid uint16, crc uint32) error {
	return fmt.Errorf("%w. pid=%d, crc=%x", ErrSectionCrc, pid, crc)
}

func NewErrInvalidDescriptor(tag uint8, need, actual int) error {
	return fmt.Errorf("%w. tag=%d, need=%d, actual=%d", ErrInvalidDescriptor, tag, need, actual)
}

// ----- app/tsdemux ---------------------------------------------------------------------------------------------------

var ErrTsdemuxConfig = errors.New("tsdemux.app: invalid config")

func NewErrTsdemuxConfig(field string, v interface{}) error {
	return fmt.Errorf("%w. field=%s, value=%v", ErrTsdemuxConfig, field, v)
}

// ---------------------------------------------------------------------------------------------------------------------
