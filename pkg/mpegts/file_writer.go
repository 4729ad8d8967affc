// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/q191201771/tsdemux/pkg/base"
)

// FileWriter 将一路流的pes负载按顺序追加写入文件，也即裸的es文件
type FileWriter struct {
	fp      *os.File
	written int64
}

// EsFilename `<pid>_<index>.<ext>`
func EsFilename(dir string, st *Stream) string {
	return filepath.Join(dir, fmt.Sprintf("%d_%d.%s", st.Pid, st.Index, EsFileExt(st.CodecId)))
}

// EsFileExt es文件的后缀名，未知codec使用bin
func EsFileExt(codecId CodecId) string {
	switch codecId {
	case CodecIdH264:
		return "h264"
	case CodecIdHevc:
		return "h265"
	case CodecIdMpeg1Video, CodecIdMpeg2Video:
		return "m2v"
	case CodecIdMpeg4:
		return "m4v"
	case CodecIdCavs:
		return "cavs"
	case CodecIdVc1:
		return "vc1"
	case CodecIdAac, CodecIdAacLatm:
		return "aac"
	case CodecIdMp3:
		return "mp3"
	case CodecIdAc3:
		return "ac3"
	case CodecIdEac3:
		return "eac3"
	case CodecIdDts:
		return "dts"
	case CodecIdTrueHd:
		return "thd"
	case CodecIdOpus:
		return "opus"
	case CodecIdHdmvPgsSubtitle:
		return "sup"
	}
	return "bin"
}

func (fw *FileWriter) Create(filename string) (err error) {
	if err = os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return
	}
	fw.fp, err = os.Create(filename)
	return
}

func (fw *FileWriter) Write(b []byte) (err error) {
	if fw.fp == nil {
		return base.ErrMpegts
	}
	n, err := fw.fp.Write(b)
	fw.written += int64(n)
	return
}

// Written 已经写入的字节数
func (fw *FileWriter) Written() int64 {
	return fw.written
}

func (fw *FileWriter) Dispose() error {
	if fw.fp == nil {
		return base.ErrMpegts
	}
	err := fw.fp.Close()
	fw.fp = nil
	return err
}

func (fw *FileWriter) Name() string {
	if fw.fp == nil {
		return ""
	}
	return fw.fp.Name()
}
