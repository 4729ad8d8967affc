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
	"io"
	"os"
	"path/filepath"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabytes"
)

// DumpFile 将demux出的数据包按固定格式写入文件，方便离线分析
//
// 每条消息由16字节头加消息体组成，头部四个字段均为大端uint32:
//
//   | Ver | Typ | Len | Timestamp | Body(Len) |
//
// Typ 由调用方定义，tsdemux中存放的是流索引
//
type DumpFile struct {
	file *os.File
}

type DumpFileMessage struct {
	Ver       uint32
	Typ       uint32
	Len       uint32
	Timestamp uint32
	Body      []byte
}

const (
	DumpFileVer        = 1
	dumpFileHeaderSize = 16
)

func NewDumpFile() *DumpFile {
	return &DumpFile{}
}

func (d *DumpFile) OpenToWrite(filename string) (err error) {
	dir := filepath.Dir(filename)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	d.file, err = os.Create(filename)
	return
}

func (d *DumpFile) OpenToRead(filename string) (err error) {
	d.file, err = os.Open(filename)
	return
}

func (d *DumpFile) Write(b []byte, typ uint32, timestamp uint32) error {
	_, err := d.file.Write(d.pack(b, typ, timestamp))
	return err
}

// ReadOneMessage 读取一条消息，文件读完时返回io.EOF
//
func (d *DumpFile) ReadOneMessage() (m DumpFileMessage, err error) {
	header := make([]byte, dumpFileHeaderSize)
	if _, err = io.ReadFull(d.file, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = ErrShortBuffer
		}
		return
	}
	m.Ver = bele.BeUint32(header)
	m.Typ = bele.BeUint32(header[4:])
	m.Len = bele.BeUint32(header[8:])
	m.Timestamp = bele.BeUint32(header[12:])
	if m.Ver != DumpFileVer {
		err = fmt.Errorf("%w. ver=%d", ErrDumpFileVer, m.Ver)
		return
	}
	m.Body = make([]byte, m.Len)
	if _, err = io.ReadFull(d.file, m.Body); err == io.EOF || err == io.ErrUnexpectedEOF {
		err = ErrShortBuffer
	}
	return
}

func (d *DumpFile) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}

// ---------------------------------------------------------------------------------------------------------------------

func (m *DumpFileMessage) DebugString() string {
	return fmt.Sprintf("ver: %d, typ: %d, len: %d, timestamp: %d, len: %d, hex: %s",
		m.Ver, m.Typ, m.Len, m.Timestamp, len(m.Body), hex.Dump(nazabytes.Prefix(m.Body, 16)))
}

// ---------------------------------------------------------------------------------------------------------------------

func (d *DumpFile) pack(b []byte, typ uint32, timestamp uint32) []byte {
	ret := make([]byte, len(b)+dumpFileHeaderSize)
	bele.BePutUint32(ret, DumpFileVer)        // Ver
	bele.BePutUint32(ret[4:], typ)            // Typ
	bele.BePutUint32(ret[8:], uint32(len(b))) // Len
	bele.BePutUint32(ret[12:], timestamp)     // Timestamp
	copy(ret[16:], b)
	return ret
}
