// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
	"io"
)

// Buffer 输入流的先进先出缓冲区
//
// 写入端从io.Reader中分块读入，读取端通过 Peek 和 Skip 直接使用内部切片，不拷贝
// 尾部空间不够时，先把未读数据移动到开头，仍然不够再扩容
//
type Buffer struct {
	core []byte
	rpos int
	wpos int
}

func NewBuffer(initCap int) *Buffer {
	return &Buffer{
		core: make([]byte, initCap),
	}
}

// Bytes 所有未读数据
func (b *Buffer) Bytes() []byte {
	if b.rpos == b.wpos {
		return nil
	}
	return b.core[b.rpos:b.wpos]
}

// Peek 前`n`字节未读数据，不足`n`时返回所有未读数据
func (b *Buffer) Peek(n int) []byte {
	if b.Len() < n {
		return b.Bytes()
	}
	return b.core[b.rpos : b.rpos+n]
}

// Skip 消费前`n`字节，超出未读数据长度时清空
func (b *Buffer) Skip(n int) {
	if n > b.Len() {
		Log.Warnf("[%p] buffer skip too large. n=%d, %s", b, n, b.DebugString())
		b.Reset()
		return
	}
	b.rpos += n
	if b.rpos == b.wpos {
		b.Reset()
	}
}

// Write 追加到末尾，总是成功
func (b *Buffer) Write(p []byte) (int, error) {
	b.reserve(len(p))
	n := copy(b.core[b.wpos:], p)
	b.wpos += n
	return n, nil
}

// ReadOnceFrom 调用一次`r.Read`，读取至多`n`字节追加到末尾
func (b *Buffer) ReadOnceFrom(r io.Reader, n int) (int, error) {
	b.reserve(n)
	nn, err := r.Read(b.core[b.wpos : b.wpos+n])
	if nn > 0 {
		b.wpos += nn
	}
	return nn, err
}

// Reset 丢弃所有未读数据，不释放内存
func (b *Buffer) Reset() {
	b.rpos = 0
	b.wpos = 0
}

func (b *Buffer) Len() int {
	return b.wpos - b.rpos
}

func (b *Buffer) Cap() int {
	return len(b.core)
}

func (b *Buffer) DebugString() string {
	return fmt.Sprintf("len(core)=%d, rpos=%d, wpos=%d", len(b.core), b.rpos, b.wpos)
}

// reserve 保证末尾至少有`n`字节可写
func (b *Buffer) reserve(n int) {
	if len(b.core)-b.wpos >= n {
		return
	}
	unread := b.Len()
	if unread+n <= len(b.core) {
		copy(b.core, b.core[b.rpos:b.wpos])
		b.rpos = 0
		b.wpos = unread
		return
	}

	size := 2 * len(b.core)
	if size < unread+n {
		size = unread + n
	}
	core := make([]byte, size)
	copy(core, b.core[b.rpos:b.wpos])
	b.core = core
	b.rpos = 0
	b.wpos = unread
}
