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
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/haivision/srtgo"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsdemux/pkg/base"
)

const srtScheme = "srt://"

// SrtSource 监听srt端口，把第一个推流端作为输入
type SrtSource struct {
	uniqueKey string
	listener  *srtgo.SrtSocket
	closeOnce sync.Once

	mu     sync.Mutex
	socket *srtgo.SrtSocket
	closed bool
}

// parseSrtInput `srt://:6001`，端口缺省时使用配置中的端口
func parseSrtInput(input string, defaultPort int) (port int, ok bool, err error) {
	if !strings.HasPrefix(input, srtScheme) {
		return 0, false, nil
	}
	hostport := strings.TrimPrefix(input, srtScheme)
	index := strings.LastIndex(hostport, ":")
	if index == -1 || index == len(hostport)-1 {
		return defaultPort, true, nil
	}
	port, err = strconv.Atoi(hostport[index+1:])
	if err != nil || port <= 0 || port > 65535 {
		return 0, true, base.NewErrTsdemuxConfig("input", input)
	}
	return port, true, nil
}

func ListenSrt(port int, latencyMs int) (*SrtSource, error) {
	options := make(map[string]string)
	options["transtype"] = "live"
	options["latency"] = strconv.Itoa(latencyMs)

	sck := srtgo.NewSrtSocket("0.0.0.0", uint16(port), options)
	if err := sck.Listen(1); err != nil {
		sck.Close()
		return nil, err
	}
	s := &SrtSource{
		uniqueKey: base.GenUkSrtInSession(),
		listener:  sck,
	}
	nazalog.Infof("[%s] srt listen. port=%d, latency=%dms", s.uniqueKey, port, latencyMs)
	return s, nil
}

// Accept 阻塞直到有推流端连入，ctx结束时关闭监听
func (s *SrtSource) Accept(ctx context.Context) (io.Reader, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	socket, addr, err := s.listener.Accept()
	if err != nil {
		return nil, err
	}
	nazalog.Infof("[%s] srt accept. remote=%s", s.uniqueKey, addr.String())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// 连入的同时已经被关闭
		socket.Close()
		return nil, base.ErrSrtSourceClosed
	}
	s.socket = socket
	return s, nil
}

// Read 连接断开时返回io.EOF
func (s *SrtSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	socket := s.socket
	s.mu.Unlock()
	if socket == nil {
		return 0, base.ErrSrtSourceClosed
	}

	n, err := socket.Read(p)
	if err != nil {
		if errors.Is(err, srtgo.EConnLost) {
			return n, io.EOF
		}
		return n, err
	}
	return n, nil
}

// Close 可以重复调用
func (s *SrtSource) Close() {
	s.closeOnce.Do(func() {
		nazalog.Infof("[%s] lifecycle dispose srt source.", s.uniqueKey)
		s.mu.Lock()
		s.closed = true
		socket := s.socket
		s.mu.Unlock()
		if socket != nil {
			socket.Close()
		}
		s.listener.Close()
	})
}
