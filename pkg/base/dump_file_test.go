// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base_test

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tsdemux/pkg/base"
)

func TestDumpFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "tsdemux")
	assert.Equal(t, nil, err)
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "sub", "test.tsdump")

	df := base.NewDumpFile()
	err = df.OpenToWrite(filename)
	assert.Equal(t, nil, err)
	err = df.Write([]byte("hello"), 1, 1000)
	assert.Equal(t, nil, err)
	err = df.Write([]byte("world!"), 2, 2000)
	assert.Equal(t, nil, err)
	err = df.Close()
	assert.Equal(t, nil, err)

	df = base.NewDumpFile()
	err = df.OpenToRead(filename)
	assert.Equal(t, nil, err)
	var ms []base.DumpFileMessage
	for {
		m, err := df.ReadOneMessage()
		if err == io.EOF {
			break
		}
		assert.Equal(t, nil, err)
		nazalog.Debugf("%s", m.DebugString())
		ms = append(ms, m)
	}
	_ = df.Close()

	assert.Equal(t, 2, len(ms))
	assert.Equal(t, uint32(base.DumpFileVer), ms[0].Ver)
	assert.Equal(t, uint32(1), ms[0].Typ)
	assert.Equal(t, uint32(1000), ms[0].Timestamp)
	assert.Equal(t, []byte("hello"), ms[0].Body)
	assert.Equal(t, uint32(2), ms[1].Typ)
	assert.Equal(t, uint32(6), ms[1].Len)
	assert.Equal(t, []byte("world!"), ms[1].Body)
}
