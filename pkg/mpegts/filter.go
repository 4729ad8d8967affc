// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

type filterType int

const (
	filterTypeSection filterType = iota + 1
	filterTypePes
)

// filter 一个pid上挂载的处理者，section和pes二选一
type filter struct {
	pid    uint16
	typ    filterType
	lastCc int // 上一个ts包的continuity_counter，-1表示还没有
	esId   int // MPEG-4 SL descriptor中的ES_ID，-1表示没有

	section *sectionFilter
	pes     *pesContext
}

// ----- Demuxer中的pid表操作 ---------------------------------------------------------------------------------------------

// openSectionFilter pid上已经存在filter时返回nil
func (d *Demuxer) openSectionFilter(pid uint16, kind tableKind) *filter {
	if int(pid) >= NbPidMax || d.pids[pid] != nil {
		return nil
	}
	f := &filter{
		pid:     pid,
		typ:     filterTypeSection,
		lastCc:  -1,
		esId:    -1,
		section: newSectionFilter(pid, kind, d.option.CheckCrc),
	}
	d.pids[pid] = f
	Log.Debugf("[%s] open section filter. pid=0x%x, kind=%s", d.uniqueKey, pid, kind)
	return f
}

// openPesFilter pid上已经存在filter时返回nil
func (d *Demuxer) openPesFilter(pid uint16, pes *pesContext) *filter {
	if int(pid) >= NbPidMax || d.pids[pid] != nil {
		return nil
	}
	f := &filter{
		pid:    pid,
		typ:    filterTypePes,
		lastCc: -1,
		esId:   -1,
		pes:    pes,
	}
	d.pids[pid] = f
	Log.Debugf("[%s] open pes filter. pid=0x%x, pcr pid=%d", d.uniqueKey, pid, pes.pcrPid)
	return f
}

func (d *Demuxer) closeFilter(f *filter) {
	if f == nil || d.pids[f.pid] != f {
		return
	}
	Log.Debugf("[%s] close filter. pid=0x%x, type=%d", d.uniqueKey, f.pid, f.typ)
	if f.pes != nil {
		f.pes.buf = nil
		f.pes.dataIndex = 0
	}
	d.pids[f.pid] = nil
}

// addPesStream 在pid上创建pes filter，pid上已经存在filter时返回nil
//
// @param pcrPid: -1表示未知
//
func (d *Demuxer) addPesStream(pid uint16, pcrPid int) *pesContext {
	pes := newPesContext(d, pid, pcrPid)
	if d.openPesFilter(pid, pes) == nil {
		return nil
	}
	return pes
}

// resetFilters 输入位置跳变后调用，丢弃所有未完成的pes，并重置continuity_counter
func (d *Demuxer) resetFilters() {
	for i := range d.pids {
		f := d.pids[i]
		if f == nil {
			continue
		}
		if f.pes != nil {
			f.pes.buf = nil
			f.pes.dataIndex = 0
			f.pes.state = pesStateSkip
		}
		f.lastCc = -1
	}
}
