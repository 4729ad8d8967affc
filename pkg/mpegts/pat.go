// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/tsdemux/pkg/base"
)

// ---------------------------------------------------------------------------------------------------
// Program association section
// <iso13818-1.pdf> <2.4.4.3> <page 61/174>
// table_id                 [8b] *
// section_syntax_indicator [1b]
// '0'                      [1b]
// reserved                 [2b]
// section_length           [12b] **
// transport_stream_id      [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// -----loop-----
// program_number           [16b] **
// reserved                 [3b]
// program_map_PID          [13b] ** if program_number == 0 then network_PID else then program_map_PID
// --------------
// CRC_32                   [32b] ****
// ---------------------------------------------------------------------------------------------------
type Pat struct {
	Header          SectionHeader
	ProgramElements []PatProgramElement
}

type PatProgramElement struct {
	ProgramNumber uint16
	Pid           uint16
}

// ParsePat
//
// @param section: 完整的section，包含crc
//
func ParsePat(section []byte) (pat Pat, err error) {
	var body []byte
	if pat.Header, body, err = ParseSectionHeader(section); err != nil {
		return
	}
	if pat.Header.Tid != TsPsiIdPas {
		return pat, base.NewErrInvalidSection(pat.Header.Tid, "not PAT")
	}

	c := newByteCursor(body)
	for {
		pn, err := c.ReadUint16()
		if err != nil {
			break
		}
		pid, err := c.ReadUint16()
		if err != nil {
			break
		}
		pat.ProgramElements = append(pat.ProgramElements, PatProgramElement{
			ProgramNumber: pn,
			Pid:           pid & 0x1fff,
		})
	}
	return pat, nil
}

// handlePat PAT是节目信息的权威来源，每次解析都会重建节目列表
func (d *Demuxer) handlePat(sf *sectionFilter, section []byte) {
	pat, err := ParsePat(section)
	if err != nil {
		Log.Debugf("[%s] parse PAT failed. err=%+v", d.uniqueKey, err)
		return
	}
	if !sf.checkVersion(pat.Header.Version) {
		return
	}
	Log.Debugf("[%s] PAT. tsid=%d, version=%d, num=%d", d.uniqueKey, pat.Header.Id, pat.Header.Version, len(pat.ProgramElements))

	d.clearPrograms()
	for _, ppe := range pat.ProgramElements {
		if ppe.ProgramNumber == 0 {
			// NIT
			continue
		}
		if ppe.Pid == PidPat {
			Log.Warnf("[%s] PMT pid equals PAT pid, ignore. program=%d", d.uniqueKey, ppe.ProgramNumber)
			continue
		}

		p := d.newProgram(ppe.ProgramNumber, ppe.Pid)

		// 同一个pid上已有的PMT filter保留，重置版本号使得下一个PMT重新填充节目信息，其他类型的filter被替换
		if f := d.pids[ppe.Pid]; f != nil {
			if f.typ == filterTypeSection && f.section.kind == tableKindPmt {
				f.section.lastVer = -1
			} else {
				d.closeFilter(f)
			}
		}
		d.openSectionFilter(ppe.Pid, tableKindPmt)

		p.addPid(PidPat)
		p.addPid(ppe.Pid)
	}
}

// ----- programs ------------------------------------------------------------------------------------------------------

func (d *Demuxer) clearPrograms() {
	d.programs = d.programs[:0]
}

// newProgram 节目已存在时返回已存在的
func (d *Demuxer) newProgram(id uint16, pmtPid uint16) *Program {
	if p := d.findProgram(id); p != nil {
		return p
	}
	p := &Program{
		Id:      id,
		PmtPid:  pmtPid,
		PcrPid:  -1,
		Discard: d.programDiscard[id],
	}
	if s, ok := d.services[id]; ok {
		p.ServiceType = s.ServiceType
		p.ServiceProvider = s.ProviderName
		p.ServiceName = s.ServiceName
	}
	d.programs = append(d.programs, p)
	return p
}

func (d *Demuxer) findProgram(id uint16) *Program {
	for _, p := range d.programs {
		if p.Id == id {
			return p
		}
	}
	return nil
}

// discardPid 只有当引用该pid的节目全部被丢弃时，才丢弃该pid
func (d *Demuxer) discardPid(pid uint16) bool {
	anyDiscard := false
	for _, p := range d.programs {
		if p.Discard {
			anyDiscard = true
			break
		}
	}
	if !anyDiscard {
		return false
	}

	usedCount := 0
	discardCount := 0
	for _, p := range d.programs {
		if !p.hasPid(pid) {
			continue
		}
		if p.Discard {
			discardCount++
		} else {
			usedCount++
		}
	}
	return usedCount == 0 && discardCount > 0
}
