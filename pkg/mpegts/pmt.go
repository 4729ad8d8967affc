// Copyright 2020, Chef.  All rights reserved.
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

// Pmt
//
// ----------------------------------------
// Program Map Table
// <iso13818-1.pdf> <2.4.4.8> <page 64/174>
// table_id                 [8b]  *
// section_syntax_indicator [1b]
// 0                        [1b]
// reserved                 [2b]
// section_length           [12b] **
// program_number           [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// reserved                 [3b]
// PCR_PID                  [13b] **
// reserved                 [4b]
// program_info_length      [12b] **
// -----loop-----
// stream_type              [8b]  *
// reserved                 [3b]
// elementary_PID           [13b] **
// reserved                 [4b]
// ES_info_length_length    [12b] **
// --------------
// CRC32                    [32b] ****
// ----------------------------------------
//
type Pmt struct {
	Header             SectionHeader
	PcrPid             uint16
	ProgramDescriptors []Descriptor
	ProgramElements    []PmtProgramElement
}

type PmtProgramElement struct {
	StreamType  uint8
	Pid         uint16
	Descriptors []Descriptor
}

// Descriptor tag + length + data
type Descriptor struct {
	Tag  uint8
	Data []byte
}

// ParsePmt
//
// 数据不完整时，已经解析出的部分依然返回，和err为nil
//
func ParsePmt(section []byte) (pmt Pmt, err error) {
	var body []byte
	if pmt.Header, body, err = ParseSectionHeader(section); err != nil {
		return
	}
	if pmt.Header.Tid != TsPsiIdPms {
		return pmt, base.NewErrInvalidSection(pmt.Header.Tid, "not PMT")
	}

	c := newByteCursor(body)
	pcrPid, err := c.ReadUint16()
	if err != nil {
		return pmt, base.NewErrInvalidSection(pmt.Header.Tid, "no pcr pid")
	}
	pmt.PcrPid = pcrPid & 0x1fff

	v, err := c.ReadUint16()
	if err != nil {
		return pmt, base.NewErrInvalidSection(pmt.Header.Tid, "no program info length")
	}
	pil := int(v & 0xfff)
	for pil >= 2 {
		tag, err := c.ReadUint8()
		if err != nil {
			break
		}
		l, err := c.ReadUint8()
		if err != nil {
			break
		}
		if int(l) > pil-2 {
			// program_info_length和描述符长度不一致，后面的描述符不再解析
			break
		}
		pil -= int(l) + 2
		data, err := c.ReadBytes(int(l))
		if err != nil {
			c.Skip(int(l))
			break
		}
		pmt.ProgramDescriptors = append(pmt.ProgramDescriptors, Descriptor{Tag: tag, Data: data})
	}
	c.Skip(pil)

	for c.Len() > 0 {
		st, err := c.ReadUint8()
		if err != nil {
			break
		}
		pid, err := c.ReadUint16()
		if err != nil {
			break
		}
		ppe := PmtProgramElement{
			StreamType: st,
			Pid:        pid & 0x1fff,
		}

		// 描述符列表不完整时，该流依然有效，但后续的流不再解析
		v, err := c.ReadUint16()
		if err != nil {
			pmt.ProgramElements = append(pmt.ProgramElements, ppe)
			break
		}
		dc, err := c.Sub(int(v & 0xfff))
		if err != nil {
			pmt.ProgramElements = append(pmt.ProgramElements, ppe)
			break
		}
		ppe.Descriptors = parseDescriptors(dc)
		pmt.ProgramElements = append(pmt.ProgramElements, ppe)
	}
	return pmt, nil
}

func (pmt *Pmt) SearchPid(pid uint16) *PmtProgramElement {
	for i := range pmt.ProgramElements {
		if pmt.ProgramElements[i].Pid == pid {
			return &pmt.ProgramElements[i]
		}
	}
	return nil
}

// parseDescriptors 解析到第一个不完整的描述符为止
func parseDescriptors(c *byteCursor) (ds []Descriptor) {
	for c.Len() > 0 {
		tag, err := c.ReadUint8()
		if err != nil {
			return
		}
		l, err := c.ReadUint8()
		if err != nil {
			return
		}
		data, err := c.ReadBytes(int(l))
		if err != nil {
			return
		}
		ds = append(ds, Descriptor{Tag: tag, Data: data})
	}
	return
}

// ---------------------------------------------------------------------------------------------------------------------

func (d *Demuxer) handlePmt(sf *sectionFilter, section []byte) {
	pmt, err := ParsePmt(section)
	if err != nil {
		Log.Debugf("[%s] parse PMT failed. pid=0x%x, err=%+v", d.uniqueKey, sf.pid, err)
		return
	}
	if !sf.checkVersion(pmt.Header.Version) {
		return
	}
	Log.Debugf("[%s] PMT. program=%d, version=%d, sec=%d/%d, pcr pid=0x%x, num=%d", d.uniqueKey, pmt.Header.Id,
		pmt.Header.Version, pmt.Header.SecNum, pmt.Header.LastSecNum, pmt.PcrPid, len(pmt.ProgramElements))

	prog := d.findProgram(pmt.Header.Id)
	if prog != nil {
		prog.Pids = prog.Pids[:0]
		prog.PcrPid = int(pmt.PcrPid)
		prog.addPid(pmt.PcrPid)
	}

	var progRegDesc uint32
	var mp4Descrs []mp4Descr
	for _, desc := range pmt.ProgramDescriptors {
		switch desc.Tag {
		case DescriptorTagIod:
			// scope + label
			if len(desc.Data) < 2 {
				break
			}
			descrs, err := readMp4Iods(desc.Data[2:], maxMp4DescrCount-len(mp4Descrs))
			if err != nil {
				Log.Warnf("[%s] read IOD failed. program=%d, err=%+v", d.uniqueKey, pmt.Header.Id, err)
			}
			mp4Descrs = append(mp4Descrs, descrs...)
			d.slConfigs.set(descrs)
		case DescriptorTagRegistration:
			if len(desc.Data) >= 4 {
				progRegDesc = bele.LeUint32(desc.Data)
			}
		}
	}

	if len(pmt.ProgramElements) > 0 && len(d.streams) == 0 {
		d.stopParse = true
	}

	for _, ppe := range pmt.ProgramElements {
		var pes *pesContext
		var st *Stream

		f := d.pids[ppe.Pid]
		switch {
		case f != nil && f.typ == filterTypePes:
			pes = f.pes
			if pes.st == nil {
				pes.st = d.newStream(ppe.Pid)
			}
			st = pes.st
		case ppe.StreamType != StreamTypeMpeg4SlSection:
			if f != nil {
				// 比如误开的SDT filter
				d.closeFilter(f)
			}
			if pes = d.addPesStream(ppe.Pid, int(pmt.PcrPid)); pes != nil {
				st = d.newStream(ppe.Pid)
			}
		default:
			if st = d.findStreamByPid(ppe.Pid); st == nil {
				st = d.newStream(ppe.Pid)
				st.StreamType = ppe.StreamType
				st.MediaType = MediaTypeData
			}
		}
		if st == nil {
			break
		}

		if pes != nil && pes.streamType == 0 {
			pes.setStreamInfo(st, ppe.StreamType, progRegDesc)
		}

		if prog != nil {
			prog.addPid(ppe.Pid)
			prog.addStreamIndex(st.Index)
		}

		for _, desc := range ppe.Descriptors {
			if err := d.parseEsDescriptor(st, ppe.StreamType, desc, mp4Descrs, ppe.Pid); err != nil {
				Log.Debugf("[%s] parse es descriptor failed. pid=0x%x, err=%+v", d.uniqueKey, ppe.Pid, err)
			}
		}

		if pes != nil && pes.subSt != nil && isBlurayRegistration(progRegDesc) && ppe.StreamType == StreamTypeHdmvTrueHd {
			if prog != nil {
				prog.addStreamIndex(pes.subSt.Index)
			}
			pes.subSt.CodecTag = st.CodecTag
		}
	}
}
