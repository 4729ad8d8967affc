// Copyright 2023, Chef.  All rights reserved.
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
// Service description section
// <EN 300 468> <5.2.3 Service Description Table> <page 27>
// table_id                   [8b]  *
// section_syntax_indicator   [1b]
// reserved_future_use        [1b]
// reserved                   [2b]
// section_length             [12b] **
// transport_stream_id        [16b] **
// reserved                   [2b]
// version_number             [5b]
// current_next_indicator     [1b]  *
// section_number             [8b]  *
// last_section_number        [8b]  *
// original_network_id        [16b] **
// reserved_future_use        [8b]  *
// -----loop-----
// service_id                 [16b] **
// reserved_future_use        [6b]
// EIT_schedule_flag          [1b]
// EIT_present_following_flag [1b]  *
// running_status             [3b]
// free_CA_mode               [1b]
// descriptors_loop_length    [12b] **
// --------------
// CRC_32                     [32b] ****
// ---------------------------------------------------------------------------------------------------
type Sdt struct {
	Header            SectionHeader
	OriginalNetworkId uint16
	Services          []SdtService
}

type SdtService struct {
	ServiceId   uint16
	Descriptors []Descriptor
}

// ServiceInfo 来自service descriptor(0x48)
type ServiceInfo struct {
	ServiceType  uint8
	ProviderName string
	ServiceName  string
}

func ParseSdt(section []byte) (sdt Sdt, err error) {
	var body []byte
	if sdt.Header, body, err = ParseSectionHeader(section); err != nil {
		return
	}
	if sdt.Header.Tid != TsPsiIdSdt {
		return sdt, base.NewErrInvalidSection(sdt.Header.Tid, "not SDT")
	}

	c := newByteCursor(body)
	if sdt.OriginalNetworkId, err = c.ReadUint16(); err != nil {
		return sdt, base.NewErrInvalidSection(sdt.Header.Tid, "no original network id")
	}
	if _, err = c.ReadUint8(); err != nil {
		return sdt, base.NewErrInvalidSection(sdt.Header.Tid, "short section")
	}

	for c.Len() > 0 {
		sid, err := c.ReadUint16()
		if err != nil {
			break
		}
		if _, err = c.ReadUint8(); err != nil {
			break
		}
		v, err := c.ReadUint16()
		if err != nil {
			break
		}
		dc, err := c.Sub(int(v & 0xfff))
		if err != nil {
			break
		}
		sdt.Services = append(sdt.Services, SdtService{
			ServiceId:   sid,
			Descriptors: parseDescriptors(dc),
		})
	}
	return sdt, nil
}

// ServiceInfo 查找service descriptor，不存在时ok为false
func (s *SdtService) ServiceInfo() (info ServiceInfo, ok bool) {
	for _, desc := range s.Descriptors {
		if desc.Tag != DescriptorTagService {
			continue
		}
		c := newByteCursor(desc.Data)
		var err error
		if info.ServiceType, err = c.ReadUint8(); err != nil {
			continue
		}
		if info.ProviderName, err = c.ReadStr8(); err != nil {
			continue
		}
		if info.ServiceName, err = c.ReadStr8(); err != nil {
			continue
		}
		return info, true
	}
	return info, false
}

func (d *Demuxer) handleSdt(sf *sectionFilter, section []byte) {
	sdt, err := ParseSdt(section)
	if err != nil {
		Log.Debugf("[%s] parse SDT failed. err=%+v", d.uniqueKey, err)
		return
	}
	if !sf.checkVersion(sdt.Header.Version) {
		return
	}
	Log.Debugf("[%s] SDT. tsid=%d, version=%d, onid=%d, num=%d", d.uniqueKey, sdt.Header.Id, sdt.Header.Version,
		sdt.OriginalNetworkId, len(sdt.Services))

	for i := range sdt.Services {
		info, ok := sdt.Services[i].ServiceInfo()
		if !ok {
			continue
		}
		sid := sdt.Services[i].ServiceId
		d.services[sid] = info
		if p := d.findProgram(sid); p != nil {
			p.ServiceType = info.ServiceType
			p.ServiceProvider = info.ProviderName
			p.ServiceName = info.ServiceName
		}
		Log.Infof("[%s] service. sid=%d, type=%d, provider=%s, name=%s", d.uniqueKey, sid, info.ServiceType,
			info.ProviderName, info.ServiceName)
	}
}
