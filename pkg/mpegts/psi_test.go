// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tsdemux/pkg/base"
)

// 地面数字电视的PMT和SDT，不包含crc
const (
	testPmtHex = "02b03105a0c50000e150f007c10188de02efff1be151f0035201810fe152f00352018306e154f008520187fd030012ad"
	testSdtHex = "42f0787fe4d300007fe4ff0420f30018480a0100071b7cd5b8c6ecd3c10184cf0701fe01f002ffff0421f30014480a01" +
		"00071b7cd5b8c6ecd3c10184cf0302fe010422f30014480a0100071b7cd5b8c6ecd3c10184cf0302fe0105a0e50018480ac000" +
		"071b7cd5b8c6ecd3c10188cf07030e8946554a49"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestCrc32Mpeg(t *testing.T) {
	section := packPatSection(1, 0, []testProgram{{1, 0x100}})
	assert.Equal(t, uint32(0), Crc32Mpeg(section))

	section[len(section)-1] ^= 0x01
	assert.Equal(t, true, Crc32Mpeg(section) != 0)

	// 分段计算和整体计算一致
	b := []byte("123456789")
	assert.Equal(t, Crc32Mpeg(b), CalcCrc32(Crc32Mpeg(b[:4]), b[4:]))
	// CRC-32/MPEG-2 的标准检验值
	assert.Equal(t, uint32(0x0376E6E7), Crc32Mpeg(b))
}

func TestParseSectionHeader(t *testing.T) {
	section := packSection(TsPsiIdPms, 0x1234, 7, []byte{1, 2, 3})
	h, body, err := ParseSectionHeader(section)
	assert.Equal(t, nil, err)
	assert.Equal(t, TsPsiIdPms, int(h.Tid))
	assert.Equal(t, uint16(0x1234), h.Id)
	assert.Equal(t, uint8(7), h.Version)
	assert.Equal(t, uint16(12), h.Length)
	assert.Equal(t, []byte{1, 2, 3}, body)

	_, _, err = ParseSectionHeader(section[:10])
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidSection))
}

func TestParsePat(t *testing.T) {
	section := packPatSection(9, 3, []testProgram{{0, 0x10}, {1, 0x100}, {2, 0x200}})
	pat, err := ParsePat(section)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint16(9), pat.Header.Id)
	assert.Equal(t, uint8(3), pat.Header.Version)
	assert.Equal(t, 3, len(pat.ProgramElements))
	assert.Equal(t, uint16(0x200), pat.ProgramElements[2].Pid)
	assert.Equal(t, uint16(2), pat.ProgramElements[2].ProgramNumber)

	_, err = ParsePat(packPmtSection(1, 0, 0x100, nil, nil))
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidSection))
}

func TestParsePmt(t *testing.T) {
	section := withCrc(mustHex(testPmtHex))
	assert.Equal(t, uint32(0), Crc32Mpeg(section))

	pmt, err := ParsePmt(section)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint16(0x05a0), pmt.Header.Id)
	assert.Equal(t, uint8(2), pmt.Header.Version)
	assert.Equal(t, uint16(0x150), pmt.PcrPid)

	assert.Equal(t, 2, len(pmt.ProgramDescriptors))
	assert.Equal(t, uint8(0xc1), pmt.ProgramDescriptors[0].Tag)
	assert.Equal(t, []byte{0x88}, pmt.ProgramDescriptors[0].Data)
	assert.Equal(t, uint8(0xde), pmt.ProgramDescriptors[1].Tag)
	assert.Equal(t, []byte{0xef, 0xff}, pmt.ProgramDescriptors[1].Data)

	assert.Equal(t, 3, len(pmt.ProgramElements))
	expected := []struct {
		streamType   uint8
		pid          uint16
		componentTag uint8
		descNum      int
	}{
		{StreamTypeAvc, 0x151, 0x81, 1},
		{StreamTypeAac, 0x152, 0x83, 1},
		{StreamTypePrivateData, 0x154, 0x87, 2},
	}
	for i, e := range expected {
		ppe := pmt.ProgramElements[i]
		assert.Equal(t, e.streamType, ppe.StreamType)
		assert.Equal(t, e.pid, ppe.Pid)
		assert.Equal(t, e.descNum, len(ppe.Descriptors))
		assert.Equal(t, DescriptorTagStreamIdentifier, int(ppe.Descriptors[0].Tag))
		assert.Equal(t, []byte{e.componentTag}, ppe.Descriptors[0].Data)
	}
	assert.Equal(t, []byte{0x00, 0x12, 0xad}, pmt.ProgramElements[2].Descriptors[1].Data)

	assert.Equal(t, uint16(0x152), pmt.SearchPid(0x152).Pid)
	assert.Equal(t, true, pmt.SearchPid(0x153) == nil)
}

func TestParseSdt(t *testing.T) {
	section := withCrc(mustHex(testSdtHex))
	assert.Equal(t, 123, len(section))

	sdt, err := ParseSdt(section)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint16(0x7fe4), sdt.Header.Id)
	assert.Equal(t, uint8(9), sdt.Header.Version)
	assert.Equal(t, uint16(0x7fe4), sdt.OriginalNetworkId)
	assert.Equal(t, 4, len(sdt.Services))

	name := string([]byte{0x1b, 0x7c, 0xd5, 0xb8, 0xc6, 0xec, 0xd3})
	expected := []struct {
		sid         uint16
		serviceType uint8
	}{
		{0x0420, 0x01},
		{0x0421, 0x01},
		{0x0422, 0x01},
		{0x05a0, 0xc0},
	}
	for i, e := range expected {
		s := sdt.Services[i]
		assert.Equal(t, e.sid, s.ServiceId)
		info, ok := s.ServiceInfo()
		assert.Equal(t, true, ok)
		assert.Equal(t, e.serviceType, info.ServiceType)
		assert.Equal(t, "", info.ProviderName)
		assert.Equal(t, name, info.ServiceName)
	}
}

func TestSectionFilter(t *testing.T) {
	section := withCrc(mustHex(testSdtHex))

	// 分成三段写入
	sf := newSectionFilter(PidSdt, tableKindSdt, true)
	out, err := sf.write(section[:50], true)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, out == nil)
	out, err = sf.write(section[50:100], false)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, out == nil)
	out, err = sf.write(append(append([]byte(nil), section[100:]...), 0xff, 0xff), false)
	assert.Equal(t, nil, err)
	assert.Equal(t, section, out)

	// 完成后，直到下一个起始之前的数据被忽略
	out, err = sf.write([]byte{1, 2, 3}, false)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, out == nil)

	// crc错误
	bad := append([]byte(nil), section...)
	bad[20] ^= 0xff
	_, err = sf.write(bad, true)
	assert.Equal(t, true, errors.Is(err, base.ErrSectionCrc))

	// 不校验crc
	sf = newSectionFilter(PidSdt, tableKindSdt, false)
	out, err = sf.write(bad, true)
	assert.Equal(t, nil, err)
	assert.Equal(t, bad, out)

	assert.Equal(t, true, sf.checkVersion(1))
	assert.Equal(t, false, sf.checkVersion(1))
	assert.Equal(t, true, sf.checkVersion(2))
}
