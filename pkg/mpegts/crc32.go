// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/tsdemux
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// CRC-32/MPEG-2
//
// 多项式0x04C11DB7，初始值0xFFFFFFFF，高位在前，不反转，结果不异或
// 对包含crc字段在内的整个section计算，结果为0则校验通过
//
// 注意，标准库hash/crc32只支持反转的多项式，不能用于mpegts
var crc32MpegTable [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = (c << 1) ^ 0x04C11DB7
			} else {
				c <<= 1
			}
		}
		crc32MpegTable[i] = c
	}
}

// CalcCrc32 在`crc`的基础上继续计算`buffer`
func CalcCrc32(crc uint32, buffer []byte) uint32 {
	for _, b := range buffer {
		crc = (crc << 8) ^ crc32MpegTable[byte(crc>>24)^b]
	}
	return crc
}

// Crc32Mpeg 计算完整内存块的crc
func Crc32Mpeg(buffer []byte) uint32 {
	return CalcCrc32(0xFFFFFFFF, buffer)
}
