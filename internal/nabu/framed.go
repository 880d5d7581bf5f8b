// SPDX-License-Identifier: Apache-2.0

package nabu

import (
	"encoding/binary"
	"io"
	"os"
)

// framedSource extracts a packet from a Framed (.pak) container: a
// concatenation of {u16_le length, length bytes of already-framed packet}
// records (spec §4.3).
type framedSource struct{}

func (framedSource) Extract(path string, _ uint32, packetNumber uint8) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	size := info.Size()

	var pos int64
	var lenBuf [2]byte
	for current := uint8(0); pos+2 < size; current++ {
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, false, nil
			}
			return nil, false, err
		}
		pos += 2
		length := int64(binary.LittleEndian.Uint16(lenBuf[:]))

		if current == packetNumber {
			buf := make([]byte, length)
			if _, err := io.ReadFull(f, buf); err != nil {
				return nil, false, err
			}
			return buf, true, nil
		}

		if _, err := f.Seek(length, io.SeekCurrent); err != nil {
			return nil, false, err
		}
		pos += length
	}

	return nil, false, nil
}
