// SPDX-License-Identifier: Apache-2.0

package nabu

import (
	"io"
	"os"
)

// rawSource extracts a packet from a Raw (.nab) container: an opaque
// payload partitioned implicitly into PacketDataSize-byte strides by
// position, requiring a synthesized header and CRC per slice (spec §4.3).
type rawSource struct{}

func (rawSource) Extract(path string, segment uint32, packetNumber uint8) ([]byte, bool, error) {
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

	offset := int64(packetNumber) * PacketDataSize
	if offset >= size {
		return nil, false, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, false, err
	}

	buf := make([]byte, HeaderSize+PacketDataSize+CRCSize)
	n, err := io.ReadFull(f, buf[HeaderSize:HeaderSize+PacketDataSize])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, false, err
	}

	isLast := offset+int64(n) == size
	buf = buf[:HeaderSize+n+CRCSize]
	PopulateHeader(buf, segment, packetNumber, uint32(offset), isLast, n)
	return buf, true, nil
}
