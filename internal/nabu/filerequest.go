// SPDX-License-Identifier: Apache-2.0

package nabu

import "context"

// handleFileRequest implements the 0x84 stage table (spec §4.6). It is
// the only command that spans the packet store and, on cache miss, a
// blocking HTTP fetch.
func (d *Dispatcher) handleFileRequest(ctx context.Context, b byte) error {
	switch d.stage {
	case 0:
		d.logf("File Request: ")
		if err := d.emit(AckCommand, AckReady); err != nil {
			return err
		}
		d.stage = 1

	case 1:
		d.req.packetNumber = b
		d.stage = 2

	case 2:
		d.req.segmentNumber = uint32(b)
		d.stage = 3

	case 3:
		d.req.segmentNumber |= uint32(b) << 8
		d.stage = 4

	case 4:
		d.req.segmentNumber |= uint32(b) << 16
		if err := d.emit(AckParameter); err != nil {
			return err
		}
		d.loadedPacket = nil
		return d.resolveFileRequest(ctx)

	case 5:
		if b != AckCommand {
			d.reset()
			return nil
		}
		d.stage = 6

	case 6:
		// Terminal absorb stage of the "packet not found" path (S4):
		// the byte is consumed unconditionally and the request resets.
		d.reset()

	case 7:
		if b != AckCommand {
			if err := d.emit(AckCommand, AckReady, AckParameter); err != nil {
				return err
			}
			d.reset()
			return nil
		}
		d.stage = 8

	case 8:
		if b != AckReady {
			d.reset()
			return nil
		}
		if _, err := d.Writer.Write(Escape(d.loadedPacket)); err != nil {
			return err
		}
		if err := d.emit(AckCommand, AckEndTransfer); err != nil {
			return err
		}
		d.reset()
	}
	return nil
}

// resolveFileRequest runs stage 4's decision tree: time segment, the
// NABU reset pattern, or a packet-store lookup (which may block on HTTP).
func (d *Dispatcher) resolveFileRequest(ctx context.Context) error {
	segment := d.req.segmentNumber
	packetNumber := d.req.packetNumber

	switch {
	case segment == SegmentTimeOfDay:
		d.loadedPacket = BuildTimeSegment()
		d.publish(EventTimeSegmentServed, nil, &segment, &packetNumber, "")
		if err := d.emit(AckHavePacket); err != nil {
			return err
		}
		d.stage = 7
		return nil

	case segment == ResetPatternValue || uint32(packetNumber) == ResetPatternValue:
		// Open question preserved from the original source: the
		// segment-id comparison holds only for segment 0x000083
		// (bytes 83 00 00), but the check is kept as-is rather than
		// narrowed (spec §9).
		d.publish(EventNabuResetPattern, nil, &segment, &packetNumber, "")
		d.reset()
		return nil

	default:
		data, found, err := d.Store.Lookup(ctx, segment, packetNumber)
		if err != nil {
			d.logf("packet store error: %v", err)
			d.reset()
			return nil
		}
		if found {
			d.loadedPacket = data
			d.publish(EventPacketServed, nil, &segment, &packetNumber, "")
			if err := d.emit(AckHavePacket); err != nil {
				return err
			}
			d.stage = 7
			return nil
		}
		d.publish(EventPacketMissed, nil, &segment, &packetNumber, "")
		if err := d.emit(AckNoPacket); err != nil {
			return err
		}
		d.stage = 5
		return nil
	}
}
