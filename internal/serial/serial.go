// SPDX-License-Identifier: Apache-2.0

// Package serial wraps go.bug.st/serial with the fixed line
// configuration and non-blocking single-byte polling the NABU link
// protocol assumes (spec §5, §6).
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// pollInterval bounds how long a single ReadByte call may block before
// reporting "nothing available" — the adapter's main loop checks its
// Ctrl+C cancellation between reads, even with no bytes in flight. The
// loop does not read the keyboard, so there is no quit key.
const pollInterval = 20 * time.Millisecond

// Port is a NABU-line-configured serial connection: 115200 bps, 8 data
// bits, no parity, 2 stop bits, no handshaking.
type Port struct {
	port serial.Port
	name string
}

// Open acquires portName at the adapter's fixed line configuration.
func Open(portName string) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}

	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	if err := p.SetReadTimeout(pollInterval); err != nil {
		p.Close()
		return nil, fmt.Errorf("configure read timeout on %s: %w", portName, err)
	}

	return &Port{port: p, name: portName}, nil
}

// ReadByte polls for a single inbound byte without blocking the caller
// beyond pollInterval. ok is false when no byte arrived in that window.
func (p *Port) ReadByte() (b byte, ok bool, err error) {
	var buf [1]byte
	n, err := p.port.Read(buf[:])
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}

// Write blocks until the whole buffer has been handed to the link.
func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// Close releases the underlying OS handle.
func (p *Port) Close() error {
	return p.port.Close()
}

// Name returns the device path or identifier Open was called with.
func (p *Port) Name() string {
	return p.name
}
