// SPDX-License-Identifier: Apache-2.0

package nabu

import (
	"context"
	"fmt"
	"io"
	"time"
)

// requestState is the per-in-flight-file-request accumulator threaded
// through stages 0..8 of command 0x84 (spec §3, §4.6).
type requestState struct {
	segmentNumber uint32
	packetNumber  uint8
}

// Dispatcher is the per-byte-arrival protocol engine (C6). It owns the
// active command, the recovery memory, the current stage, and the single
// loaded-packet buffer live at any moment (invariant 1, spec §3).
type Dispatcher struct {
	active *byte
	last   *byte
	stage  uint8
	req    requestState

	loadedPacket []byte

	Writer io.Writer
	Logger io.Writer
	Store  *Store
	Sink   Sink

	inRecovery bool
}

// NewDispatcher constructs a Dispatcher ready to drive writer with packets
// resolved through store. logger receives human-readable diagnostics; if
// nil, diagnostics are discarded.
func NewDispatcher(writer io.Writer, store *Store, logger io.Writer, sink Sink) *Dispatcher {
	return &Dispatcher{
		Writer: writer,
		Store:  store,
		Logger: logger,
		Sink:   sink,
	}
}

func (d *Dispatcher) publish(kind EventKind, command *byte, segment *uint32, packet *uint8, detail string) {
	if d.Sink == nil {
		return
	}
	d.Sink.Publish(Event{
		Kind:    kind,
		Time:    time.Now(),
		Command: command,
		Segment: segment,
		Packet:  packet,
		Detail:  detail,
	})
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Logger == nil {
		return
	}
	fmt.Fprintf(d.Logger, format+"\r\n", args...)
}

func (d *Dispatcher) emit(bytes ...byte) error {
	_, err := d.Writer.Write(bytes)
	return err
}

// reset clears active/stage/loaded-packet and records the command that
// was active going into the reset as the recovery target for a future
// unknown byte (spec §4.5 "Reset rule", §9 "Unknown-command recovery").
func (d *Dispatcher) reset() {
	d.last = d.active
	d.active = nil
	d.stage = 0
	d.req = requestState{}
	d.loadedPacket = nil
	d.publish(EventReset, nil, nil, nil, "")
}

// Step advances the dispatcher by one inbound byte, writing any
// protocol-specified outbound bytes synchronously. A file-request stage
// that resolves to an HTTP fetch blocks here exactly as the serial link's
// single-threaded loop intends (spec §5).
func (d *Dispatcher) Step(ctx context.Context, b byte) error {
	if d.active == nil {
		active := b
		d.active = &active
		d.stage = 0
		d.publish(EventCommandStarted, &active, nil, nil, "")
		return d.dispatchSelector(ctx, b)
	}
	return d.dispatchActive(ctx, b)
}

func (d *Dispatcher) dispatchSelector(ctx context.Context, b byte) error {
	switch b {
	case CmdChannelSet, CmdFileRequest, CmdResetStatus, CmdConfigChannel,
		CmdStatusRequest, CmdUnknown1E, CmdAck05, CmdSilentReset:
		return d.dispatchActive(ctx, b)
	default:
		return d.unknownCommand(ctx, b)
	}
}

func (d *Dispatcher) unknownCommand(ctx context.Context, b byte) error {
	d.logf("Unknown command: 0x%02X", b)
	d.publish(EventUnknownCommand, &b, nil, nil, fmt.Sprintf("0x%02X", b))

	recoveryTarget := d.last
	d.reset()

	if d.inRecovery || recoveryTarget == nil {
		return nil
	}
	d.inRecovery = true
	defer func() { d.inRecovery = false }()
	return d.Step(ctx, *recoveryTarget)
}

// dispatchActive consumes b for the already-active command at the
// current stage.
func (d *Dispatcher) dispatchActive(ctx context.Context, b byte) error {
	switch *d.active {
	case CmdChannelSet:
		return d.handleChannelSet(b)
	case CmdFileRequest:
		return d.handleFileRequest(ctx, b)
	case CmdResetStatus:
		return d.handleResetStatus()
	case CmdConfigChannel:
		return d.handleConfigChannel(b)
	case CmdStatusRequest:
		return d.handleStatusRequest()
	case CmdUnknown1E:
		return d.handleAck10E1()
	case CmdAck05:
		return d.handleAckE4()
	case CmdSilentReset:
		d.reset()
		return nil
	default:
		// Unreachable: dispatchSelector only activates known commands.
		d.reset()
		return nil
	}
}

// handleChannelSet implements 0x85 (spec §4.5).
func (d *Dispatcher) handleChannelSet(b byte) error {
	switch d.stage {
	case 0:
		if err := d.emit(AckCommand, AckReady); err != nil {
			return err
		}
		d.stage = 1
	case 1:
		d.stage = 2
	case 2:
		if err := d.emit(AckParameter); err != nil {
			return err
		}
		d.reset()
	}
	return nil
}

// handleResetStatus implements 0x83 outside a file request (spec §4.5).
func (d *Dispatcher) handleResetStatus() error {
	if err := d.emit(AckCommand, AckReady, AckParameter); err != nil {
		return err
	}
	d.reset()
	return nil
}

// handleConfigChannel implements 0x82 (spec §4.5).
func (d *Dispatcher) handleConfigChannel(b byte) error {
	switch d.stage {
	case 0:
		d.logf("Configure channel")
		if err := d.emit(AckCommand, AckReady); err != nil {
			return err
		}
		d.stage = 1
	case 1:
		if err := d.emit(AckChannelPreamble, AckCommand, AckEndTransfer); err != nil {
			return err
		}
		d.reset()
	}
	return nil
}

// handleStatusRequest implements 0x81 (spec §4.5).
func (d *Dispatcher) handleStatusRequest() error {
	switch d.stage {
	case 0:
		if err := d.emit(AckCommand, AckReady); err != nil {
			return err
		}
		d.stage = 1
	case 1:
		d.stage = 2
	case 2:
		if err := d.emit(AckParameter); err != nil {
			return err
		}
		d.reset()
	}
	return nil
}

// handleAck10E1 implements 0x1E (spec §4.5).
func (d *Dispatcher) handleAck10E1() error {
	if err := d.emit(AckCommand, AckEndTransfer); err != nil {
		return err
	}
	d.reset()
	return nil
}

// handleAckE4 implements 0x05 (spec §4.5).
func (d *Dispatcher) handleAckE4() error {
	if err := d.emit(AckParameter); err != nil {
		return err
	}
	d.reset()
	return nil
}
