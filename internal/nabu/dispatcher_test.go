// SPDX-License-Identifier: Apache-2.0

package nabu

import (
	"bytes"
	"context"
	"testing"
)

func feed(t *testing.T, d *Dispatcher, data []byte) {
	t.Helper()
	for _, b := range data {
		if err := d.Step(context.Background(), b); err != nil {
			t.Fatalf("Step(0x%02X): %v", b, err)
		}
	}
}

// S1: a plain channel-set command emits ack, parameter stage, end ack.
func TestDispatcher_ChannelSet(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(&out, nil, nil, nil)
	feed(t, d, []byte{0x85, 0x07, 0x00})

	want := []byte{0x10, 0x06, 0xE4}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("output = % X, want % X", out.Bytes(), want)
	}
}

// S2: an unknown byte with no prior command is a silent no-op; the
// channel-set sequence that follows behaves exactly as in isolation.
func TestDispatcher_UnknownCommandBeforeAnyHistoryIsNoOp(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(&out, nil, nil, nil)
	feed(t, d, []byte{0x77, 0x85, 0x01, 0x00})

	want := []byte{0x10, 0x06, 0xE4}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("output = % X, want % X", out.Bytes(), want)
	}
}

// S3: a file request for the time-of-day segment serves a fresh
// synthetic 29-byte segment through the have-packet handshake.
func TestDispatcher_FileRequest_TimeSegment(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(&out, nil, nil, nil)
	feed(t, d, []byte{0x84, 0x01, 0xFF, 0xFF, 0x7F, 0x10, 0x06})

	got := out.Bytes()
	if len(got) < 4 {
		t.Fatalf("output too short: % X", got)
	}
	if !bytes.Equal(got[:4], []byte{0x10, 0x06, 0xE4, 0x91}) {
		t.Errorf("handshake prefix = % X, want 10 06 E4 91", got[:4])
	}
	if !bytes.Equal(got[len(got)-2:], []byte{0x10, 0xE1}) {
		t.Errorf("handshake suffix = % X, want 10 E1", got[len(got)-2:])
	}

	segment := Unescape(got[4 : len(got)-2])
	if len(segment) != TimeSegmentSize {
		t.Errorf("unescaped time segment length = %d, want %d", len(segment), TimeSegmentSize)
	}
}

// S4: a file request for a segment present nowhere reports "no packet"
// and then absorbs exactly the client's two-byte ack before resetting.
func TestDispatcher_FileRequest_NotFound(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, "", nil)

	var out bytes.Buffer
	d := NewDispatcher(&out, store, nil, nil)
	feed(t, d, []byte{0x84, 0x00, 0xAA, 0xAA, 0xAA, 0x10, 0x06})

	want := []byte{0x10, 0x06, 0xE4, 0x90}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("output = % X, want % X", out.Bytes(), want)
	}

	// A further byte must be treated as a fresh command, proving the
	// absorb-then-reset sequence completed.
	feed(t, d, []byte{0x81, 0x00, 0x00})
	want = append(want, 0x10, 0x06, 0xE4)
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("output after reset = % X, want % X", out.Bytes(), want)
	}
}

// Unknown-command recovery replays the previously active command byte
// exactly once.
func TestDispatcher_UnknownCommandRecovery_ReplaysLast(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(&out, nil, nil, nil)

	// Complete one channel-set sequence so `last` becomes 0x85.
	feed(t, d, []byte{0x85, 0x07, 0x00})
	out.Reset()

	// An unknown byte now replays 0x85, re-entering stage 0 and emitting
	// its first-stage ack as if 0x85 had arrived again.
	feed(t, d, []byte{0x99})
	want := []byte{0x10, 0x06}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("recovery output = % X, want % X", out.Bytes(), want)
	}
}

// A recovery replay that is itself unrecognized does not cascade.
func TestDispatcher_UnknownCommandRecovery_DoesNotCascade(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(&out, nil, nil, nil)

	d.last = nil // no prior history: the first unknown byte can still set `last` via reset
	feed(t, d, []byte{0x77, 0x78})

	if out.Len() != 0 {
		t.Errorf("expected no output from two alternating unknown bytes, got % X", out.Bytes())
	}
}

func TestDispatcher_SilentReset(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(&out, nil, nil, nil)

	feed(t, d, []byte{0x0F}) // silent reset as a fresh command, no ack emitted
	if out.Len() != 0 {
		t.Fatalf("expected no output from a silent reset, got % X", out.Bytes())
	}
	if d.active != nil {
		t.Error("expected dispatcher to be idle after silent reset")
	}
}
