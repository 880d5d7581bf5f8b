// SPDX-License-Identifier: Apache-2.0

package nabu

import (
	"bytes"
	"testing"
)

func TestEscape_NoEscapeBytes(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03}
	out := Escape(in)
	if !bytes.Equal(out, in) {
		t.Errorf("Escape(%v) = %v, want unchanged", in, out)
	}
}

func TestEscape_DoublesEscapeByte(t *testing.T) {
	in := []byte{0x01, 0x10, 0x02, 0x10, 0x10}
	want := []byte{0x01, 0x10, 0x10, 0x02, 0x10, 0x10, 0x10, 0x10}
	got := Escape(in)
	if !bytes.Equal(got, want) {
		t.Errorf("Escape(%v) = %v, want %v", in, got, want)
	}
}

func TestUnescape_ReversesEscape(t *testing.T) {
	tests := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{0x10, 0x10, 0x10, 0x10},
		{0x01, 0x10, 0x02},
		{0xFF, 0x10, 0x10, 0x10, 0x10, 0xAA},
	}

	for _, in := range tests {
		escaped := Escape(in)
		got := Unescape(escaped)
		if !bytes.Equal(got, in) {
			t.Errorf("Unescape(Escape(%v)) = %v, want %v", in, got, in)
		}
	}
}

func TestEscape_DoesNotMutateInput(t *testing.T) {
	in := []byte{0x10, 0x10}
	orig := append([]byte{}, in...)
	_ = Escape(in)
	if !bytes.Equal(in, orig) {
		t.Errorf("Escape mutated its input: %v != %v", in, orig)
	}
}
