// SPDX-License-Identifier: Apache-2.0

package nabu

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeRawContainer(t *testing.T, dir string, segment uint32, payload []byte) {
	t.Helper()
	path := filepath.Join(dir, rawName(segment))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write raw container: %v", err)
	}
}

func writeFramedContainer(t *testing.T, dir string, segment uint32, packets [][]byte) {
	t.Helper()
	var buf []byte
	for _, p := range packets {
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(p)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, p...)
	}
	path := filepath.Join(dir, framedName(segment))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write framed container: %v", err)
	}
}

func rawName(segment uint32) string    { return sixHex(segment) + ExtRaw }
func framedName(segment uint32) string { return sixHex(segment) + ExtFramed }
func sixHex(v uint32) string {
	const hexDigits = "0123456789ABCDEF"
	b := [6]byte{}
	for i := 5; i >= 0; i-- {
		b[i] = hexDigits[v&0xF]
		v >>= 4
	}
	return string(b[:])
}

func TestStoreLookup_PrefersFramedOverRaw(t *testing.T) {
	dir := t.TempDir()
	writeFramedContainer(t, dir, 0x000001, [][]byte{[]byte("framed-packet-0")})
	writeRawContainer(t, dir, 0x000001, []byte("raw bytes that would differ"))

	store := NewStore(dir, "", nil)
	data, found, err := store.Lookup(context.Background(), 0x000001, 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected a hit")
	}
	if string(data) != "framed-packet-0" {
		t.Errorf("Lookup returned %q, want the framed packet", data)
	}
}

func TestStoreLookup_FallsBackToRaw(t *testing.T) {
	dir := t.TempDir()
	payload := make([]byte, 50)
	for i := range payload {
		payload[i] = byte(i)
	}
	writeRawContainer(t, dir, 0x000002, payload)

	store := NewStore(dir, "", nil)
	data, found, err := store.Lookup(context.Background(), 0x000002, 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected a hit from the raw container")
	}
	if len(data) != HeaderSize+len(payload)+CRCSize {
		t.Errorf("extracted raw packet length = %d, want %d", len(data), HeaderSize+len(payload)+CRCSize)
	}
}

func TestStoreLookup_MissWithoutFetcher(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, "", nil)
	_, found, err := store.Lookup(context.Background(), 0x000003, 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found {
		t.Error("expected a miss with no local files and no fetcher")
	}
}

type fakeFetcher struct {
	serve map[string][]byte
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, destPath string) (bool, error) {
	f.calls = append(f.calls, url)
	data, ok := f.serve[url]
	if !ok {
		return false, nil
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func TestStoreLookup_FetchesOverHTTPOnMiss(t *testing.T) {
	dir := t.TempDir()
	framedURL := "example.test/cycle/000004.pak"
	fetcher := &fakeFetcher{serve: map[string][]byte{
		framedURL: encodeFramedRecord([]byte("fetched-packet")),
	}}

	store := NewStore(dir, "example.test/cycle", fetcher)
	data, found, err := store.Lookup(context.Background(), 0x000004, 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected a hit after HTTP fetch")
	}
	if string(data) != "fetched-packet" {
		t.Errorf("Lookup = %q, want %q", data, "fetched-packet")
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != framedURL {
		t.Errorf("unexpected fetch calls: %v", fetcher.calls)
	}
}

func encodeFramedRecord(packet []byte) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(packet)))
	return append(lenBuf[:], packet...)
}

func TestStoreLookup_HTTPMissOnBothExtensionsIsPlainMiss(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{serve: map[string][]byte{}}
	store := NewStore(dir, "example.test/cycle", fetcher)

	_, found, err := store.Lookup(context.Background(), 0x000005, 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found {
		t.Error("expected a miss when HTTP has neither extension")
	}
	if len(fetcher.calls) != 2 {
		t.Errorf("expected both extensions attempted, got calls: %v", fetcher.calls)
	}
}
