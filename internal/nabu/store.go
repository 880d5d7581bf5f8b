// SPDX-License-Identifier: Apache-2.0

package nabu

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Fetcher downloads a remote cycle object into a local path, reporting
// whether the object existed. A Fetcher never distinguishes "not found"
// from other forms of unavailability beyond that boolean — HttpError is
// equivalent to absence (spec §7).
type Fetcher interface {
	Fetch(ctx context.Context, url string, destPath string) (bool, error)
}

// Source extracts one packet from an already-downloaded container file.
// Framed and Raw containers both satisfy Source, letting Store treat them
// as an ordered list of capabilities to fold over (spec §9).
type Source interface {
	Extract(path string, segment uint32, packetNumber uint8) ([]byte, bool, error)
}

// Store locates a packet across the two on-disk container formats,
// falling back to HTTP on miss (spec §4.3).
type Store struct {
	CycleDir string
	HTTPBase string
	Fetcher  Fetcher

	framed Source
	raw    Source
}

// NewStore constructs a Store. fetcher may be nil, in which case HTTP
// fallback steps are skipped and a miss on disk is a plain "not found".
func NewStore(cycleDir, httpBase string, fetcher Fetcher) *Store {
	return &Store{
		CycleDir: cycleDir,
		HTTPBase: httpBase,
		Fetcher:  fetcher,
		framed:   framedSource{},
		raw:      rawSource{},
	}
}

func (s *Store) framedPath(segment uint32) string {
	return filepath.Join(s.CycleDir, fmt.Sprintf("%06X%s", segment, ExtFramed))
}

func (s *Store) rawPath(segment uint32) string {
	return filepath.Join(s.CycleDir, fmt.Sprintf("%06X%s", segment, ExtRaw))
}

// Lookup performs the four-step search of spec §4.3 and returns the
// packet bytes (already header+payload+CRC for Framed containers) or
// found=false if every step came up empty.
func (s *Store) Lookup(ctx context.Context, segment uint32, packetNumber uint8) (data []byte, found bool, err error) {
	if data, found, err = tryExtract(s.framed, s.framedPath(segment), segment, packetNumber); err != nil || found {
		return data, found, err
	}
	if data, found, err = tryExtract(s.raw, s.rawPath(segment), segment, packetNumber); err != nil || found {
		return data, found, err
	}
	if s.Fetcher == nil {
		return nil, false, nil
	}

	framedURL := fmt.Sprintf("%s/%06X%s", s.HTTPBase, segment, ExtFramed)
	if ok, err := s.Fetcher.Fetch(ctx, framedURL, s.framedPath(segment)); err != nil {
		return nil, false, err
	} else if ok {
		if data, found, err = tryExtract(s.framed, s.framedPath(segment), segment, packetNumber); err != nil || found {
			return data, found, err
		}
	}

	// The remote Raw object is published with extension ".nabu"; the
	// local copy is saved truncated to four characters (".nab") to match
	// the 8.3-compatible name local lookups expect.
	rawURL := fmt.Sprintf("%s/%06X.nabu", s.HTTPBase, segment)
	if ok, err := s.Fetcher.Fetch(ctx, rawURL, s.rawPath(segment)); err != nil {
		return nil, false, err
	} else if ok {
		if data, found, err = tryExtract(s.raw, s.rawPath(segment), segment, packetNumber); err != nil || found {
			return data, found, err
		}
	}

	return nil, false, nil
}

// tryExtract opens path and delegates to src, treating a missing file as
// a clean "not found" rather than an error.
func tryExtract(src Source, path string, segment uint32, packetNumber uint8) ([]byte, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return src.Extract(path, segment, packetNumber)
}
