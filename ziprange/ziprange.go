// Package ziprange extracts single members from remote ZIP archives using
// HTTP byte-range requests.
//
// A daily archive weighs ~80 MB; a request touching one chain needs three
// small CSV members out of it. Streaming ZIP libraries want the whole file,
// so this package speaks the ZIP container format directly: fetch the tail,
// locate the End-of-Central-Directory record, walk the central directory,
// then fetch exactly the compressed bytes of the member it needs.
//
// Zip64 is not supported. Should the upstream ever cross 4 GiB or 65535
// entries, Directory fails with ErrEOCDNotFound rather than misparsing.
package ziprange

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
)

const (
	eocdSignature  = 0x06054b50
	entrySignature = 0x02014b50

	// eocdWindow is the maximum EOCD footprint: 22 fixed bytes plus a
	// comment of at most 65535 bytes.
	eocdWindow = 22 + 65535

	methodStored  = 0
	methodDeflate = 8
)

// Sentinel failures of the archive protocol.
var (
	ErrEOCDNotFound           = errors.New("ziprange: end of central directory not found")
	ErrUnsupportedCompression = errors.New("ziprange: unsupported compression method")
	ErrTruncated              = errors.New("ziprange: truncated archive data")
)

// RangeError reports a range request rejected by the remote server.
type RangeError struct {
	Status int
	Start  int64
	End    int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("ziprange: range %d-%d refused with status %d", e.Start, e.End, e.Status)
}

// Entry is one member of the central directory.
type Entry struct {
	Name              string
	CompressionMethod uint16
	CompressedSize    int64
	UncompressedSize  int64
	LocalHeaderOffset int64
}

// Reader treats a remote archive URL plus its total length as a
// random-access handle. It holds no per-archive state; directory caching is
// the caller's concern.
type Reader struct {
	client    *http.Client
	userAgent string
}

// New creates a Reader. A nil client falls back to http.DefaultClient.
func New(client *http.Client, userAgent string) *Reader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Reader{client: client, userAgent: userAgent}
}

// Directory fetches and parses the central directory of the archive at url
// with the given total size. Two range requests: the EOCD tail window and
// the directory block itself.
func (r *Reader) Directory(ctx context.Context, url string, size int64) ([]Entry, error) {
	window := int64(eocdWindow)
	if size < window {
		window = size
	}
	tail, err := r.fetchRange(ctx, url, size-window, size-1)
	if err != nil {
		return nil, err
	}

	cdOffset, cdSize, ok := findEOCD(tail)
	if !ok {
		return nil, ErrEOCDNotFound
	}

	dir, err := r.fetchRange(ctx, url, cdOffset, cdOffset+cdSize-1)
	if err != nil {
		return nil, err
	}
	return parseDirectory(dir), nil
}

// Extract fetches and decompresses one member. Two range requests: the
// 30-byte local header (to resolve the data offset) and the payload.
func (r *Reader) Extract(ctx context.Context, url string, e Entry) ([]byte, error) {
	switch e.CompressionMethod {
	case methodStored, methodDeflate:
	default:
		return nil, fmt.Errorf("%w: method %d for %q", ErrUnsupportedCompression, e.CompressionMethod, e.Name)
	}

	header, err := r.fetchRange(ctx, url, e.LocalHeaderOffset, e.LocalHeaderOffset+29)
	if err != nil {
		return nil, err
	}
	if len(header) < 30 {
		return nil, fmt.Errorf("%w: local header of %q", ErrTruncated, e.Name)
	}
	nameLen := int64(binary.LittleEndian.Uint16(header[26:28]))
	extraLen := int64(binary.LittleEndian.Uint16(header[28:30]))
	dataStart := e.LocalHeaderOffset + 30 + nameLen + extraLen

	if e.CompressedSize == 0 {
		return nil, nil
	}
	data, err := r.fetchRange(ctx, url, dataStart, dataStart+e.CompressedSize-1)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) < e.CompressedSize {
		return nil, fmt.Errorf("%w: payload of %q (%d of %d bytes)", ErrTruncated, e.Name, len(data), e.CompressedSize)
	}

	if e.CompressionMethod == methodStored {
		return data, nil
	}

	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("ziprange: inflate %q: %w", e.Name, err)
	}
	return out, nil
}

// ExtractText extracts a member and decodes it as UTF-8 text. Invalid byte
// sequences are replaced rather than rejected — the upstream CSVs are UTF-8
// by contract but the odd stray byte must not sink a whole chain.
func (r *Reader) ExtractText(ctx context.Context, url string, e Entry) (string, error) {
	b, err := r.Extract(ctx, url, e)
	if err != nil {
		return "", err
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	return string(bytes.ToValidUTF8(b, []byte("�"))), nil
}

// fetchRange issues one Range GET for [start, end] inclusive. A 206 is the
// expected success; a 200 means the server ignored the header, so the body
// is read up to the window length and treated as the range.
func (r *Reader) fetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ziprange: new request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ziprange: range get: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent, http.StatusOK:
	default:
		return nil, &RangeError{Status: resp.StatusCode, Start: start, End: end}
	}

	want := end - start + 1
	body, err := io.ReadAll(io.LimitReader(resp.Body, want))
	if err != nil {
		return nil, fmt.Errorf("ziprange: read range body: %w", err)
	}
	return body, nil
}

// findEOCD scans buf backward for the EOCD signature and returns the central
// directory offset and size. A record carrying the Zip64 sentinel values
// (0xFFFF entries, or 0xFFFFFFFF directory size or offset) reports not found.
func findEOCD(buf []byte) (offset, size int64, ok bool) {
	for i := len(buf) - 22; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:i+4]) != eocdSignature {
			continue
		}
		entries := binary.LittleEndian.Uint16(buf[i+10 : i+12])
		cdSize := binary.LittleEndian.Uint32(buf[i+12 : i+16])
		cdOffset := binary.LittleEndian.Uint32(buf[i+16 : i+20])
		if entries == 0xFFFF || cdSize == 0xFFFFFFFF || cdOffset == 0xFFFFFFFF {
			return 0, 0, false
		}
		return int64(cdOffset), int64(cdSize), true
	}
	return 0, 0, false
}

// parseDirectory walks the fixed-layout central directory headers. The walk
// stops at the first signature mismatch, which also ends a well-formed
// directory (the EOCD follows it).
func parseDirectory(dir []byte) []Entry {
	var entries []Entry
	pos := 0
	for pos+46 <= len(dir) {
		if binary.LittleEndian.Uint32(dir[pos:pos+4]) != entrySignature {
			break
		}
		method := binary.LittleEndian.Uint16(dir[pos+10 : pos+12])
		compSize := int64(binary.LittleEndian.Uint32(dir[pos+20 : pos+24]))
		uncompSize := int64(binary.LittleEndian.Uint32(dir[pos+24 : pos+28]))
		nameLen := int(binary.LittleEndian.Uint16(dir[pos+28 : pos+30]))
		extraLen := int(binary.LittleEndian.Uint16(dir[pos+30 : pos+32]))
		commentLen := int(binary.LittleEndian.Uint16(dir[pos+32 : pos+34]))
		localOffset := int64(binary.LittleEndian.Uint32(dir[pos+42 : pos+46]))

		if pos+46+nameLen > len(dir) {
			break
		}
		name := string(dir[pos+46 : pos+46+nameLen])

		entries = append(entries, Entry{
			Name:              name,
			CompressionMethod: method,
			CompressedSize:    compSize,
			UncompressedSize:  uncompSize,
			LocalHeaderOffset: localOffset,
		})
		pos += 46 + nameLen + extraLen + commentLen
	}
	return entries
}
