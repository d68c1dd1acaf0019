package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

const (
	HeaderLen = 8
	prefixLen = 4

	// DefaultMaxSize allows a full-size DNS message behind the header.
	DefaultMaxSize = HeaderLen + 65535
)

var (
	ErrFrameTooLarge = errors.New("frame: declared length exceeds limit")
	ErrShortHeader   = errors.New("frame: payload shorter than header")
)

// Header is the 8 byte ASCII tag "HH0000SS": hour of day and sequence number.
type Header struct {
	Hour int
	Seq  int
}

func NewHeader(now time.Time, seq int) Header {
	return Header{Hour: now.Hour(), Seq: seq}
}

func (h Header) String() string {
	return fmt.Sprintf("%02d0000%02d", h.Hour%100, h.Seq%100)
}

func (h Header) AppendTo(b []byte) []byte {
	return append(b, h.String()...)
}

func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	s := string(b[:HeaderLen])
	if s[2:6] != "0000" {
		return Header{}, fmt.Errorf("frame: unexpected header %q", s)
	}
	hour, err := strconv.Atoi(s[:2])
	if err != nil {
		return Header{}, fmt.Errorf("frame: invalid hour in header %q: %w", s, err)
	}
	seq, err := strconv.Atoi(s[6:])
	if err != nil {
		return Header{}, fmt.Errorf("frame: invalid sequence in header %q: %w", s, err)
	}
	return Header{Hour: hour, Seq: seq}, nil
}

// Request is a length-prefixed frame: header followed by a DNS query.
type Request struct {
	Header  Header
	Payload []byte
}

// Encode returns the wire form: big-endian uint32 length of header+payload, header, payload.
func (r Request) Encode() []byte {
	n := HeaderLen + len(r.Payload)
	b := make([]byte, 0, prefixLen+n)
	b = binary.BigEndian.AppendUint32(b, uint32(n))
	b = r.Header.AppendTo(b)
	return append(b, r.Payload...)
}

func WriteRequest(w io.Writer, req Request) error {
	if _, err := w.Write(req.Encode()); err != nil {
		return fmt.Errorf("frame: failed to write request: %w", err)
	}
	return nil
}

// ReadFrame reads the length prefix and then exactly that many bytes,
// looping over partial reads. A stream that ends early yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if maxSize > 0 && n > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxSize)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}

// SplitFrame separates a frame body into header and payload. A body shorter
// than the header yields ErrShortHeader; a malformed header is returned
// alongside the payload so callers can ignore it.
func SplitFrame(data []byte) (Header, []byte, error) {
	if len(data) < HeaderLen {
		return Header{}, nil, ErrShortHeader
	}
	h, err := ParseHeader(data)
	return h, data[HeaderLen:], err
}
