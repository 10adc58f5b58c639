package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxRecordSize bounds a single JSON line. Full VirusTotal reports run to a few hundred KB.
const MaxRecordSize = 64 * 1024 * 1024

// Record is one non-blank input line
type Record struct {
	Line int
	Data []byte
	// Oversized marks a line longer than the reader's bound. Data then holds
	// only its first bytes and the rest of the line has been discarded.
	Oversized bool
}

// RecordReader yields JSON lines from a stream, skipping blank lines
type RecordReader struct {
	reader  *bufio.Reader
	maxSize int
	buf     []byte
	line    int
	done    bool
	err     error
}

// NewRecordReader creates a RecordReader over r bounded by MaxRecordSize
func NewRecordReader(r io.Reader) *RecordReader {
	return NewRecordReaderSize(r, MaxRecordSize)
}

// NewRecordReaderSize creates a RecordReader whose lines may be at most maxSize bytes
func NewRecordReaderSize(r io.Reader, maxSize int) *RecordReader {
	if maxSize <= 0 {
		maxSize = MaxRecordSize
	}
	return &RecordReader{
		reader:  bufio.NewReaderSize(r, 64*1024),
		maxSize: maxSize,
	}
}

// Next returns the next record. The returned bytes are only valid until the following call.
func (rr *RecordReader) Next() (Record, bool) {
	for !rr.done {
		data, oversized, err := rr.readLine()
		if err != nil {
			rr.done = true
			if !errors.Is(err, io.EOF) {
				rr.err = fmt.Errorf("error reading input at line %d: %w", rr.line+1, err)
			}
			return Record{}, false
		}
		rr.line++
		if oversized {
			return Record{Line: rr.line, Data: data, Oversized: true}, true
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		return Record{Line: rr.line, Data: data}, true
	}
	return Record{}, false
}

// readLine returns one line without its terminator. Memory stays bounded by
// maxSize: past the bound the line is read through to its newline and dropped.
func (rr *RecordReader) readLine() ([]byte, bool, error) {
	rr.buf = rr.buf[:0]
	limit := rr.maxSize + 2 // room for "\r\n"
	oversized := false

	for {
		chunk, err := rr.reader.ReadSlice('\n')
		if !oversized {
			if room := limit - len(rr.buf); len(chunk) > room {
				rr.buf = append(rr.buf, chunk[:room]...)
				oversized = true
			} else {
				rr.buf = append(rr.buf, chunk...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(rr.buf) == 0 {
				return nil, false, io.EOF
			}
			break
		}
		if err != nil {
			return nil, false, err
		}
		break
	}

	data := bytes.TrimSuffix(rr.buf, []byte("\n"))
	data = bytes.TrimSuffix(data, []byte("\r"))
	if oversized || len(data) > rr.maxSize {
		return data[:min(len(data), rr.maxSize)], true, nil
	}
	return data, false, nil
}

// Err returns the first read error, if any
func (rr *RecordReader) Err() error {
	return rr.err
}
