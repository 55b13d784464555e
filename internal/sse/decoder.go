// Package sse decodes text/event-stream bodies incrementally. Only the data
// field is surfaced; other fields (event, id, retry) and comments are dropped.
package sse

import (
	"bytes"
	"io"
	"strings"
)

const dataPrefix = "data: "

var recordDelimiter = []byte("\n\n")

// Decoder buffers raw bytes and yields complete records as they become
// available. It can be fed chunks of any size; a record split across chunks is
// held until its terminating blank line arrives.
type Decoder struct {
	buf bytes.Buffer
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write appends a chunk and returns the data payloads of every record the
// chunk completed, in wire order. Payloads are trimmed; empty ones are dropped.
func (d *Decoder) Write(chunk []byte) []string {
	d.buf.Write(chunk)

	var out []string
	for {
		pending := d.buf.Bytes()
		idx := bytes.Index(pending, recordDelimiter)
		if idx < 0 {
			break
		}
		record := string(pending[:idx])
		d.buf.Next(idx + len(recordDelimiter))
		out = append(out, DataLines(record)...)
	}
	return out
}

// Buffered reports how many bytes are waiting for a record terminator.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Reset discards any partial record.
func (d *Decoder) Reset() {
	d.buf.Reset()
}

// DataLines extracts the payload of every "data: " line in a single record.
func DataLines(record string) []string {
	var out []string
	for _, line := range strings.Split(record, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		raw := strings.TrimSpace(line[len(dataPrefix):])
		if raw == "" {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// Reader pulls chunks from an io.Reader and decodes them as they arrive.
type Reader struct {
	src   io.Reader
	dec   *Decoder
	chunk []byte
	err   error
}

func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, dec: NewDecoder(), chunk: make([]byte, 4096)}
}

// Chunk performs exactly one read from the source and returns the payloads
// completed by it. At end of stream it returns io.EOF; a trailing record with
// no terminating blank line is discarded.
func (r *Reader) Chunk() ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	n, err := r.src.Read(r.chunk)
	var out []string
	if n > 0 {
		out = r.dec.Write(r.chunk[:n])
	}
	if err != nil {
		r.err = err
		if len(out) > 0 {
			return out, nil
		}
		return nil, err
	}
	return out, nil
}
