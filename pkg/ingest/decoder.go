package ingest

import (
	"bufio"
	"fmt"
	"io"
)

// Decoder maintains a rolling byte buffer over a connection's reader,
// splitting on the 0x00 frame terminator and decoding each chunk as one
// Command. The final command of a stream may arrive without a trailing
// null, terminated by EOF instead; Next reports that chunk before
// returning io.EOF on the following call.
type Decoder struct {
	r    *bufio.Reader
	done bool
}

// NewDecoder wraps r in a Decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next reads up to the next 0x00 terminator (or EOF) and decodes the
// chunk. It returns io.EOF once the stream is exhausted and every
// buffered chunk has been delivered.
func (d *Decoder) Next() (Command, error) {
	if d.done {
		return Command{}, io.EOF
	}

	chunk, err := d.r.ReadBytes(0x00)
	if err != nil {
		if err != io.EOF {
			return Command{}, fmt.Errorf("ingest: read frame: %w", err)
		}
		d.done = true
		if len(chunk) == 0 {
			return Command{}, io.EOF
		}
	} else {
		chunk = chunk[:len(chunk)-1] // drop the trailing 0x00
	}

	if len(chunk) == 0 {
		return d.Next()
	}

	return DecodeCommand(chunk)
}
