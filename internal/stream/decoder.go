// Package stream converts upstream Server-Sent-Event streams into the
// gateway's canonical chat.completion.chunk stream.
package stream

import (
	"bytes"
	"encoding/json"
)

var dataPrefix = []byte("data:")

// Feed appends chunk to buffer and returns the JSON payloads of every complete
// data line, together with the unterminated remainder. Lines whose payload is
// not valid JSON are skipped.
func Feed(buffer, chunk []byte) ([]json.RawMessage, []byte) {
	pending := make([]byte, 0, len(buffer)+len(chunk))
	pending = append(pending, buffer...)
	pending = append(pending, chunk...)

	var events []json.RawMessage
	for {
		idx := bytes.IndexByte(pending, '\n')
		if idx < 0 {
			break
		}
		if payload, ok := parseLine(pending[:idx]); ok {
			events = append(events, payload)
		}
		pending = pending[idx+1:]
	}
	return events, pending
}

// Decoder holds the line buffer between chunks.
type Decoder struct {
	pending []byte
}

// Feed consumes one upstream chunk.
func (d *Decoder) Feed(chunk []byte) []json.RawMessage {
	events, rest := Feed(d.pending, chunk)
	d.pending = rest
	return events
}

// Flush parses whatever is left in the buffer as a final line.
func (d *Decoder) Flush() []json.RawMessage {
	line := d.pending
	d.pending = nil
	if payload, ok := parseLine(line); ok {
		return []json.RawMessage{payload}
	}
	return nil
}

// Buffered returns the number of bytes held back.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}

func parseLine(line []byte) (json.RawMessage, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, false
	}
	return append(json.RawMessage(nil), payload...), true
}
