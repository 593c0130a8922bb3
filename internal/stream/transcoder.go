package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"edge-gateway/internal/models"
)

// DoneEvent terminates every canonical stream.
const DoneEvent = "data: [DONE]\n\n"

const readBufferSize = 32 * 1024

// Meta is the envelope shared by every chunk of one stream.
type Meta struct {
	ID      string
	Created int64
	Model   string
}

// NewMeta returns a fresh envelope for model.
func NewMeta(model string) Meta {
	return Meta{
		ID:      models.NewCompletionID(),
		Created: time.Now().Unix(),
		Model:   model,
	}
}

// Transcoder is a pull-based io.ReadCloser: every Read pulls at most one
// upstream chunk and yields the canonical events it completed.
type Transcoder struct {
	upstream io.ReadCloser
	mapper   Mapper
	meta     Meta

	dec      Decoder
	buf      []byte
	out      bytes.Buffer
	done     bool
	roleSent bool

	closeOnce sync.Once
	closeErr  error
}

// NewTranscoder wraps upstream. Closing the transcoder closes upstream.
func NewTranscoder(upstream io.ReadCloser, mapper Mapper, meta Meta) *Transcoder {
	return &Transcoder{
		upstream: upstream,
		mapper:   mapper,
		meta:     meta,
		buf:      make([]byte, readBufferSize),
	}
}

// Read implements io.Reader.
func (t *Transcoder) Read(p []byte) (int, error) {
	for t.out.Len() == 0 {
		if t.done {
			return 0, io.EOF
		}

		n, err := t.upstream.Read(t.buf)
		if n > 0 {
			if encErr := t.emit(t.dec.Feed(t.buf[:n])); encErr != nil {
				return 0, encErr
			}
		}
		if err == io.EOF {
			if encErr := t.emit(t.dec.Flush()); encErr != nil {
				return 0, encErr
			}
			t.out.WriteString(DoneEvent)
			t.done = true
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read upstream stream: %w", err)
		}
	}
	return t.out.Read(p)
}

// Close releases the upstream connection.
func (t *Transcoder) Close() error {
	t.closeOnce.Do(func() {
		t.done = true
		t.out.Reset()
		t.closeErr = t.upstream.Close()
	})
	return t.closeErr
}

func (t *Transcoder) emit(payloads []json.RawMessage) error {
	for _, payload := range payloads {
		for _, ev := range t.mapper(payload) {
			chunk := t.chunk(ev)
			if err := WriteChunk(&t.out, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Transcoder) chunk(ev Event) models.StreamChunk {
	delta := models.Delta{Content: ev.Text}
	if !t.roleSent {
		delta.Role = models.RoleAssistant
		t.roleSent = true
	}
	return models.StreamChunk{
		ID:      t.meta.ID,
		Object:  models.ObjectChatCompletionChunk,
		Created: t.meta.Created,
		Model:   t.meta.Model,
		Choices: []models.StreamChoice{
			{
				Index:        0,
				Delta:        delta,
				FinishReason: ev.Finish,
			},
		},
	}
}

// WriteChunk encodes chunk as one SSE data event.
func WriteChunk(w io.Writer, chunk models.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal stream chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write stream chunk: %w", err)
	}
	return nil
}
