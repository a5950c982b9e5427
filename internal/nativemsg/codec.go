// Package nativemsg implements the browser native messaging framing: every
// message is a JSON document preceded by its length as a little-endian uint32.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// MaxIncomingSize caps messages read from the browser.
	MaxIncomingSize = 64 << 20

	// MaxOutgoingSize is the largest message the browser accepts from a host.
	MaxOutgoingSize = 1 << 20
)

// ErrMessageTooLarge is returned for frames exceeding the size limit.
var ErrMessageTooLarge = errors.New("nativemsg: message too large")

// Reader reads framed messages.
type Reader struct {
	r   io.Reader
	max uint32
}

// NewReader creates a reader limited to MaxIncomingSize.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, max: MaxIncomingSize}
}

// ReadRaw returns the next message body. It returns io.EOF when the stream
// ends cleanly between messages and io.ErrUnexpectedEOF inside one.
func (r *Reader) ReadRaw() (json.RawMessage, error) {
	var header [4]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return nil, err
	}

	size := binary.LittleEndian.Uint32(header[:])
	if size > r.max {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// Read decodes the next message into v.
func (r *Reader) Read(v interface{}) error {
	body, err := r.ReadRaw()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("nativemsg: decode message: %w", err)
	}
	return nil
}

// Writer writes framed messages. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	max int
}

// NewWriter creates a writer limited to MaxOutgoingSize.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, max: MaxOutgoingSize}
}

// Write encodes v and writes it as one frame.
func (w *Writer) Write(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nativemsg: encode message: %w", err)
	}
	if len(body) > w.max {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(body))
	}

	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(frame)
	return err
}
