package ipc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxLineSize bounds a single record. Longer records end the connection.
const MaxLineSize = 1 << 20

// ErrLineTooLong is returned when a record exceeds MaxLineSize.
var ErrLineTooLong = errors.New("ipc: record exceeds maximum size")

// LineReader splits a byte stream into newline-terminated records, reassembling records that span
// reads and separating several records delivered together.
type LineReader struct {
	r   *bufio.Reader
	buf []byte
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next record without its terminator. The slice is only valid until the next
// call. A trailing record without a newline at EOF is dropped and io.EOF returned.
func (lr *LineReader) ReadLine() ([]byte, error) {
	lr.buf = lr.buf[:0]
	for {
		chunk, err := lr.r.ReadSlice('\n')
		if len(lr.buf)+len(chunk) > MaxLineSize+1 {
			return nil, ErrLineTooLong
		}
		lr.buf = append(lr.buf, chunk...)
		switch {
		case err == nil:
			return bytes.TrimSuffix(lr.buf[:len(lr.buf)-1], []byte{'\r'}), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// ReadMessage reads records until one decodes, skipping invalid ones.
func (lr *LineReader) ReadMessage() (Message, error) {
	for {
		line, err := lr.ReadLine()
		if err != nil {
			return Message{}, err
		}
		if msg, ok := Decode(line); ok {
			return msg, nil
		}
	}
}

// WriteMessage encodes msg and writes it to w as one record.
func WriteMessage(w io.Writer, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}
