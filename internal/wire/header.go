package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// MaxHeaderSize bounds a header line, newline included.
	MaxHeaderSize = 256

	// MaxPayloadSize bounds the length a header may announce. Anything
	// larger cannot be a reading and is treated as a broken stream.
	MaxPayloadSize = 4096
)

// Header is the text line that precedes every payload: "deviceId:length".
type Header struct {
	DeviceID string
	Length   int
}

// ParseHeader parses a header line with its line terminator already
// removed. A trailing carriage return is tolerated.
func ParseHeader(line string) (Header, error) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return Header{}, fmt.Errorf("%w: empty header", ErrFraming)
	}

	deviceID, lengthText, ok := strings.Cut(line, ":")
	if !ok {
		return Header{}, fmt.Errorf("%w: header %q has no colon", ErrFraming, line)
	}
	if deviceID == "" {
		return Header{}, fmt.Errorf("%w: header %q has no device id", ErrFraming, line)
	}

	length, err := strconv.Atoi(strings.TrimSpace(lengthText))
	if err != nil {
		return Header{}, fmt.Errorf("%w: header %q has invalid length: %v", ErrFraming, line, err)
	}
	if length < 0 || length > MaxPayloadSize {
		return Header{}, fmt.Errorf("%w: header %q length out of range [0, %d]", ErrFraming, line, MaxPayloadSize)
	}

	return Header{DeviceID: deviceID, Length: length}, nil
}

// ReadHeader reads one newline-terminated header line from r. It returns
// io.EOF when the peer closes cleanly between messages.
func ReadHeader(r *bufio.Reader) (Header, error) {
	line, err := r.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return Header{}, fmt.Errorf("%w: header exceeds %d bytes", ErrFraming, r.Size())
	case err != nil && len(line) == 0:
		return Header{}, err
	case err != nil:
		// Peer closed in the middle of a header line.
		return Header{}, io.ErrUnexpectedEOF
	}
	if len(line) > MaxHeaderSize {
		return Header{}, fmt.Errorf("%w: header exceeds %d bytes", ErrFraming, MaxHeaderSize)
	}

	return ParseHeader(string(bytes.TrimSuffix(line, []byte{'\n'})))
}

// ReadFrame reads a header and exactly the payload bytes it announces.
func ReadFrame(r *bufio.Reader) (Header, []byte, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return header, nil, fmt.Errorf("reading %d byte payload for %s: %w", header.Length, header.DeviceID, err)
	}

	return header, payload, nil
}

// WriteFrame writes a header and payload, as a device does.
func WriteFrame(w io.Writer, deviceID string, payload []byte) error {
	frame := make([]byte, 0, len(deviceID)+8+len(payload))
	frame = append(frame, deviceID...)
	frame = append(frame, ':')
	frame = strconv.AppendInt(frame, int64(len(payload)), 10)
	frame = append(frame, '\n')
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}
