package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.bug.st/serial"
)

const readTimeout = 1 * time.Second

// maxLineLen bounds an unterminated line; longer input is dropped.
const maxLineLen = 4096

// Serial reads newline terminated lines from a serial port.
type Serial struct {
	port    serial.Port
	name    string
	pending []byte
	buf     []byte
}

// OpenSerial opens name at baud with a one second read timeout.
func OpenSerial(name string, baud int) (*Serial, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no port configured", ErrDeviceUnavailable)
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, name, err)
	}
	return &Serial{port: port, name: name, buf: make([]byte, 256)}, nil
}

// ReadLine returns the next complete line. When the read timeout elapses
// before a newline arrives it returns "" and keeps the partial bytes.
func (s *Serial) ReadLine(ctx context.Context) (string, error) {
	for {
		if line, ok := s.nextLine(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := s.port.Read(s.buf)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", s.name, err)
		}
		if n == 0 {
			return "", nil
		}
		s.feed(s.buf[:n])
	}
}

// feed appends b to the pending bytes. When no newline shows up within
// maxLineLen bytes the partial line is discarded.
func (s *Serial) feed(b []byte) {
	s.pending = append(s.pending, b...)
	if len(s.pending) <= maxLineLen {
		return
	}
	if i := bytes.LastIndexByte(s.pending, '\n'); i >= 0 {
		if len(s.pending)-i-1 > maxLineLen {
			s.pending = s.pending[:i+1]
		}
		return
	}
	s.pending = s.pending[:0]
}

func (s *Serial) nextLine() (string, bool) {
	i := bytes.IndexByte(s.pending, '\n')
	if i < 0 {
		return "", false
	}
	raw := s.pending[:i]
	s.pending = append(s.pending[:0:0], s.pending[i+1:]...)
	return decodeLine(raw), true
}

// decodeLine drops invalid UTF-8 and surrounding whitespace.
func decodeLine(raw []byte) string {
	if !utf8.Valid(raw) {
		raw = bytes.ToValidUTF8(raw, nil)
	}
	return strings.TrimSpace(string(raw))
}

// Close releases the port.
func (s *Serial) Close() error {
	return s.port.Close()
}
