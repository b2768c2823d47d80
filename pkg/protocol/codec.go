// Package protocol implements the Depot wire protocol: LF-terminated
// ASCII command lines with raw binary bodies framed by an in-band byte
// count.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/depot/pkg/bufpool"
)

// MaxLineLength is the maximum accepted line length in bytes, excluding
// the terminator. Longer lines are a protocol violation and close the
// session.
const MaxLineLength = 1024

// ErrLineTooLong is returned by ReadLine when a line exceeds
// MaxLineLength before its terminator arrives.
var ErrLineTooLong = errors.New("protocol: line too long")

// ReadLine reads one LF-terminated line. A CR immediately before the LF
// is tolerated and stripped. io.EOF is returned unwrapped so callers can
// detect a normal client disconnect; EOF in the middle of a line is
// io.ErrUnexpectedEOF.
func ReadLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			break
		}
		if len(line) >= MaxLineLength {
			return "", ErrLineTooLong
		}
		line = append(line, b)
	}

	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}

// WriteLine writes text followed by a LF.
func WriteLine(w io.Writer, text string) error {
	if _, err := io.WriteString(w, text+"\n"); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

// ReadExact reads exactly n bytes. Used for small binary bodies; large
// transfers stream through CopyExact instead.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteAll writes the whole buffer.
func WriteAll(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// CopyExact streams exactly n bytes from src to dst through a pooled
// buffer. A short read surfaces as io.ErrUnexpectedEOF so the caller can
// distinguish a truncated body from a clean transfer.
func CopyExact(dst io.Writer, src io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}

	size := n
	if size > bufpool.DefaultLargeSize {
		size = bufpool.DefaultLargeSize
	}
	buf := bufpool.Get(int(size))
	defer bufpool.Put(buf)

	written, err := io.CopyBuffer(dst, io.LimitReader(src, n), buf)
	if err != nil {
		return err
	}
	if written < n {
		return io.ErrUnexpectedEOF
	}
	return nil
}
