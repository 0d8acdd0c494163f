// Copyright 2024-2026 Aiku AI

package ircd

import (
	"bufio"
	"io"
)

// LineScanner yields complete lines from a byte stream, splitting on bare
// '\n' or '\r\n' and buffering any trailing partial line until more data
// arrives.
type LineScanner struct {
	s *bufio.Scanner
}

// NewLineScanner wraps r. maxLineLen bounds the size of a single line;
// values below 512 are raised to 512.
func NewLineScanner(r io.Reader, maxLineLen int) *LineScanner {
	if maxLineLen < 512 {
		maxLineLen = 512
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineLen)
	s.Split(bufio.ScanLines)
	return &LineScanner{s: s}
}

// Scan advances to the next complete line. It returns false at stream end
// or on error.
func (ls *LineScanner) Scan() bool {
	return ls.s.Scan()
}

// Line returns the current line with the line terminator removed.
func (ls *LineScanner) Line() string {
	return ls.s.Text()
}

// Err returns the first error encountered, excluding io.EOF.
func (ls *LineScanner) Err() error {
	return ls.s.Err()
}
