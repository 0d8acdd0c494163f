// Copyright 2024-2026 Aiku AI

// Package ircd implements the IRC-facing side of the gateway: line framing,
// message parsing and serialization, the CTCP envelope, numeric reply codes,
// and the TCP/TLS listener.
//
// The codec is deliberately small and forgiving on input: any line that
// yields a command token parses, and malformed lines are reported to the
// caller rather than killing the connection. Serialization is strict: an
// argument containing a space or colon is only legal in the final position.
package ircd

import (
	"errors"
	"fmt"
	"strings"
)

// Message is one IRC protocol line in parsed form.
type Message struct {
	// Sender is the prefix (without the leading ':'), empty for lines that
	// carry no prefix.
	Sender string
	Cmd    string
	Args   []string
}

// ErrEmptyCommand is returned by ParseLine for lines with no command token.
var ErrEmptyCommand = errors.New("ircd: empty command")

// NewMessage builds a message from a sender, command, and arguments.
func NewMessage(sender, cmd string, args ...string) *Message {
	return &Message{Sender: sender, Cmd: cmd, Args: args}
}

// ParseLine parses a raw IRC line into a Message. The first occurrence of
// " :" starts the trailing argument, which absorbs the rest of the line
// including further spaces and colons. A leading ':' token is the sender.
func ParseLine(line string) (*Message, error) {
	line = strings.TrimSpace(line)
	head, trailing, hasTrailing := strings.Cut(line, " :")

	fields := strings.Fields(head)
	var sender string
	if len(fields) > 0 && strings.HasPrefix(fields[0], ":") {
		sender = strings.TrimPrefix(fields[0], ":")
		fields = fields[1:]
	}
	if len(fields) == 0 || fields[0] == "" {
		return nil, fmt.Errorf("%w: %q", ErrEmptyCommand, line)
	}

	args := make([]string, 0, len(fields))
	args = append(args, fields[1:]...)
	if hasTrailing {
		args = append(args, trailing)
	}
	return &Message{Sender: sender, Cmd: fields[0], Args: args}, nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Line serializes the message to its wire form without the terminating CRLF.
// The command is upper-cased. Any argument that is empty or contains a space
// or colon must be the final argument; it is prefixed with ':' unless already
// so prefixed, so an empty trailing argument still occupies its parameter
// slot on the wire. Embedded line breaks are collapsed to spaces, since the
// wire format cannot carry them.
func (m *Message) Line() (string, error) {
	var b strings.Builder
	if m.Sender != "" {
		b.WriteByte(':')
		b.WriteString(m.Sender)
		b.WriteByte(' ')
	}
	b.WriteString(strings.ToUpper(m.Cmd))
	for i, arg := range m.Args {
		arg = lineBreaks.Replace(arg)
		b.WriteByte(' ')
		if arg == "" || strings.ContainsAny(arg, " :") {
			if i != len(m.Args)-1 {
				return "", fmt.Errorf("ircd: argument %q must be last to be empty or contain a space or colon", arg)
			}
			if !strings.HasPrefix(arg, ":") {
				b.WriteByte(':')
			}
		}
		b.WriteString(arg)
	}
	return b.String(), nil
}
