// Copyright 2024-2026 Aiku AI

package ircd

import "strings"

// ctcpDelim is the reserved control byte that wraps an out-of-band command
// inside an otherwise plain message body.
const ctcpDelim = "\x01"

// CTCP command names used by the gateway.
const (
	CtcpAction = "ACTION"
	CtcpTyping = "TYPING"
)

// Ctcp encodes an out-of-band command envelope. The payload may be empty.
func Ctcp(cmd, payload string) string {
	if payload == "" {
		return ctcpDelim + cmd + ctcpDelim
	}
	return ctcpDelim + cmd + " " + payload + ctcpDelim
}

// ParseCtcp decodes an out-of-band command envelope. ok is false when text
// is not a well-formed envelope; the text is then an ordinary message body.
func ParseCtcp(text string) (cmd, payload string, ok bool) {
	if len(text) < 2 || !strings.HasPrefix(text, ctcpDelim) || !strings.HasSuffix(text, ctcpDelim) {
		return "", "", false
	}
	inner := text[1 : len(text)-1]
	cmd, payload, _ = strings.Cut(inner, " ")
	if cmd == "" {
		return "", "", false
	}
	return cmd, payload, true
}
