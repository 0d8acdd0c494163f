// Copyright 2024-2026 Aiku AI

package ircd

import "testing"

func TestCtcpEncode(t *testing.T) {
	t.Parallel()
	got := Ctcp(CtcpAction, "waves")
	want := "\x01ACTION waves\x01"
	if got != want {
		t.Errorf("Ctcp: got %q, want %q", got, want)
	}
	got = Ctcp(CtcpTyping, "")
	want = "\x01TYPING\x01"
	if got != want {
		t.Errorf("Ctcp empty payload: got %q, want %q", got, want)
	}
}

func TestParseCtcp(t *testing.T) {
	t.Parallel()
	cmd, payload, ok := ParseCtcp("\x01ACTION waves at everyone\x01")
	if !ok || cmd != "ACTION" || payload != "waves at everyone" {
		t.Errorf("ParseCtcp: got (%q, %q, %v)", cmd, payload, ok)
	}
	if _, _, ok := ParseCtcp("plain text"); ok {
		t.Error("ParseCtcp accepted plain text")
	}
	if _, _, ok := ParseCtcp("\x01\x01"); ok {
		t.Error("ParseCtcp accepted empty envelope")
	}
	if _, _, ok := ParseCtcp("\x01ACTION unterminated"); ok {
		t.Error("ParseCtcp accepted unterminated envelope")
	}
}

func TestCtcpRoundTrip(t *testing.T) {
	t.Parallel()
	enc := Ctcp(CtcpTyping, "1")
	cmd, payload, ok := ParseCtcp(enc)
	if !ok || cmd != CtcpTyping || payload != "1" {
		t.Errorf("round trip: got (%q, %q, %v)", cmd, payload, ok)
	}
}
