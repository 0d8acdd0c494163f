// Copyright 2024-2026 Aiku AI

package ircfmt

import "testing"

// stubResolver serves fixed name tables.
type stubResolver struct {
	users    map[string]string
	groups   map[string]string
	channels map[string]string
}

func (r *stubResolver) UserID(nick string) (string, bool) {
	id, ok := r.users[nick]
	return id, ok
}

func (r *stubResolver) GroupID(handle string) (string, bool) {
	id, ok := r.groups[handle]
	return id, ok
}

func (r *stubResolver) ChannelID(name string) (string, bool) {
	id, ok := r.channels[name]
	return id, ok
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		users:    map[string]string{"alice": "U1", "bob.smith": "U2"},
		groups:   map[string]string{"oncall": "S1"},
		channels: map[string]string{"general": "C1"},
	}
}

func TestSlackize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"mention at start", "@alice hi", "<@U1> hi"},
		{"mention mid text", "ping @alice now", "ping <@U1> now"},
		{"mention with dots", "cc @bob.smith", "cc <@U2>"},
		{"unknown nick kept", "ping @carol", "ping @carol"},
		{"glued at not a mention", "mail me hello@alice", "mail me hello@alice"},
		{"channel reference", "see #general", "see <#C1|general>"},
		{"unknown channel kept", "see #nowhere", "see #nowhere"},
		{"glued hash not a channel", "issue#general", "issue#general"},
		{"here broadcast", "@here standup", "<!here> standup"},
		{"channel broadcast", "@channel fyi", "<!channel> fyi"},
		{"everyone broadcast", "@everyone fyi", "<!everyone> fyi"},
		{"group mention", "page @oncall", "page <!subteam^S1|@oncall>"},
		{"entities encoded", "1 < 2 && 3 > 2", "1 &lt; 2 &amp;&amp; 3 &gt; 2"},
		{"encode leaves glued mention alone", "<@alice>", "&lt;@alice&gt;"},
		{"two mentions", "@alice @bob.smith", "<@U1> <@U2>"},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newStubResolver()
			if got := Slackize(r, tt.in); got != tt.want {
				t.Errorf("Slackize(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
