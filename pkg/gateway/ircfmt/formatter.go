// Copyright 2024-2026 Aiku AI

// Package ircfmt converts IRC text to Slack message markup ("slackize").
package ircfmt

import (
	"regexp"
	"strings"
)

// Resolver supplies name-to-ID lookups against the session map. Lookups are
// cache-only; an unresolvable token is left untouched.
type Resolver interface {
	UserID(nick string) (string, bool)
	GroupID(handle string) (string, bool)
	ChannelID(name string) (string, bool)
}

// Mention and channel tokens: '@' or '#' at start of text or after
// whitespace, followed by a name run. A token glued to surrounding word
// characters (hello@nick) is plain text.
var mentionRe = regexp.MustCompile(`(^|\s)([@#])([A-Za-z0-9._-]+)`)

var entityEncoder = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Slackize escapes the markup-significant characters and rewrites @nick,
// @group, #channel, and broadcast tokens into Slack markup.
func Slackize(r Resolver, text string) string {
	text = entityEncoder.Replace(text)
	return mentionRe.ReplaceAllStringFunc(text, func(token string) string {
		m := mentionRe.FindStringSubmatch(token)
		lead, sigil, name := m[1], m[2], m[3]
		return lead + slackizeToken(r, sigil, name)
	})
}

func slackizeToken(r Resolver, sigil, name string) string {
	if sigil == "#" {
		if id, ok := r.ChannelID(name); ok {
			return "<#" + id + "|" + name + ">"
		}
		return sigil + name
	}
	switch name {
	case "here", "channel", "everyone":
		return "<!" + name + ">"
	}
	if id, ok := r.UserID(name); ok {
		return "<@" + id + ">"
	}
	if id, ok := r.GroupID(name); ok {
		// Group references carry the display handle as a fallback suffix.
		return "<!subteam^" + id + "|@" + name + ">"
	}
	return sigil + name
}
