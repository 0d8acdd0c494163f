// Copyright 2024-2026 Aiku AI

// Package slackfmt converts Slack message markup to IRC text ("ircize").
package slackfmt

import (
	"regexp"
	"strings"
)

// Resolver supplies cached name lookups for opaque IDs. NameForID returns
// the IRC-side name as stored in the session map: bare nick for users and
// bots, "#name" for conversations, "@handle" for usergroups. ResolveAsync
// requests a background fetch for an unknown ID so a later message renders
// correctly; it must not block.
type Resolver interface {
	NameForID(id string) (string, bool)
	ResolveAsync(id string)
}

var tokenRe = regexp.MustCompile(`<[^<>]*>`)

var entityDecoder = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// Ircize rewrites Slack markup tokens to their IRC-side equivalents.
// Content quoted by triple or single backtick fences passes through
// untouched, including entity escapes.
func Ircize(r Resolver, text string) string {
	blocks := strings.Split(text, "```")
	for i, block := range blocks {
		if i%2 == 1 {
			continue
		}
		spans := strings.Split(block, "`")
		for j, span := range spans {
			if j%2 == 1 {
				continue
			}
			spans[j] = ircizeSpan(r, span)
		}
		blocks[i] = strings.Join(spans, "`")
	}
	return strings.Join(blocks, "```")
}

func ircizeSpan(r Resolver, span string) string {
	out := tokenRe.ReplaceAllStringFunc(span, func(token string) string {
		return ircizeToken(r, token)
	})
	return entityDecoder.Replace(out)
}

func ircizeToken(r Resolver, token string) string {
	body := token[1 : len(token)-1]
	body, label, _ := cutLabel(body)

	switch {
	case strings.HasPrefix(body, "@"):
		// <@U123> or <@U123|label>
		id := body[1:]
		if name, ok := r.NameForID(id); ok {
			return "@" + name
		}
		r.ResolveAsync(id)
		return token
	case strings.HasPrefix(body, "#"):
		// <#C123|name>
		if label != "" {
			return "#" + label
		}
		id := body[1:]
		if name, ok := r.NameForID(id); ok {
			return name
		}
		r.ResolveAsync(id)
		return token
	case strings.HasPrefix(body, "!subteam^"):
		// <!subteam^S123|@handle>
		if label != "" {
			return label
		}
		id := strings.TrimPrefix(body, "!subteam^")
		if handle, ok := r.NameForID(id); ok {
			return handle
		}
		r.ResolveAsync(id)
		return token
	case body == "!here":
		return "@here "
	case body == "!channel":
		return "@channel"
	case body == "!everyone":
		return "@everyone"
	case strings.HasPrefix(body, "mailto:"):
		// <mailto:addr|label> renders the address.
		return strings.TrimPrefix(body, "mailto:")
	case strings.Contains(body, "://"):
		// <url> or <url|label> renders the bare URL.
		return body
	default:
		return token
	}
}

// cutLabel splits "body|label" at the first pipe.
func cutLabel(body string) (string, string, bool) {
	return strings.Cut(body, "|")
}
