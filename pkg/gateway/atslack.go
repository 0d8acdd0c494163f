// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CmdOpt is one parsed -flag option. Bare marks a flag given without a
// value ("-x" or "-x="); otherwise Value holds the given value, which may
// be the empty string when explicitly quoted ("-x=\"\"").
type CmdOpt struct {
	Value string
	Bare  bool
}

type cmdToken struct {
	text       string
	leadQuoted bool
	eqQuoted   bool
}

// ParseAtSlackCmd splits a meta-command line into flag options and
// positional arguments with shell-like quoting and backslash escapes. A
// flag not using "=" consumes the following token as its value unless that
// token is itself a flag.
func ParseAtSlackCmd(text string) (map[string]CmdOpt, []string) {
	tokens := tokenizeCmd(text)
	opts := make(map[string]CmdOpt)
	args := []string{}

	isFlag := func(t cmdToken) bool {
		return !t.leadQuoted && strings.HasPrefix(t.text, "-") && t.text != "-"
	}

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if !isFlag(t) {
			args = append(args, t.text)
			continue
		}
		name, val, hasEq := strings.Cut(strings.TrimLeft(t.text, "-"), "=")
		switch {
		case hasEq && val == "" && !t.eqQuoted:
			opts[name] = CmdOpt{Bare: true}
		case hasEq:
			opts[name] = CmdOpt{Value: val}
		case i+1 < len(tokens) && !isFlag(tokens[i+1]):
			opts[name] = CmdOpt{Value: tokens[i+1].text}
			i++
		default:
			opts[name] = CmdOpt{Bare: true}
		}
	}
	return opts, args
}

func tokenizeCmd(text string) []cmdToken {
	var tokens []cmdToken
	var cur strings.Builder
	var inToken, inQuote, leadQuoted, eqQuoted, seenEq bool

	flush := func() {
		if !inToken {
			return
		}
		tokens = append(tokens, cmdToken{text: cur.String(), leadQuoted: leadQuoted, eqQuoted: eqQuoted})
		cur.Reset()
		inToken, leadQuoted, eqQuoted, seenEq = false, false, false, false
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\\' && i+1 < len(runes):
			if !inToken {
				inToken = true
			}
			i++
			cur.WriteRune(runes[i])
		case c == '"':
			if !inToken {
				inToken, leadQuoted = true, true
			}
			if seenEq {
				eqQuoted = true
			}
			inQuote = !inQuote
		case c == ' ' || c == '\t':
			if inQuote {
				cur.WriteRune(c)
			} else {
				flush()
			}
		default:
			if !inToken {
				inToken = true
			}
			if c == '=' && !inQuote {
				seenEq = true
			}
			cur.WriteRune(c)
		}
	}
	flush()
	return tokens
}

// atSlack dispatches a "@slack ..." meta-command typed into a conversation.
// Known subcommands cover group chats, history, reactions, and thread
// replies; anything else is passed through as a raw API method with the
// parsed flags as parameters.
func (gw *Gateway) atSlack(ctx context.Context, s *Session, target, rest string) error {
	opts, args := ParseAtSlackCmd(rest)
	if len(args) == 0 {
		return s.notice(target, "Usage: @slack <chat|history|react|thread|api.method> ...")
	}
	switch args[0] {
	case "chat":
		return gw.atSlackChat(ctx, s, target, args[1:])
	case "history":
		return gw.atSlackHistory(ctx, s, target, args[1:], opts)
	case "react":
		return gw.atSlackReact(ctx, s, target, args[1:])
	case "thread":
		return gw.atSlackThread(ctx, s, target, args[1:])
	default:
		return gw.atSlackRaw(ctx, s, target, args[0], opts)
	}
}

// atSlackChat opens a group conversation with the named nicks.
func (gw *Gateway) atSlackChat(ctx context.Context, s *Session, target string, nicks []string) error {
	if len(nicks) == 0 {
		return s.notice(target, "Usage: @slack chat nick [nick ...]")
	}
	ids := make([]string, 0, len(nicks))
	for _, nick := range nicks {
		id, err := s.names.SlackID(nick)
		if err != nil {
			return s.notice(target, "Unknown nickname: "+nick)
		}
		ids = append(ids, id)
	}
	_, err := s.caller.Call(ctx, "conversations.open", map[string]any{
		"users": strings.Join(ids, ","),
	})
	return err
}

// atSlackHistory replays recent conversation history as notices.
func (gw *Gateway) atSlackHistory(ctx context.Context, s *Session, target string, args []string, opts map[string]CmdOpt) error {
	historyOf := target
	if len(args) > 0 {
		historyOf = args[0]
	}
	limit := 20
	if opt, ok := opts["count"]; ok && !opt.Bare {
		if n, err := strconv.Atoi(opt.Value); err == nil && n > 0 {
			limit = n
		}
	}
	convID, err := gw.conversationFor(ctx, s, historyOf)
	if err != nil {
		return s.notice(target, "Unknown conversation: "+historyOf)
	}
	res, err := s.caller.Call(ctx, "conversations.history", map[string]any{
		"channel": convID,
		"limit":   limit,
	})
	if err != nil {
		return err
	}
	// History arrives newest first; replay oldest first.
	msgs := res.Get("messages").Array()
	for i := len(msgs) - 1; i >= 0; i-- {
		var nick string
		if userID := msgs[i].Get("user").String(); userID != "" {
			if nick, err = s.ircNameFor(ctx, userID); err != nil {
				nick = userID
			}
		}
		line := fmt.Sprintf("[%s] %s: %s",
			msgs[i].Get("ts").String(), nick, s.ircize(msgs[i].Get("text").String()))
		if err := s.notice(target, line); err != nil {
			return err
		}
	}
	return nil
}

// atSlackReact adds a reaction to a message in the current conversation.
func (gw *Gateway) atSlackReact(ctx context.Context, s *Session, target string, args []string) error {
	if len(args) < 2 {
		return s.notice(target, "Usage: @slack react <ts> <emoji>")
	}
	convID, err := gw.conversationFor(ctx, s, target)
	if err != nil {
		return s.notice(target, "Unknown conversation: "+target)
	}
	_, err = s.caller.Call(ctx, "reactions.add", map[string]any{
		"channel":   convID,
		"timestamp": args[0],
		"name":      strings.Trim(args[1], ":"),
	})
	return err
}

// atSlackThread posts a reply into a thread in the current conversation.
func (gw *Gateway) atSlackThread(ctx context.Context, s *Session, target string, args []string) error {
	if len(args) < 2 {
		return s.notice(target, "Usage: @slack thread <ts> <text>")
	}
	convID, err := gw.conversationFor(ctx, s, target)
	if err != nil {
		return s.notice(target, "Unknown conversation: "+target)
	}
	params := map[string]any{
		"channel":   convID,
		"text":      s.slackize(strings.Join(args[1:], " ")),
		"as_user":   true,
		"thread_ts": args[0],
	}
	return s.echo.RememberOwnSend(func() (string, error) {
		res, err := s.caller.Call(ctx, "chat.postMessage", params)
		if err != nil {
			return "", err
		}
		return EchoKey(res.Get("channel").String(), res.Get("ts").String()), nil
	})
}

// atSlackRaw passes an arbitrary API method through, with flags as
// parameters, and reports the outcome as a notice.
func (gw *Gateway) atSlackRaw(ctx context.Context, s *Session, target, method string, opts map[string]CmdOpt) error {
	params := make(map[string]any, len(opts))
	for name, opt := range opts {
		if opt.Bare {
			params[name] = true
		} else {
			params[name] = opt.Value
		}
	}
	res, err := s.caller.Call(ctx, method, params)
	if err != nil {
		return s.notice(target, fmt.Sprintf("%s failed: %v", method, err))
	}
	out := res.Raw
	if out == "" {
		out = "ok"
	}
	for _, line := range strings.Split(out, "\n") {
		if err := s.notice(target, line); err != nil {
			return err
		}
	}
	return nil
}
