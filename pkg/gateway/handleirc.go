// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aiku/slircd/pkg/ircd"
	"github.com/aiku/slircd/pkg/slack"
)

// apiHost appears in WHO replies as the peer's host.
const apiHost = "api.slack.com"

// ircPass captures the API credential. The first argument is the token,
// optionally with a base64 cookie appended after a pipe for browser-issued
// tokens; any further arguments are session preference names.
func (gw *Gateway) ircPass(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) == 0 {
		return s.numeric(ircd.ErrNeedMoreParams, "PASS", "Not enough parameters")
	}
	token, cookieB64, hasCookie := strings.Cut(m.Args[0], "|")
	s.stateMu.Lock()
	s.token = token
	for _, pref := range m.Args[1:] {
		s.prefs[pref] = true
	}
	s.stateMu.Unlock()
	if hasCookie {
		raw, err := base64.StdEncoding.DecodeString(cookieB64)
		if err != nil {
			return fmt.Errorf("decode cookie trailer: %w", err)
		}
		s.stateMu.Lock()
		s.cookie = string(raw)
		s.stateMu.Unlock()
	}
	return nil
}

// ircNick records the requested nick before identification. The nick is
// dictated by the remote account afterwards, so later changes are refused.
func (gw *Gateway) ircNick(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) == 0 {
		return s.numeric(ircd.ErrNoNicknameGiven, "No nickname given")
	}
	if s.State() != StateUnauth {
		return s.numeric(ircd.ErrRestricted, "Your connection is restricted!")
	}
	s.stateMu.Lock()
	s.origNick = m.Args[0]
	s.nick = m.Args[0]
	s.stateMu.Unlock()
	return nil
}

// ircUser completes registration: it authenticates the token, learns the
// session's own identity, and starts the event feed. The welcome numerics
// are deferred until hydration finishes.
func (gw *Gateway) ircUser(ctx context.Context, s *Session, m *ircd.Message) error {
	s.stateMu.Lock()
	token, cookie := s.token, s.cookie
	s.stateMu.Unlock()
	if token == "" {
		return s.numeric(ircd.ErrNeedMoreParams, "USER", "No token; send PASS first")
	}

	s.caller = gw.newCaller(token, cookie, s.log)

	auth, err := s.caller.Call(ctx, "auth.test", nil)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	userID := auth.Get("user_id").String()
	s.slackUserID = userID
	s.selfIDs[userID] = struct{}{}

	info, err := s.caller.Call(ctx, "users.info", map[string]any{"user": userID})
	if err != nil {
		return fmt.Errorf("own user info: %w", err)
	}
	if nick := info.Get("user.name").String(); nick != "" {
		s.setNick(nick)
	}
	if shadow := info.Get("user.enterprise_user.id").String(); shadow != "" {
		s.selfIDs[shadow] = struct{}{}
	}
	s.mapIdentity(s.Nick(), userID)
	s.setState(StateIdentified)

	feed, err := gw.newFeed(ctx, s.caller, s.log)
	if err != nil {
		return fmt.Errorf("start event feed: %w", err)
	}
	s.feed = feed
	go gw.runFeed(s)
	return nil
}

// ircJoin joins each channel in a comma-separated list, creating it remotely
// when needed, and announces topic and member list to the client.
func (gw *Gateway) ircJoin(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) == 0 {
		return s.numeric(ircd.ErrNeedMoreParams, "JOIN", "Not enough parameters")
	}
	for _, chanName := range strings.Split(m.Args[0], ",") {
		if chanName == "" {
			continue
		}
		if chanName == debugChannel {
			if err := gw.joinDebugChannel(s); err != nil {
				return err
			}
			continue
		}
		if err := gw.joinOne(ctx, s, chanName); err != nil {
			s.log.Error().Err(err).Str("channel", chanName).Msg("Join failed")
		}
	}
	return nil
}

func (gw *Gateway) joinOne(ctx context.Context, s *Session, chanName string) error {
	res, err := s.caller.Call(ctx, "channels.join", map[string]any{
		"name": strings.TrimPrefix(chanName, "#"),
	})
	if err != nil {
		return err
	}
	convID := res.Get("channel.id").String()
	if convID == "" {
		return fmt.Errorf("join %s: no conversation id in response", chanName)
	}
	s.mapIdentity(chanName, convID)

	info, err := s.caller.Call(ctx, "conversations.info", map[string]any{"channel": convID})
	if err != nil {
		return err
	}
	memberIDs, err := gw.fetchMembers(ctx, s, convID)
	if err != nil {
		return err
	}
	return gw.announceChannel(ctx, s, chanName, info.Get("channel.topic.value").String(), memberIDs)
}

// fetchMembers pages through a conversation's full member ID list.
func (gw *Gateway) fetchMembers(ctx context.Context, s *Session, convID string) ([]string, error) {
	var ids []string
	err := slack.Paginate(ctx, s.caller, "conversations.members",
		map[string]any{"channel": convID, "limit": 1000}, "members",
		func(item gjson.Result) error {
			ids = append(ids, item.String())
			return nil
		})
	return ids, err
}

// announceChannel emits the join/topic/names sequence for a channel and
// records its membership. The session's own nick leads the names list ahead
// of the roster as reported remotely.
func (gw *Gateway) announceChannel(ctx context.Context, s *Session, chanName, topic string, memberIDs []string) error {
	s.names.Join(chanName)
	nicks := make([]string, 0, len(memberIDs)+1)
	nicks = append(nicks, s.Nick())
	s.names.AddNick(chanName, s.Nick())
	for _, id := range memberIDs {
		nick, err := s.ircNameFor(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("id", id).Str("channel", chanName).
				Msg("Skipping unresolvable member")
			continue
		}
		s.names.AddNick(chanName, nick)
		nicks = append(nicks, nick)
	}

	if err := s.write(s.Nick(), "JOIN", chanName); err != nil {
		return err
	}
	if topic != "" {
		if err := s.numeric(ircd.RplTopic, chanName, topic); err != nil {
			return err
		}
	}
	if err := s.numeric(ircd.RplNamReply, "=", chanName, strings.Join(nicks, " ")); err != nil {
		return err
	}
	return s.numeric(ircd.RplEndOfNames, chanName, "End of /NAMES list")
}

// ircPart leaves each channel in a comma-separated list.
func (gw *Gateway) ircPart(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) == 0 {
		return s.numeric(ircd.ErrNeedMoreParams, "PART", "Not enough parameters")
	}
	for _, chanName := range strings.Split(m.Args[0], ",") {
		if chanName == "" {
			continue
		}
		if chanName == debugChannel {
			s.names.Part(chanName)
			if err := s.write(s.Nick(), "PART", chanName); err != nil {
				return err
			}
			continue
		}
		convID, err := s.names.SlackID(chanName)
		if err != nil {
			if err := s.numeric(ircd.ErrNoSuchChannel, chanName, "No such channel"); err != nil {
				return err
			}
			continue
		}
		if _, err := s.caller.Call(ctx, "conversations.leave", map[string]any{"channel": convID}); err != nil {
			return err
		}
		s.names.Part(chanName)
		if err := s.write(s.Nick(), "PART", chanName); err != nil {
			return err
		}
	}
	return nil
}

// ircPrivmsg relays a client message: meta-commands are intercepted, a
// thread prefix is peeled off, CTCP ACTION selects the me-message method,
// and the send is recorded in the echo ledger under the returned timestamp.
func (gw *Gateway) ircPrivmsg(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) < 2 {
		return s.numeric(ircd.ErrNeedMoreParams, "PRIVMSG", "Not enough parameters")
	}
	target, text := m.Args[0], m.Args[1]

	if target == debugChannel {
		return gw.debugCommand(s, text)
	}
	if strings.HasPrefix(text, "@slack ") || text == "@slack" {
		return gw.atSlack(ctx, s, target, strings.TrimPrefix(text, "@slack"))
	}

	var threadTS string
	if strings.HasPrefix(text, "@thread-") {
		prefix, rest, ok := strings.Cut(text, " ")
		if ok {
			threadTS = strings.TrimPrefix(prefix, "@thread-")
			text = rest
		}
	}

	method := "chat.postMessage"
	if cmd, payload, ok := ircd.ParseCtcp(text); ok {
		switch cmd {
		case ircd.CtcpAction:
			method = "chat.meMessage"
			text = payload
		case ircd.CtcpTyping:
			// Client-side typing indicators have no outbound mapping.
			return nil
		default:
			return nil
		}
	}

	convID, err := gw.conversationFor(ctx, s, target)
	if err != nil {
		return s.numeric(ircd.ErrNoSuchNick, target, "No such nick/channel")
	}

	params := map[string]any{
		"channel": convID,
		"text":    s.slackize(text),
		"as_user": true,
	}
	if threadTS != "" {
		params["thread_ts"] = threadTS
	}
	return s.echo.RememberOwnSend(func() (string, error) {
		res, err := s.caller.Call(ctx, method, params)
		if err != nil {
			return "", err
		}
		return EchoKey(res.Get("channel").String(), res.Get("ts").String()), nil
	})
}

// conversationFor maps a PRIVMSG target to a conversation ID, opening a
// direct conversation for a bare nick on first use.
func (gw *Gateway) conversationFor(ctx context.Context, s *Session, target string) (string, error) {
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		return s.names.SlackID(target)
	}
	if convID, ok := s.names.DM(target); ok {
		return convID, nil
	}
	userID, err := s.names.SlackID(target)
	if err != nil {
		return "", err
	}
	res, err := s.caller.Call(ctx, "conversations.open", map[string]any{"users": userID})
	if err != nil {
		return "", err
	}
	convID := res.Get("channel.id").String()
	if convID == "" {
		return "", fmt.Errorf("open dm with %s: no conversation id", target)
	}
	s.names.SetDM(target, convID)
	return convID, nil
}

// ircTopic sets a channel topic and confirms it back as a topic numeric.
func (gw *Gateway) ircTopic(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) < 2 {
		return s.numeric(ircd.ErrNeedMoreParams, "TOPIC", "Not enough parameters")
	}
	chanName, topic := m.Args[0], m.Args[1]
	convID, err := s.names.SlackID(chanName)
	if err != nil {
		return s.numeric(ircd.ErrNoSuchChannel, chanName, "No such channel")
	}
	if _, err := s.caller.Call(ctx, "conversations.setTopic", map[string]any{
		"channel": convID,
		"topic":   topic,
	}); err != nil {
		return err
	}
	return s.numeric(ircd.RplTopic, chanName, topic)
}

// ircInvite invites a nick into a channel.
func (gw *Gateway) ircInvite(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) < 2 {
		return s.numeric(ircd.ErrNeedMoreParams, "INVITE", "Not enough parameters")
	}
	nick, chanName := m.Args[0], m.Args[1]
	userID, err := s.names.SlackID(nick)
	if err != nil {
		return s.numeric(ircd.ErrNoSuchNick, nick, "No such nick")
	}
	convID, err := s.names.SlackID(chanName)
	if err != nil {
		return s.numeric(ircd.ErrNoSuchChannel, chanName, "No such channel")
	}
	if _, err := s.caller.Call(ctx, "conversations.invite", map[string]any{
		"users":   userID,
		"channel": convID,
	}); err != nil {
		return err
	}
	return s.numeric(ircd.RplInviting, nick, chanName)
}

// ircKick removes a nick from a channel.
func (gw *Gateway) ircKick(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) < 2 {
		return s.numeric(ircd.ErrNeedMoreParams, "KICK", "Not enough parameters")
	}
	chanName, nick := m.Args[0], m.Args[1]
	convID, err := s.names.SlackID(chanName)
	if err != nil {
		return s.numeric(ircd.ErrNoSuchChannel, chanName, "No such channel")
	}
	userID, err := s.names.SlackID(nick)
	if err != nil {
		return s.numeric(ircd.ErrNoSuchNick, nick, "No such nick")
	}
	if _, err := s.caller.Call(ctx, "conversations.kick", map[string]any{
		"user":    userID,
		"channel": convID,
	}); err != nil {
		return err
	}
	return s.numeric(ircd.RplInviting, nick, chanName)
}

// ircMode answers channel mode queries with an empty mode string; the remote
// platform has no mode concept to report.
func (gw *Gateway) ircMode(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) == 0 {
		return s.numeric(ircd.ErrNeedMoreParams, "MODE", "Not enough parameters")
	}
	target := m.Args[0]
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		return s.numeric(ircd.RplChannelMode, target, "+")
	}
	return nil
}

// ircList emits one list entry per public channel, paging through the full
// directory.
func (gw *Gateway) ircList(ctx context.Context, s *Session, m *ircd.Message) error {
	err := slack.Paginate(ctx, s.caller, "conversations.list", map[string]any{
		"exclude_archived": true,
		"types":            "public_channel",
		"limit":            1000,
	}, "channels", func(ch gjson.Result) error {
		return s.numeric(ircd.RplList,
			"#"+ch.Get("name").String(),
			ch.Get("num_members").String(),
			ch.Get("topic.value").String(),
		)
	})
	if err != nil {
		return err
	}
	return s.numeric(ircd.RplListEnd, "End of LIST")
}

// ircWho answers a WHO query for one nick.
func (gw *Gateway) ircWho(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) == 0 {
		return s.numeric(ircd.ErrNeedMoreParams, "WHO", "Not enough parameters")
	}
	target := m.Args[0]
	userID, err := s.names.SlackID(target)
	if err != nil {
		return s.numeric(ircd.RplEndOfWho, target, "End of WHO list")
	}
	res, err := s.caller.Call(ctx, "users.info", map[string]any{"user": userID})
	if err != nil {
		return err
	}
	realName := res.Get("user.profile.real_name").String()
	if realName == "" {
		realName = "Nobody"
	}
	if err := s.numeric(ircd.RplWhoReply,
		"#", userID, serverName, apiHost, target, "G", "0 "+realName); err != nil {
		return err
	}
	return s.numeric(ircd.RplEndOfWho, target, "End of WHO list")
}

// ircWhois answers a WHOIS query for one nick.
func (gw *Gateway) ircWhois(ctx context.Context, s *Session, m *ircd.Message) error {
	if len(m.Args) == 0 {
		return s.numeric(ircd.ErrNeedMoreParams, "WHOIS", "Not enough parameters")
	}
	target := m.Args[0]
	userID, err := s.names.SlackID(target)
	if err != nil {
		return s.numeric(ircd.ErrNoSuchNick, target, "No such nick")
	}
	res, err := s.caller.Call(ctx, "users.info", map[string]any{"user": userID})
	if err != nil {
		return err
	}
	realName := res.Get("user.real_name").String()
	if realName == "" {
		realName = res.Get("user.name").String()
	}
	return s.numeric(ircd.RplWhoisUser, target, target, serverName, "*", realName)
}

// ircAway mirrors the client's away state onto remote presence.
func (gw *Gateway) ircAway(ctx context.Context, s *Session, m *ircd.Message) error {
	presence := "auto"
	if len(m.Args) > 0 && m.Args[0] != "" {
		presence = "away"
	}
	_, err := s.caller.Call(ctx, "users.setPresence", map[string]any{"presence": presence})
	return err
}

// ircPing answers client keepalives locally.
func (gw *Gateway) ircPing(ctx context.Context, s *Session, m *ircd.Message) error {
	args := append([]string{serverName}, m.Args...)
	return s.write(serverName, "PONG", args...)
}

// ircQuit tears the session down.
func (gw *Gateway) ircQuit(ctx context.Context, s *Session, m *ircd.Message) error {
	s.teardown("client quit")
	return nil
}

// joinDebugChannel joins the local diagnostics channel; nothing remote is
// involved.
func (gw *Gateway) joinDebugChannel(s *Session) error {
	s.names.Join(debugChannel)
	s.names.AddNick(debugChannel, s.Nick())
	if err := s.write(s.Nick(), "JOIN", debugChannel); err != nil {
		return err
	}
	if err := s.numeric(ircd.RplNamReply, "=", debugChannel, s.Nick()); err != nil {
		return err
	}
	return s.numeric(ircd.RplEndOfNames, debugChannel, "End of /NAMES list")
}

// debugCommand answers dump-style commands sent to the diagnostics channel.
func (gw *Gateway) debugCommand(s *Session, text string) error {
	switch strings.TrimSpace(text) {
	case "sizes":
		names, channels, dms := s.names.Sizes()
		return s.notice(debugChannel, fmt.Sprintf(
			"names=%d channels=%d dms=%d echo=%d", names, channels, dms, s.echo.Len()))
	case "state":
		return s.notice(debugChannel, fmt.Sprintf(
			"state=%s nick=%s user=%s", s.State(), s.Nick(), s.slackUserID))
	default:
		return s.notice(debugChannel, "Commands: sizes, state")
	}
}
