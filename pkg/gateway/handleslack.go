// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aiku/slircd/pkg/ircd"
	"github.com/aiku/slircd/pkg/slack"
)

// Session preference names accepted on the PASS trailer.
const (
	prefNoThreads       = "no-threads"
	prefNoReactions     = "no-reactions"
	prefTyping          = "typing-notifications"
	prefPresence        = "presence"
	prefShortGroupNames = "short-group-chat-names"
	prefDebug           = "debug"
)

// slackReady runs the workspace hydration pass.
func (gw *Gateway) slackReady(s *Session, ev slack.Event) error {
	s.setState(StateHydrating)
	return gw.hydrate(context.Background(), s)
}

// slackMessage relays one inbound message event. Events attributed to the
// session's own identity are checked against the echo ledger first so its
// own sends are not displayed twice.
func (gw *Gateway) slackMessage(s *Session, ev slack.Event) error {
	ctx := context.Background()
	d := ev.Data
	convID := d.Get("channel").String()

	subtype := d.Get("subtype").String()
	body := d
	switch subtype {
	case "message_changed":
		body = d.Get("message")
	case "message_deleted":
		body = d.Get("previous_message")
	}

	senderID := body.Get("user").String()
	if senderID == "" {
		senderID = body.Get("bot_id").String()
	}
	if senderID == "" {
		s.log.Debug().Str("subtype", subtype).Msg("Message with no sender, dropped")
		return nil
	}

	if s.IsSelf(senderID) && s.echo.SuppressIncoming(EchoKey(convID, d.Get("ts").String())) {
		return nil
	}

	sender, target, err := gw.routeTarget(ctx, s, convID, senderID)
	if err != nil {
		return err
	}

	threadTS := d.Get("thread_ts").String()
	if threadTS != "" && threadTS != d.Get("ts").String() {
		if s.PrefEnabled(prefNoThreads) {
			return nil
		}
	} else {
		threadTS = ""
	}

	switch subtype {
	case "me_message":
		return s.actionLines(sender, target, s.ircize(body.Get("text").String()))
	case "message_deleted":
		text := "deletes:" + fileLines(body)
		return s.actionLines(sender, target, text)
	case "message_changed":
		text := "edits: " + s.ircize(body.Get("text").String()) + fileLines(body)
		return s.actionLines(sender, target, text)
	case "channel_topic":
		return s.numeric(ircd.RplTopic, target, d.Get("topic").String())
	default:
		text := s.ircize(body.Get("text").String()) + fileLines(body)
		if threadTS != "" {
			text = "@thread-" + threadTS + " " + text
		}
		return s.privmsgLines(sender, target, text)
	}
}

// fileLines renders attached file URLs as quoted lines.
func fileLines(body gjson.Result) string {
	var b strings.Builder
	body.Get("files").ForEach(func(_, f gjson.Result) bool {
		if url := f.Get("url_private").String(); url != "" {
			b.WriteString("\n> " + url)
		}
		return true
	})
	return b.String()
}

// routeTarget decides the sender prefix and target of an inbound line. For
// direct conversations the target flips depending on which side spoke, so
// messages sent from another client of the same account render as outgoing.
func (gw *Gateway) routeTarget(ctx context.Context, s *Session, convID, senderID string) (sender, target string, err error) {
	if strings.HasPrefix(convID, "D") {
		info, err := s.caller.Call(ctx, "conversations.info", map[string]any{"channel": convID})
		if err != nil {
			return "", "", err
		}
		if !info.Get("channel.is_im").Bool() {
			return "", "", fmt.Errorf("conversation %s is not direct", convID)
		}
		otherID := info.Get("channel.user").String()
		otherNick, err := s.ircNameFor(ctx, otherID)
		if err != nil {
			return "", "", err
		}
		if s.IsSelf(senderID) {
			return s.Nick(), otherNick, nil
		}
		return otherNick, s.Nick(), nil
	}

	chanName, err := s.ircNameFor(ctx, convID)
	if err != nil {
		return "", "", err
	}
	sender, err = s.ircNameFor(ctx, senderID)
	if err != nil {
		return "", "", err
	}
	return sender, chanName, nil
}

// slackChannelJoined announces a newly joined channel, group, or group DM.
// The event payload carries either a channel object or a bare ID.
func (gw *Gateway) slackChannelJoined(s *Session, ev slack.Event) error {
	ctx := context.Background()
	convID := ev.Data.Get("channel.id").String()
	if convID == "" {
		convID = ev.Data.Get("channel").String()
	}
	if convID == "" {
		return fmt.Errorf("join event with no conversation id")
	}

	info, err := s.caller.Call(ctx, "conversations.info", map[string]any{"channel": convID})
	if err != nil {
		return err
	}
	chanName := s.channelNameFor(info.Get("channel.name").String())
	if s.names.IsMember(chanName) {
		return nil
	}
	s.mapIdentity(chanName, convID)

	memberIDs, err := gw.fetchMembers(ctx, s, convID)
	if err != nil {
		return err
	}
	return gw.announceChannel(ctx, s, chanName, info.Get("channel.topic.value").String(), memberIDs)
}

// slackChannelLeft confirms departure remotely and parts the client.
func (gw *Gateway) slackChannelLeft(s *Session, ev slack.Event) error {
	ctx := context.Background()
	convID := ev.Data.Get("channel").String()
	chanName, ok := s.names.IRCName(convID)
	if !ok {
		return fmt.Errorf("left unknown conversation %s", convID)
	}
	if _, err := s.caller.Call(ctx, "conversations.leave", map[string]any{"channel": convID}); err != nil {
		return err
	}
	s.names.Part(chanName)
	return s.write(s.Nick(), "PART", chanName)
}

// slackChannelRename re-homes a channel under its new name: part the old
// name, then replay the join sequence with fresh topic and membership.
func (gw *Gateway) slackChannelRename(s *Session, ev slack.Event) error {
	ctx := context.Background()
	convID := ev.Data.Get("channel.id").String()
	newName := s.channelNameFor(ev.Data.Get("channel.name").String())

	oldName, known := s.names.IRCName(convID)
	if known && oldName == newName {
		return nil
	}
	s.mapIdentity(newName, convID)

	if known && s.names.Part(oldName) {
		if err := s.write(s.Nick(), "PART", oldName); err != nil {
			return err
		}
	}

	info, err := s.caller.Call(ctx, "conversations.info", map[string]any{"channel": convID})
	if err != nil {
		return err
	}
	memberIDs, err := gw.fetchMembers(ctx, s, convID)
	if err != nil {
		return err
	}
	return gw.announceChannel(ctx, s, newName, info.Get("channel.topic.value").String(), memberIDs)
}

// slackMemberJoined adds a nick to a tracked channel.
func (gw *Gateway) slackMemberJoined(s *Session, ev slack.Event) error {
	ctx := context.Background()
	chanName, nick, err := gw.memberEvent(ctx, s, ev)
	if err != nil {
		return err
	}
	if s.names.AddNick(chanName, nick) {
		return s.write(nick, "JOIN", chanName)
	}
	return nil
}

// slackMemberLeft removes a nick from a tracked channel.
func (gw *Gateway) slackMemberLeft(s *Session, ev slack.Event) error {
	ctx := context.Background()
	chanName, nick, err := gw.memberEvent(ctx, s, ev)
	if err != nil {
		return err
	}
	if s.names.RemoveNick(chanName, nick) {
		return s.write(nick, "PART", chanName)
	}
	return nil
}

func (gw *Gateway) memberEvent(ctx context.Context, s *Session, ev slack.Event) (chanName, nick string, err error) {
	chanName, err = s.ircNameFor(ctx, ev.Data.Get("channel").String())
	if err != nil {
		return "", "", err
	}
	nick, err = s.ircNameFor(ctx, ev.Data.Get("user").String())
	if err != nil {
		return "", "", err
	}
	return chanName, nick, nil
}

// slackReactionAdded renders a reaction as an action line. A missing author
// on the reacted item is backfilled from one history entry; if that also
// fails the event is dropped with a diagnostic.
func (gw *Gateway) slackReactionAdded(s *Session, ev slack.Event) error {
	return gw.reaction(s, ev, "reacts")
}

func (gw *Gateway) slackReactionRemoved(s *Session, ev slack.Event) error {
	return gw.reaction(s, ev, "unreacts")
}

func (gw *Gateway) reaction(s *Session, ev slack.Event, verb string) error {
	if s.PrefEnabled(prefNoReactions) {
		return nil
	}
	if ev.Data.Get("item.type").String() != "message" {
		return nil
	}
	ctx := context.Background()
	convID := ev.Data.Get("item.channel").String()

	itemUser := ev.Data.Get("item_user").String()
	if itemUser == "" {
		hist, err := s.caller.Call(ctx, "conversations.history", map[string]any{
			"channel":   convID,
			"latest":    ev.Data.Get("item.ts").String(),
			"inclusive": true,
			"limit":     1,
		})
		if err != nil {
			return err
		}
		itemUser = hist.Get("messages.0.user").String()
		if itemUser == "" {
			s.log.Debug().Str("channel", convID).Msg("Reaction on authorless item, dropped")
			return nil
		}
	}

	sender, target, err := gw.routeTarget(ctx, s, convID, ev.Data.Get("user").String())
	if err != nil {
		return err
	}
	itemNick, err := s.ircNameFor(ctx, itemUser)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s @ %s :%s:", verb, itemNick, ev.Data.Get("reaction").String())
	return s.actionLines(sender, target, text)
}

// slackSubteam maps a user group's handle on create and update.
func (gw *Gateway) slackSubteam(s *Session, ev slack.Event) error {
	id := ev.Data.Get("subteam.id").String()
	handle := ev.Data.Get("subteam.handle").String()
	if id == "" || handle == "" {
		return fmt.Errorf("subteam event missing id or handle")
	}
	s.names.MapBidirectional("@"+strings.TrimPrefix(handle, "@"), id)
	return nil
}

// slackUserTyping forwards a typing indicator when the client opted in.
func (gw *Gateway) slackUserTyping(s *Session, ev slack.Event) error {
	if !s.PrefEnabled(prefTyping) {
		return nil
	}
	ctx := context.Background()
	sender, target, err := gw.routeTarget(ctx, s, ev.Data.Get("channel").String(), ev.Data.Get("user").String())
	if err != nil {
		return err
	}
	return s.write(sender, "PRIVMSG", target, ircd.Ctcp(ircd.CtcpTyping, "1"))
}

// slackPresenceChange mirrors remote presence onto a voice mode flag in
// every common channel, when the client opted in.
func (gw *Gateway) slackPresenceChange(s *Session, ev slack.Event) error {
	if !s.PrefEnabled(prefPresence) {
		return nil
	}
	nick, ok := s.names.IRCName(ev.Data.Get("user").String())
	if !ok {
		return nil
	}
	mode := "-v"
	if ev.Data.Get("presence").String() == "active" {
		mode = "+v"
	}
	for _, chanName := range s.names.Channels() {
		if !s.names.IsNickPresent(chanName, nick) {
			continue
		}
		if err := s.write(serverName, "MODE", chanName, mode, nick); err != nil {
			return err
		}
	}
	return nil
}

// slackTeamJoin maps a newly joined workspace member.
func (gw *Gateway) slackTeamJoin(s *Session, ev slack.Event) error {
	id := ev.Data.Get("user.id").String()
	name := ev.Data.Get("user.name").String()
	if id == "" || name == "" {
		return fmt.Errorf("team_join event missing id or name")
	}
	s.mapIdentity(name, id)
	return nil
}

// channelNameFor renders a remote conversation name as a protocol channel
// name. Group DM names get their marker prefix stripped down to the other
// participants when the short-names preference is on.
func (s *Session) channelNameFor(name string) string {
	if strings.HasPrefix(name, "mpdm-") && s.PrefEnabled(prefShortGroupNames) {
		parts := strings.Split(strings.TrimPrefix(name, "mpdm-"), "--")
		others := parts[:0]
		for _, p := range parts {
			if p != s.Nick() {
				others = append(others, p)
			}
		}
		return "&" + strings.Join(others, "-")
	}
	return "#" + name
}
