// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/aiku/slircd/pkg/ircd"
	"github.com/aiku/slircd/pkg/slack"
)

// hydrateWorkers bounds concurrent membership fetches during bring-up.
const hydrateWorkers = 8

// pendingChannel is one membership fetch registered during the channel
// listing pass.
type pendingChannel struct {
	name   string
	convID string
	topic  string
}

type memberResult struct {
	ch  pendingChannel
	ids []string
	err error
}

// hydrate performs the workspace bring-up: roster, channel directory,
// presence, user groups, then per-channel membership announcements drained
// in completion order so one slow channel cannot stall the rest. Failures
// are logged and skip only the affected fetch. The readiness latch is
// released unconditionally.
func (gw *Gateway) hydrate(ctx context.Context, s *Session) error {
	defer s.SetReady()

	s.stateMu.Lock()
	origNick, nick := s.origNick, s.nick
	s.stateMu.Unlock()
	if origNick != "" && origNick != nick {
		if err := s.write(origNick, "NICK", nick); err != nil {
			return err
		}
	}

	gw.hydrateUsers(ctx, s)
	pending := gw.hydrateChannels(ctx, s)

	if _, err := s.caller.Call(ctx, "users.setPresence", map[string]any{"presence": "auto"}); err != nil {
		s.log.Warn().Err(err).Msg("Presence bring-up failed")
	}

	gw.hydrateUsergroups(ctx, s)
	gw.drainMemberships(ctx, s, pending)

	if err := s.numeric(ircd.RplWelcome, serverName); err != nil {
		return err
	}
	if err := s.numeric(ircd.RplEndOfMotd, "End of MOTD"); err != nil {
		return err
	}
	if s.PrefEnabled(prefDebug) {
		return gw.joinDebugChannel(s)
	}
	return nil
}

// hydrateUsers pages the full user roster into the identity map. A nickname
// claimed by two distinct IDs keeps its first mapping; the later ID still
// resolves to the nickname for display.
func (gw *Gateway) hydrateUsers(ctx context.Context, s *Session) {
	err := slack.Paginate(ctx, s.caller, "users.list",
		map[string]any{"limit": 1000}, "members",
		func(member gjson.Result) error {
			id := member.Get("id").String()
			name := member.Get("name").String()
			if id == "" || name == "" {
				return nil
			}
			if existing, err := s.names.SlackID(name); err == nil && existing != id {
				s.log.Warn().Str("name", name).Str("id", id).Str("existing_id", existing).
					Msg("Duplicate nickname in roster, keeping first mapping")
				s.names.MapAlias(name, id)
				return nil
			}
			s.mapIdentity(name, id)
			return nil
		})
	if err != nil {
		s.log.Warn().Err(err).Msg("User roster hydration failed")
	}
}

// hydrateChannels pages the channel directory, maps every live channel by
// name, and registers a membership fetch for each channel the session is in.
func (gw *Gateway) hydrateChannels(ctx context.Context, s *Session) []pendingChannel {
	var pending []pendingChannel
	err := slack.Paginate(ctx, s.caller, "conversations.list",
		map[string]any{"types": "public_channel,private_channel,mpim", "limit": 1000}, "channels",
		func(ch gjson.Result) error {
			if ch.Get("is_archived").Bool() {
				return nil
			}
			if ch.Get("is_mpim").Bool() && !ch.Get("is_open").Bool() {
				return nil
			}
			convID := ch.Get("id").String()
			name := s.channelNameFor(ch.Get("name").String())
			s.mapIdentity(name, convID)
			if ch.Get("is_member").Bool() {
				pending = append(pending, pendingChannel{
					name:   name,
					convID: convID,
					topic:  ch.Get("topic.value").String(),
				})
			}
			return nil
		})
	if err != nil {
		s.log.Warn().Err(err).Msg("Channel directory hydration failed")
	}
	return pending
}

// hydrateUsergroups maps group handles and records the session's own group
// affiliations.
func (gw *Gateway) hydrateUsergroups(ctx context.Context, s *Session) {
	err := slack.Paginate(ctx, s.caller, "usergroups.list", map[string]any{
		"include_count":    false,
		"include_disabled": false,
		"include_users":    true,
		"limit":            1000,
	}, "usergroups", func(group gjson.Result) error {
		id := group.Get("id").String()
		handle := group.Get("handle").String()
		if id == "" || handle == "" {
			return nil
		}
		if handle[0] != '@' {
			handle = "@" + handle
		}
		s.names.MapBidirectional(handle, id)
		group.Get("users").ForEach(func(_, u gjson.Result) bool {
			if s.IsSelf(u.String()) {
				s.log.Debug().Str("group", handle).Msg("Member of user group")
				return false
			}
			return true
		})
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("User group hydration failed")
	}
}

// drainMemberships fetches member lists with bounded concurrency and
// announces each channel as soon as its fetch completes, in completion
// order. A channel whose mapping changed while the fetch was in flight
// (renamed mid-bringup) is dropped rather than announced under a stale name.
func (gw *Gateway) drainMemberships(ctx context.Context, s *Session, pending []pendingChannel) {
	if len(pending) == 0 {
		return
	}
	sem := make(chan struct{}, hydrateWorkers)
	results := make(chan memberResult)
	for _, ch := range pending {
		ch := ch
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			ids, err := gw.fetchMembers(ctx, s, ch.convID)
			results <- memberResult{ch: ch, ids: ids, err: err}
		}()
	}
	for range pending {
		res := <-results
		if res.err != nil {
			s.log.Warn().Err(res.err).Str("channel", res.ch.name).
				Msg("Membership fetch failed, channel skipped")
			continue
		}
		if current, err := s.names.SlackID(res.ch.name); err != nil || current != res.ch.convID {
			s.log.Debug().Str("channel", res.ch.name).Msg("Mapping changed mid-bringup, skipped")
			continue
		}
		if err := gw.announceChannel(ctx, s, res.ch.name, res.ch.topic, res.ids); err != nil {
			s.log.Warn().Err(err).Str("channel", res.ch.name).Msg("Channel announce failed")
		}
	}
}
