// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/slircd/pkg/ircd"
	"github.com/aiku/slircd/pkg/slack"
)

// serverName is the sender prefix on server-originated lines.
const serverName = "slircd"

// debugChannel is the local-only diagnostics channel.
const debugChannel = "&slircd"

type ircHandler func(ctx context.Context, s *Session, m *ircd.Message) error

type slackHandler func(s *Session, ev slack.Event) error

// Gateway owns all live sessions and routes both protocol streams into
// per-session handlers. IRC lines are handled inline on the connection's
// read goroutine; feed events inline on the session's feed goroutine.
type Gateway struct {
	cfg Config
	log zerolog.Logger

	// Seams for tests; production wiring lives in New.
	newCaller func(token, cookie string, log zerolog.Logger) slack.Caller
	newFeed   func(ctx context.Context, c slack.Caller, log zerolog.Logger) (slack.Feed, error)

	mu       sync.Mutex
	sessions map[ircConn]*Session

	ircHandlers   map[string]ircHandler
	slackHandlers map[string]slackHandler

	// gated commands wait for workspace hydration before running.
	gated map[string]bool
}

// New creates a gateway with production Slack wiring.
func New(cfg Config, log zerolog.Logger) *Gateway {
	gw := &Gateway{
		cfg: cfg,
		log: log.With().Str("component", "gateway").Logger(),
		newCaller: func(token, cookie string, log zerolog.Logger) slack.Caller {
			opts := []slack.ClientOption{}
			if cookie != "" {
				opts = append(opts, slack.WithCookie(cookie))
			}
			return slack.NewClient(token, log, opts...)
		},
		newFeed: func(ctx context.Context, c slack.Caller, log zerolog.Logger) (slack.Feed, error) {
			rtm := slack.NewRTM(c, log)
			if err := rtm.Start(ctx); err != nil {
				return nil, err
			}
			return rtm, nil
		},
		sessions: make(map[ircConn]*Session),
	}
	gw.ircHandlers = map[string]ircHandler{
		"PASS":    gw.ircPass,
		"NICK":    gw.ircNick,
		"USER":    gw.ircUser,
		"JOIN":    gw.ircJoin,
		"PART":    gw.ircPart,
		"PRIVMSG": gw.ircPrivmsg,
		"TOPIC":   gw.ircTopic,
		"INVITE":  gw.ircInvite,
		"KICK":    gw.ircKick,
		"MODE":    gw.ircMode,
		"LIST":    gw.ircList,
		"WHO":     gw.ircWho,
		"WHOIS":   gw.ircWhois,
		"AWAY":    gw.ircAway,
		"PING":    gw.ircPing,
		"QUIT":    gw.ircQuit,
	}
	gw.gated = map[string]bool{
		"JOIN": true, "PART": true, "PRIVMSG": true, "TOPIC": true,
		"INVITE": true, "KICK": true, "MODE": true, "LIST": true,
		"WHO": true, "WHOIS": true, "AWAY": true,
	}
	gw.slackHandlers = map[string]slackHandler{
		"ready":                 gw.slackReady,
		"message":               gw.slackMessage,
		"channel_joined":        gw.slackChannelJoined,
		"group_joined":          gw.slackChannelJoined,
		"mpim_open":             gw.slackChannelJoined,
		"channel_left":          gw.slackChannelLeft,
		"group_left":            gw.slackChannelLeft,
		"channel_rename":        gw.slackChannelRename,
		"group_rename":          gw.slackChannelRename,
		"member_joined_channel": gw.slackMemberJoined,
		"member_left_channel":   gw.slackMemberLeft,
		"reaction_added":        gw.slackReactionAdded,
		"reaction_removed":      gw.slackReactionRemoved,
		"subteam_created":       gw.slackSubteam,
		"subteam_updated":       gw.slackSubteam,
		"user_typing":           gw.slackUserTyping,
		"presence_change":       gw.slackPresenceChange,
		"team_join":             gw.slackTeamJoin,
	}
	return gw
}

// HandleConnect implements ircd.Handler.
func (gw *Gateway) HandleConnect(conn *ircd.Conn) {
	s := newSession(gw, conn, uuid.NewString())
	gw.mu.Lock()
	gw.sessions[conn] = s
	gw.mu.Unlock()
	s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("Client connected")
}

// HandleLine implements ircd.Handler.
func (gw *Gateway) HandleLine(conn *ircd.Conn, line string) {
	s := gw.session(conn)
	if s == nil {
		// Lifecycle invariant: every line belongs to a connected session.
		gw.log.Error().Str("line", line).Msg("Line from connection with no session")
		_ = conn.Close()
		return
	}
	m, err := ircd.ParseLine(line)
	if err != nil {
		s.log.Debug().Err(err).Str("line", line).Msg("Unparseable line")
		return
	}
	gw.dispatchIRC(s, m)
}

// HandleClose implements ircd.Handler.
func (gw *Gateway) HandleClose(conn *ircd.Conn, err error) {
	s := gw.session(conn)
	if s == nil {
		return
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("Read loop ended")
	}
	s.teardown("connection closed")
}

func (gw *Gateway) session(conn ircConn) *Session {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.sessions[conn]
}

func (gw *Gateway) dropSession(s *Session) {
	gw.mu.Lock()
	delete(gw.sessions, s.conn)
	gw.mu.Unlock()
}

// dispatchIRC routes one parsed client command. Gated commands block the
// read goroutine on the readiness latch, which preserves client command
// order across the hydration boundary.
func (gw *Gateway) dispatchIRC(s *Session, m *ircd.Message) {
	h, ok := gw.ircHandlers[m.Cmd]
	if !ok {
		if err := s.numeric(ircd.ErrUnknownCommand, m.Cmd, "Unknown command"); err != nil {
			s.log.Debug().Err(err).Msg("Numeric write failed")
		}
		return
	}
	ctx := context.Background()
	if gw.gated[m.Cmd] {
		if err := s.AwaitReady(ctx); err != nil {
			s.log.Debug().Err(err).Str("cmd", m.Cmd).Msg("Command dropped, session never became ready")
			return
		}
	}
	if err := h(ctx, s, m); err != nil {
		s.log.Error().Err(err).Str("cmd", m.Cmd).Msg("Command failed")
	}
}

// runFeed drains the session's event feed until it closes, then tears the
// session down so the client reconnects rather than idling deaf.
func (gw *Gateway) runFeed(s *Session) {
	for ev := range s.feed.Events() {
		gw.dispatchSlack(s, ev)
	}
	s.teardown("event feed ended")
}

func (gw *Gateway) dispatchSlack(s *Session, ev slack.Event) {
	h, ok := gw.slackHandlers[ev.Type]
	if !ok {
		s.log.Trace().Str("type", ev.Type).Msg("Unhandled event type")
		return
	}
	if err := h(s, ev); err != nil {
		s.log.Error().Err(err).Str("type", ev.Type).Msg("Event handling failed")
	}
}
