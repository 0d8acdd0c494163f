// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/slircd/pkg/gateway/ircfmt"
	"github.com/aiku/slircd/pkg/gateway/slackfmt"
	"github.com/aiku/slircd/pkg/ircd"
	"github.com/aiku/slircd/pkg/slack"
)

// SessionState is a session's lifecycle phase.
type SessionState int

const (
	StateUnauth SessionState = iota
	StateIdentified
	StateHydrating
	StateReady
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateUnauth:
		return "unauth"
	case StateIdentified:
		return "identified"
	case StateHydrating:
		return "hydrating"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ircConn is the slice of ircd.Conn the session needs; tests substitute a
// line recorder.
type ircConn interface {
	WriteMessage(m *ircd.Message) error
	Close() error
}

// Session is one connected IRC client and its authenticated remote identity.
// All mutable fields besides the lock-carrying caches are confined to the
// IRC read goroutine and the RTM feed goroutine; stateMu covers the few
// fields both consult.
type Session struct {
	id  string
	gw  *Gateway
	log zerolog.Logger

	conn ircConn

	stateMu  sync.Mutex
	state    SessionState
	origNick string
	nick     string
	token    string
	cookie   string
	prefs    map[string]bool

	slackUserID string
	selfIDs     map[string]struct{}

	caller slack.Caller
	feed   slack.Feed

	names *IDMap
	echo  *EchoLedger

	readyOnce sync.Once
	readyCh   chan struct{}
	closeOnce sync.Once
	closedCh  chan struct{}

	resolveMu       sync.Mutex
	resolveInFlight map[string]struct{}
}

func newSession(gw *Gateway, conn ircConn, id string) *Session {
	log := gw.log.With().Str("session", id).Logger()
	return &Session{
		id:              id,
		gw:              gw,
		log:             log,
		conn:            conn,
		state:           StateUnauth,
		nick:            "user",
		prefs:           make(map[string]bool),
		selfIDs:         make(map[string]struct{}),
		names:           NewIDMap(log),
		echo:            NewEchoLedger(),
		readyCh:         make(chan struct{}),
		closedCh:        make(chan struct{}),
		resolveInFlight: make(map[string]struct{}),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(next SessionState) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	s.stateMu.Unlock()
	s.log.Debug().Stringer("from", prev).Stringer("to", next).Msg("Session state")
}

// Nick returns the session's current protocol nickname.
func (s *Session) Nick() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.nick
}

func (s *Session) setNick(nick string) {
	s.stateMu.Lock()
	s.nick = nick
	s.stateMu.Unlock()
}

// PrefEnabled reports whether the client enabled a session preference via
// the PASS trailer.
func (s *Session) PrefEnabled(name string) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.prefs[name]
}

// IsSelf reports whether a remote user ID resolves to this session's own
// identity, including satellite IDs such as an enterprise-grid shadow ID.
func (s *Session) IsSelf(id string) bool {
	_, ok := s.selfIDs[id]
	return ok
}

// SetReady releases the readiness latch. Single-write, many-read; later
// calls are no-ops.
func (s *Session) SetReady() {
	s.readyOnce.Do(func() {
		close(s.readyCh)
		s.setState(StateReady)
	})
}

// Ready reports whether the readiness latch has been released.
func (s *Session) Ready() bool {
	select {
	case <-s.readyCh:
		return true
	default:
		return false
	}
}

// AwaitReady blocks until hydration has finished or the session dies.
func (s *Session) AwaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-s.closedCh:
		return fmt.Errorf("session closed before ready")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alive reports whether teardown has not yet run.
func (s *Session) Alive() bool {
	select {
	case <-s.closedCh:
		return false
	default:
		return true
	}
}

// teardown runs once: flips presence away best-effort, releases the remote
// subscription, and destroys the socket. In-flight operations are abandoned,
// not canceled; late results check Alive before touching state.
func (s *Session) teardown(reason string) {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		s.log.Info().Str("reason", reason).Msg("Session closing")
		close(s.closedCh)
		if s.feed != nil {
			s.feed.Close()
		}
		if s.caller != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := s.caller.Call(ctx, "users.setPresence", map[string]any{"presence": "away"}); err != nil {
				s.log.Debug().Err(err).Msg("Best-effort away presence failed")
			}
		}
		_ = s.conn.Close()
		s.gw.dropSession(s)
	})
}

// write emits one line to the client.
func (s *Session) write(sender, cmd string, args ...string) error {
	return s.conn.WriteMessage(ircd.NewMessage(sender, cmd, args...))
}

// numeric emits a server-originated numeric reply addressed to the session
// nick.
func (s *Session) numeric(code string, args ...string) error {
	return s.write(serverName, code, append([]string{s.Nick()}, args...)...)
}

// notice emits a server-originated NOTICE to target.
func (s *Session) notice(target, text string) error {
	return s.write(serverName, "NOTICE", target, text)
}

// privmsgLines writes text as PRIVMSG lines from sender to target, one wire
// line per embedded line break.
func (s *Session) privmsgLines(sender, target, text string) error {
	for _, line := range strings.Split(text, "\n") {
		if err := s.write(sender, "PRIVMSG", target, line); err != nil {
			return err
		}
	}
	return nil
}

// actionLines writes text as CTCP ACTION lines from sender to target.
func (s *Session) actionLines(sender, target, text string) error {
	for _, line := range strings.Split(text, "\n") {
		if err := s.write(sender, "PRIVMSG", target, ircd.Ctcp(ircd.CtcpAction, line)); err != nil {
			return err
		}
	}
	return nil
}

// mapIdentity upserts a nick<->ID pair and raises a diagnostic when a second
// distinct nickname would land inside the session's own self-ID set.
func (s *Session) mapIdentity(name, id string) {
	if s.IsSelf(id) && name != s.Nick() {
		s.log.Warn().Str("name", name).Str("id", id).
			Msg("Distinct nickname maps into own self-ID set")
	}
	s.names.MapBidirectional(name, id)
}

// ircNameFor resolves a remote ID to its IRC-side name, fetching through the
// API on a cache miss and caching the result. The ID namespace prefix picks
// the lookup call: users, bots, or conversations.
func (s *Session) ircNameFor(ctx context.Context, id string) (string, error) {
	if name, ok := s.names.IRCName(id); ok {
		return name, nil
	}
	if id == "" {
		return "", ErrNotMapped
	}

	var name string
	switch id[0] {
	case 'U', 'W':
		res, err := s.caller.Call(ctx, "users.info", map[string]any{"user": id})
		if err != nil {
			return "", err
		}
		name = res.Get("user.name").String()
	case 'B':
		res, err := s.caller.Call(ctx, "bots.info", map[string]any{"bot": id})
		if err != nil {
			return "", err
		}
		name = res.Get("bot.name").String()
	case 'C', 'D', 'G':
		res, err := s.caller.Call(ctx, "conversations.info", map[string]any{"channel": id})
		if err != nil {
			return "", err
		}
		if n := res.Get("channel.name").String(); n != "" {
			name = "#" + n
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrNotMapped, id)
	}
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrNotMapped, id)
	}

	if !s.Alive() {
		// Torn-down session: don't repopulate a dead cache.
		return name, nil
	}
	s.mapIdentity(name, id)
	return name, nil
}

// resolveAsync fires a detached resolution attempt for an unknown ID seen in
// message markup. At most one attempt per ID is in flight; the task has its
// own error boundary and only performs idempotent map upserts.
func (s *Session) resolveAsync(id string) {
	s.resolveMu.Lock()
	if _, busy := s.resolveInFlight[id]; busy {
		s.resolveMu.Unlock()
		return
	}
	s.resolveInFlight[id] = struct{}{}
	s.resolveMu.Unlock()

	go func() {
		defer func() {
			s.resolveMu.Lock()
			delete(s.resolveInFlight, id)
			s.resolveMu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.ircNameFor(ctx, id); err != nil {
			s.log.Debug().Err(err).Str("id", id).Msg("Background resolution failed")
		}
	}()
}

// ircize renders Slack markup as IRC text for this session.
func (s *Session) ircize(text string) string {
	return slackfmt.Ircize(slackResolver{s}, text)
}

// slackize renders IRC text as Slack markup for this session.
func (s *Session) slackize(text string) string {
	return ircfmt.Slackize(ircResolver{s}, text)
}

// slackResolver adapts the session map to slackfmt.Resolver.
type slackResolver struct{ s *Session }

func (r slackResolver) NameForID(id string) (string, bool) {
	return r.s.names.IRCName(id)
}

func (r slackResolver) ResolveAsync(id string) {
	r.s.resolveAsync(id)
}

// ircResolver adapts the session map to ircfmt.Resolver.
type ircResolver struct{ s *Session }

func (r ircResolver) UserID(nick string) (string, bool) {
	id, err := r.s.names.SlackID(nick)
	if err != nil {
		return "", false
	}
	switch id[0] {
	case 'U', 'W', 'B':
		return id, true
	}
	return "", false
}

func (r ircResolver) GroupID(handle string) (string, bool) {
	id, err := r.s.names.SlackID("@" + handle)
	if err != nil || !strings.HasPrefix(id, "S") {
		return "", false
	}
	return id, true
}

func (r ircResolver) ChannelID(name string) (string, bool) {
	id, err := r.s.names.SlackID("#" + name)
	if err != nil {
		return "", false
	}
	return id, true
}
