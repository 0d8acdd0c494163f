// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/aiku/slircd/pkg/ircd"
	"github.com/aiku/slircd/pkg/slack"
)

// scriptedCall is one expected API call and its canned response.
type scriptedCall struct {
	method string
	params map[string]any
	result string
}

// scriptedCaller matches calls against a script of expectations, in any
// order, consuming each expectation once. Unexpected calls fail the test.
type scriptedCaller struct {
	t  *testing.T
	mu sync.Mutex

	expected []scriptedCall
}

func newScriptedCaller(t *testing.T) *scriptedCaller {
	return &scriptedCaller{t: t}
}

func (c *scriptedCaller) expect(method string, params map[string]any, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expected = append(c.expected, scriptedCall{method: method, params: params, result: result})
}

func (c *scriptedCaller) Call(_ context.Context, method string, params map[string]any) (gjson.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, exp := range c.expected {
		if exp.method != method || !reflect.DeepEqual(exp.params, params) {
			continue
		}
		c.expected = append(c.expected[:i], c.expected[i+1:]...)
		payload := gjson.Parse(exp.result)
		if !payload.Get("ok").Bool() {
			return payload, &slack.APIError{
				Method: method,
				Params: params,
				Reason: payload.Get("error").String(),
			}
		}
		return payload, nil
	}
	c.t.Errorf("unexpected API call %s(%v)", method, params)
	return gjson.Result{}, &slack.APIError{Method: method, Reason: "unexpected_call"}
}

// remaining reports how many expectations are still unconsumed.
func (c *scriptedCaller) remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expected)
}

// done asserts every expectation was consumed.
func (c *scriptedCaller) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, exp := range c.expected {
		c.t.Errorf("expected API call never made: %s(%v)", exp.method, exp.params)
	}
}

// fakeFeed is a hand-driven event feed.
type fakeFeed struct {
	ch        chan slack.Event
	closeOnce sync.Once
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan slack.Event, 16)}
}

func (f *fakeFeed) Events() <-chan slack.Event { return f.ch }

func (f *fakeFeed) Close() {
	f.closeOnce.Do(func() { close(f.ch) })
}

// lineConn records serialized lines instead of writing to a socket.
type lineConn struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineConn) WriteMessage(m *ircd.Message) error {
	line, err := m.Line()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	return nil
}

func (c *lineConn) Close() error { return nil }

// takeLines drains and returns everything written since the last call.
func (c *lineConn) takeLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.lines
	c.lines = nil
	return out
}

// snapshot copies the written lines without draining them, for polling on
// output produced by a background goroutine.
func (c *lineConn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

// callerFunc adapts a function to slack.Caller, for per-test interception.
type callerFunc func(ctx context.Context, method string, params map[string]any) (gjson.Result, error)

func (f callerFunc) Call(ctx context.Context, method string, params map[string]any) (gjson.Result, error) {
	return f(ctx, method, params)
}

// testClient is one connected session plus its mock transports.
type testClient struct {
	t      *testing.T
	gw     *Gateway
	s      *Session
	conn   *lineConn
	caller *scriptedCaller
	feed   *fakeFeed

	// wrapCaller, when set before register, intercepts the session's API
	// calls on their way to the scripted caller.
	wrapCaller func(inner slack.Caller) slack.Caller
}

// newTestClient builds a gateway with mock transports and an unregistered
// session.
func newTestClient(t *testing.T) *testClient {
	t.Helper()

	caller := newScriptedCaller(t)
	feed := newFakeFeed()
	gw := New(Config{Insecure: true, Port: 6667, MaxLineLen: 1024}, zerolog.Nop())

	conn := &lineConn{}
	s := newSession(gw, conn, "test-session")
	gw.sessions[conn] = s
	tc := &testClient{t: t, gw: gw, s: s, conn: conn, caller: caller, feed: feed}

	gw.newCaller = func(_, _ string, _ zerolog.Logger) slack.Caller {
		if tc.wrapCaller != nil {
			return tc.wrapCaller(caller)
		}
		return caller
	}
	gw.newFeed = func(_ context.Context, _ slack.Caller, _ zerolog.Logger) (slack.Feed, error) {
		return feed, nil
	}
	return tc
}

// register drives NICK/PASS/USER through dispatch against scripted
// authentication, leaving the session identified but not hydrated.
func (tc *testClient) register(prefs ...string) {
	tc.t.Helper()

	tc.caller.expect("auth.test", nil,
		`{"ok":true,"user_id":"U1234USER"}`)
	tc.caller.expect("users.info", map[string]any{"user": "U1234USER"},
		`{"ok":true,"user":{"name":"test_slack_user","enterprise_user":{"id":"W1234USER"}}}`)

	tc.irc("NICK", "test_orig_nick")
	tc.irc("PASS", append([]string{"test_token"}, prefs...)...)
	tc.irc("USER", "test_irc_user")
}

// connectTestClient brings a client through the whole registration and
// hydration sequence against a scripted workspace and asserts the connect
// burst line for line.
func connectTestClient(t *testing.T, prefs ...string) *testClient {
	t.Helper()

	tc := newTestClient(t)
	caller := tc.caller
	s := tc.s

	caller.expect("users.list", map[string]any{"limit": 1000}, `{"ok":true,"members":[
		{"id":"U1234USER","name":"test_slack_user","deleted":false},
		{"id":"U1235FOOO","name":"test_slack_fooo","deleted":false},
		{"id":"U1235BARR","name":"test_slack_barr","deleted":false},
		{"id":"U1235BAZZ","name":"test_slack_bazz","deleted":false},
		{"id":"U1235QUUX","name":"test_slack_quux","deleted":false},
		{"id":"U1235QUU2","name":"test_slack_quux","deleted":false}]}`)
	caller.expect("conversations.list",
		map[string]any{"types": "public_channel,private_channel,mpim", "limit": 1000},
		`{"ok":true,"channels":[
			{"id":"C1234CHAN1","name":"test_chan_1","is_member":true,"topic":{"value":"topic1"}},
			{"id":"C1235CHAN2","name":"test_chan_2","is_member":false,"topic":{"value":"topic2"}}]}`)
	caller.expect("users.setPresence", map[string]any{"presence": "auto"}, `{"ok":true}`)
	caller.expect("usergroups.list",
		map[string]any{"include_count": false, "include_disabled": false, "include_users": true, "limit": 1000},
		`{"ok":true,"usergroups":[
			{"id":"S1234GRP1","handle":"@group1","users":["W1234USER"]},
			{"id":"S1234GRP2","handle":"@group2"}]}`)
	caller.expect("conversations.members", map[string]any{"channel": "C1234CHAN1", "limit": 1000},
		`{"ok":true,"members":["U1234USER","U1235FOOO","U1235BARR"]}`)

	tc.register(prefs...)
	tc.slack("ready", `{}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.AwaitReady(ctx); err != nil {
		t.Fatalf("session never became ready: %v", err)
	}

	want := []string{
		":test_orig_nick NICK test_slack_user",
		":test_slack_user JOIN #test_chan_1",
		":slircd 332 test_slack_user #test_chan_1 topic1",
		":slircd 353 test_slack_user = #test_chan_1 :test_slack_user test_slack_user test_slack_fooo test_slack_barr",
		":slircd 366 test_slack_user #test_chan_1 :End of /NAMES list",
		":slircd 001 test_slack_user slircd",
		":slircd 376 test_slack_user :End of MOTD",
	}
	for _, pref := range prefs {
		if pref == "debug" {
			want = append(want,
				":test_slack_user JOIN &slircd",
				":slircd 353 test_slack_user = &slircd test_slack_user",
				":slircd 366 test_slack_user &slircd :End of /NAMES list",
			)
		}
	}
	tc.expectLines(want...)
	caller.done()
	return tc
}

// irc dispatches a client command as if read from the socket.
func (tc *testClient) irc(cmd string, args ...string) {
	tc.t.Helper()
	tc.gw.dispatchIRC(tc.s, ircd.NewMessage("", cmd, args...))
}

// slack dispatches one feed event synchronously.
func (tc *testClient) slack(eventType, payload string) {
	tc.t.Helper()
	tc.gw.dispatchSlack(tc.s, slack.Event{Type: eventType, Data: gjson.Parse(payload)})
}

// expectLines asserts the lines written since the last drain, in order.
func (tc *testClient) expectLines(want ...string) {
	tc.t.Helper()
	got := tc.conn.takeLines()
	if len(got) != len(want) {
		tc.t.Fatalf("wrote %d lines, want %d\ngot:  %q\nwant: %q", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			tc.t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// expectNoLines asserts nothing was written since the last drain.
func (tc *testClient) expectNoLines() {
	tc.t.Helper()
	if got := tc.conn.takeLines(); len(got) != 0 {
		tc.t.Errorf("expected no lines, got %q", got)
	}
}

// waitDrained polls until every scripted call has been consumed, for flows
// that finish on a background goroutine.
func (tc *testClient) waitDrained() {
	tc.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for tc.caller.remaining() > 0 {
		if time.Now().After(deadline) {
			tc.t.Fatalf("scripted calls never drained, %d left", tc.caller.remaining())
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitUntil polls cond with a deadline, for assertions on background work.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
