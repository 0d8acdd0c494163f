// Copyright 2024-2026 Aiku AI

// Package gateway implements the per-session translation engine between the
// IRC server protocol and the Slack Web API / RTM event feed.
//
// Each connecting IRC client gets one [Session]: an authenticated identity
// against the remote workspace, a bidirectional name/ID cache ([IDMap]), a
// self-echo suppression ledger ([EchoLedger]), and a readiness latch that
// gates most commands until workspace hydration completes.
//
// # Dispatch
//
// [Gateway] owns two closed dispatch tables built at startup: IRC command
// name to handler and RTM event type to handler. IRC lines are handled on
// the connection's read goroutine and RTM events on the session's feed
// goroutine, so handlers for one session never race each other within a
// stream; the structures touched from both streams (IDMap, EchoLedger) carry
// their own locks. A handler error becomes a session-scoped diagnostic
// notice, never a process failure.
//
// # Hydration
//
// On the feed's ready event the session hydrates: paginated user, usergroup,
// and conversation listings populate the IDMap, then channel membership is
// fetched with bounded concurrency and drained in completion order so one
// slow channel cannot stall bring-up. Readiness is signaled unconditionally
// once the pass finishes, including after partial failure.
//
// # Sub-packages
//
//   - ircfmt converts IRC text to Slack markup ("slackize").
//   - slackfmt converts Slack markup to IRC text ("ircize").
package gateway
