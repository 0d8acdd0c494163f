// Copyright 2024-2026 Aiku AI

package gateway

import "sync"

// echoLedgerCap bounds the recent-sends ledger. Old entries fall off the
// tail; a message echoed back later than 1024 sends is displayed twice
// rather than leaking memory.
const echoLedgerCap = 1024

// EchoLedger records the session's own just-sent messages so their echo from
// the remote feed can be suppressed exactly once. Push and pop happen from
// independently scheduled tasks, so every operation runs under the ledger's
// lock — including the remote send itself, which keeps a send and its echo
// from interleaving.
type EchoLedger struct {
	mu   sync.Mutex
	keys []string // most recent first
}

// NewEchoLedger creates an empty ledger.
func NewEchoLedger() *EchoLedger {
	return &EchoLedger{}
}

// EchoKey builds the suppression key from the fields guaranteed present on
// both the send confirmation and the inbound event.
func EchoKey(channel, ts string) string {
	return channel + " " + ts
}

// RememberOwnSend executes send under the ledger lock and records the key it
// returns. A failed send records nothing and the error propagates after the
// lock is released.
func (l *EchoLedger) RememberOwnSend(send func() (string, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key, err := send()
	if err != nil {
		return err
	}
	l.keys = append([]string{key}, l.keys...)
	if len(l.keys) > echoLedgerCap {
		l.keys = l.keys[:echoLedgerCap]
	}
	return nil
}

// SuppressIncoming reports whether key matches a remembered send. A hit
// consumes that one entry, so each send is suppressed at most once.
func (l *EchoLedger) SuppressIncoming(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, k := range l.keys {
		if k == key {
			l.keys = append(l.keys[:i], l.keys[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the current ledger depth, for the debug channel dump.
func (l *EchoLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
