// Copyright 2024-2026 Aiku AI

package gateway

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotMapped is returned when a protocol name or remote ID has no cache
// entry. Recoverable: callers answer with a "no such nick" style numeric or
// skip the operation.
var ErrNotMapped = errors.New("gateway: entity not mapped")

// IDMap is a session's bidirectional cache between IRC-side names (nicks,
// "#channel" names, "@group" handles) and remote opaque IDs, plus per-channel
// membership and the DM target side table. The two primary views are kept as
// exact inverses; a write that disagrees with an existing mapping is logged
// as a diagnostic and overwrites, since renames and duplicate identities are
// survivable by contract.
//
// All methods are safe for concurrent use; the map is touched from the IRC
// stream, the RTM stream, and background resolution tasks.
type IDMap struct {
	log zerolog.Logger

	mu        sync.RWMutex
	toSlack   map[string]string
	toIRC     map[string]string
	members   map[string]*memberSet
	dmTargets map[string]string
}

// memberSet is an insertion-ordered set of nicks.
type memberSet struct {
	order []string
	set   map[string]struct{}
}

func (ms *memberSet) add(nick string) bool {
	if _, ok := ms.set[nick]; ok {
		return false
	}
	ms.set[nick] = struct{}{}
	ms.order = append(ms.order, nick)
	return true
}

func (ms *memberSet) remove(nick string) bool {
	if _, ok := ms.set[nick]; !ok {
		return false
	}
	delete(ms.set, nick)
	for i, n := range ms.order {
		if n == nick {
			ms.order = append(ms.order[:i], ms.order[i+1:]...)
			break
		}
	}
	return true
}

// NewIDMap creates an empty map logging diagnostics to log.
func NewIDMap(log zerolog.Logger) *IDMap {
	return &IDMap{
		log:       log.With().Str("component", "idmap").Logger(),
		toSlack:   make(map[string]string),
		toIRC:     make(map[string]string),
		members:   make(map[string]*memberSet),
		dmTargets: make(map[string]string),
	}
}

// MapBidirectional upserts name<->id into both views. Idempotent; a
// conflicting existing mapping for either key is logged and overwritten,
// with the stale inverse entries removed so the views stay exact inverses.
func (m *IDMap) MapBidirectional(name, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if oldID, ok := m.toSlack[name]; ok && oldID != id {
		m.log.Warn().Str("name", name).Str("old_id", oldID).Str("new_id", id).
			Msg("Remapping name to a different ID")
		delete(m.toIRC, oldID)
	}
	if oldName, ok := m.toIRC[id]; ok && oldName != name {
		m.log.Warn().Str("id", id).Str("old_name", oldName).Str("new_name", name).
			Msg("Remapping ID to a different name")
		delete(m.toSlack, oldName)
	}
	m.toSlack[name] = id
	m.toIRC[id] = name
}

// MapAlias records only the ID-to-name direction, leaving an existing
// name-to-ID entry intact. Used for duplicate roster nicknames, where the
// first ID keeps the outbound mapping but every ID still renders inbound.
func (m *IDMap) MapAlias(name, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toIRC[id] = name
}

// Unmap removes both directions of a mapping, if present.
func (m *IDMap) Unmap(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.toSlack[name]; ok {
		delete(m.toIRC, id)
	}
	delete(m.toSlack, name)
}

// SlackID resolves an IRC-side name to its remote ID.
func (m *IDMap) SlackID(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.toSlack[name]
	if !ok {
		return "", ErrNotMapped
	}
	return id, nil
}

// IRCName is the cache-only inverse lookup. On-demand remote resolution
// lives on the Session, which owns the API caller.
func (m *IDMap) IRCName(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.toIRC[id]
	return name, ok
}

// SetDM records the one-to-one conversation ID for a nick addressed as a
// private target.
func (m *IDMap) SetDM(nick, convID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dmTargets[nick] = convID
}

// DM returns the cached one-to-one conversation ID for nick.
func (m *IDMap) DM(nick string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.dmTargets[nick]
	return id, ok
}

// Join creates the membership table entry for a channel. Reports whether
// state changed; joining an already-joined channel is a no-op.
func (m *IDMap) Join(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[channel]; ok {
		return false
	}
	m.members[channel] = &memberSet{set: make(map[string]struct{})}
	return true
}

// Part removes a channel's membership entry. Parting a non-member channel
// reports no change.
func (m *IDMap) Part(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[channel]; !ok {
		return false
	}
	delete(m.members, channel)
	return true
}

// IsMember reports whether the session currently tracks the channel.
func (m *IDMap) IsMember(channel string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[channel]
	return ok
}

// AddNick adds a nick to a channel's member list, creating the channel entry
// if needed. Reports whether state changed.
func (m *IDMap) AddNick(channel, nick string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.members[channel]
	if !ok {
		ms = &memberSet{set: make(map[string]struct{})}
		m.members[channel] = ms
	}
	return ms.add(nick)
}

// RemoveNick removes a nick from a channel's member list. Reports whether
// state changed.
func (m *IDMap) RemoveNick(channel, nick string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.members[channel]
	if !ok {
		return false
	}
	return ms.remove(nick)
}

// IsNickPresent reports whether nick is in the channel's member list.
func (m *IDMap) IsNickPresent(channel, nick string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.members[channel]
	if !ok {
		return false
	}
	_, ok = ms.set[nick]
	return ok
}

// Nicks returns the channel's member nicks in insertion order.
func (m *IDMap) Nicks(channel string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.members[channel]
	if !ok {
		return nil
	}
	out := make([]string, len(ms.order))
	copy(out, ms.order)
	return out
}

// Channels returns all tracked channel names.
func (m *IDMap) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.members))
	for ch := range m.members {
		out = append(out, ch)
	}
	return out
}

// Sizes reports entry counts for the debug channel dump.
func (m *IDMap) Sizes() (names, channels, dms int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.toSlack), len(m.members), len(m.dmTargets)
}
