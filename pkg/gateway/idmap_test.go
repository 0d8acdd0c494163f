// Copyright 2024-2026 Aiku AI

package gateway

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func newTestIDMap() *IDMap {
	return NewIDMap(zerolog.Nop())
}

func TestIDMapBidirectional(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	m.MapBidirectional("alice", "U1")
	id, err := m.SlackID("alice")
	if err != nil || id != "U1" {
		t.Errorf("SlackID(alice): got %q, %v, want U1", id, err)
	}
	name, ok := m.IRCName("U1")
	if !ok || name != "alice" {
		t.Errorf("IRCName(U1): got %q, %v, want alice", name, ok)
	}
}

func TestIDMapUnknownName(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	if _, err := m.SlackID("ghost"); !errors.Is(err, ErrNotMapped) {
		t.Errorf("SlackID(ghost): got %v, want ErrNotMapped", err)
	}
	if _, ok := m.IRCName("U404"); ok {
		t.Error("IRCName(U404) = ok, want miss")
	}
}

func TestIDMapRemapKeepsViewsInverse(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	m.MapBidirectional("#chan", "C1")
	m.MapBidirectional("#chan_new", "C1")

	if _, err := m.SlackID("#chan"); !errors.Is(err, ErrNotMapped) {
		t.Error("stale name still mapped after remap")
	}
	name, ok := m.IRCName("C1")
	if !ok || name != "#chan_new" {
		t.Errorf("IRCName(C1): got %q, want #chan_new", name)
	}
	id, err := m.SlackID("#chan_new")
	if err != nil || id != "C1" {
		t.Errorf("SlackID(#chan_new): got %q, %v, want C1", id, err)
	}
}

func TestIDMapAliasKeepsFirstOutbound(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	m.MapBidirectional("dupe", "U1")
	m.MapAlias("dupe", "U2")

	if id, _ := m.SlackID("dupe"); id != "U1" {
		t.Errorf("SlackID(dupe): got %q, want U1", id)
	}
	for _, id := range []string{"U1", "U2"} {
		if name, _ := m.IRCName(id); name != "dupe" {
			t.Errorf("IRCName(%s): got %q, want dupe", id, name)
		}
	}
}

func TestIDMapUnmap(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	m.MapBidirectional("bob", "U2")
	m.Unmap("bob")
	if _, err := m.SlackID("bob"); err == nil {
		t.Error("SlackID(bob) resolved after Unmap")
	}
	if _, ok := m.IRCName("U2"); ok {
		t.Error("IRCName(U2) resolved after Unmap")
	}
}

func TestIDMapMembership(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	if !m.Join("#a") {
		t.Error("first Join reported no change")
	}
	if m.Join("#a") {
		t.Error("second Join reported change")
	}
	if !m.AddNick("#a", "x") || !m.AddNick("#a", "y") {
		t.Error("AddNick reported no change for new nicks")
	}
	if m.AddNick("#a", "x") {
		t.Error("duplicate AddNick reported change")
	}
	if got, want := m.Nicks("#a"), []string{"x", "y"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Nicks: got %v, want %v", got, want)
	}
	if !m.IsNickPresent("#a", "x") || m.IsNickPresent("#a", "z") {
		t.Error("IsNickPresent wrong")
	}
	if !m.RemoveNick("#a", "x") || m.RemoveNick("#a", "x") {
		t.Error("RemoveNick change reporting wrong")
	}
	if got, want := m.Nicks("#a"), []string{"y"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Nicks after remove: got %v, want %v", got, want)
	}
	if !m.Part("#a") || m.Part("#a") {
		t.Error("Part change reporting wrong")
	}
	if m.IsMember("#a") {
		t.Error("still member after Part")
	}
}

func TestIDMapAddNickImpliesChannel(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	m.AddNick("#implied", "x")
	if !m.IsMember("#implied") {
		t.Error("AddNick did not create the channel entry")
	}
}

func TestIDMapDMSideTable(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	if _, ok := m.DM("alice"); ok {
		t.Error("DM hit before SetDM")
	}
	m.SetDM("alice", "D1")
	id, ok := m.DM("alice")
	if !ok || id != "D1" {
		t.Errorf("DM(alice): got %q, %v, want D1", id, ok)
	}
}

func TestIDMapSizes(t *testing.T) {
	t.Parallel()
	m := newTestIDMap()

	m.MapBidirectional("a", "U1")
	m.MapBidirectional("#b", "C1")
	m.Join("#b")
	m.SetDM("a", "D1")

	names, channels, dms := m.Sizes()
	if names != 2 || channels != 1 || dms != 1 {
		t.Errorf("Sizes: got (%d, %d, %d), want (2, 1, 1)", names, channels, dms)
	}
}
