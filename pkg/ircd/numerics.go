// Copyright 2024-2026 Aiku AI

package ircd

// Numeric reply codes. Only the families the gateway emits are listed.
const (
	RplWelcome     = "001"
	RplWhoisUser   = "311"
	RplEndOfWho    = "315"
	RplList        = "322"
	RplListEnd     = "323"
	RplChannelMode = "324"
	RplTopic       = "332"
	RplInviting    = "341"
	RplWhoReply    = "352"
	RplNamReply    = "353"
	RplEndOfNames  = "366"
	RplEndOfMotd   = "376"

	ErrNoSuchNick      = "401"
	ErrNoSuchChannel   = "403"
	ErrUnknownCommand  = "421"
	ErrNoNicknameGiven = "431"
	ErrNeedMoreParams  = "461"
	ErrRestricted      = "484"
)
