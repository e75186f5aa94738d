package lang

// Reply keys.
const (
	HandshakeFull        = "handshake.full"
	HandshakeMalformed   = "handshake.malformed"
	HandshakeInvalidID   = "handshake.invalid_id"
	HandshakeNameTooLong = "handshake.name_too_long"
	HandshakeDuplicate   = "handshake.duplicate"
	HandshakeBanned      = "handshake.banned"
	HandshakeHelp        = "handshake.help"

	ConnInvalidFrame  = "conn.invalid_frame"
	ConnUnknownSender = "conn.unknown_sender"
	ConnRateLimited   = "conn.rate_limited"

	CmdNotRecognized = "cmd.not_recognized"
	CmdInsufficient  = "cmd.insufficient"
	CmdInternalError = "cmd.internal_error"
	CmdHelp          = "cmd.help"
	CmdUsage         = "cmd.usage"

	ChatMuted = "chat.muted"

	ModMutedGlobal  = "mod.muted_global"
	ModMutedNotice  = "mod.muted_notice"
	ModMutedTitle   = "mod.muted_title"
	ModUnmuted      = "mod.unmuted"
	ModBannedGlobal = "mod.banned_global"
	ModBanNotice    = "mod.ban_notice"
	ModBanResponse  = "mod.ban_response"
	ModGranted      = "mod.granted"
	ModRevoked      = "mod.revoked"
	ModPrivate      = "mod.private"
	ModGlobal       = "mod.global"

	ServerPaused   = "server.paused"
	ServerShutdown = "server.shutdown"
	ServerKicked   = "server.kicked"
)

var defaultStrings = map[string]string{
	HandshakeFull:        "400: server is full.",
	HandshakeMalformed:   "the server didn't get the expected response and was forced to disconnect you.",
	HandshakeInvalidID:   "the client response contained invalid data that could not be parsed.",
	HandshakeNameTooLong: "390: display name must be at most %d characters.",
	HandshakeDuplicate:   "you're already connected from this account.",
	HandshakeBanned:      "you are banned from this server. reason: %s",
	HandshakeHelp:        "type ':? /' to list commands. chat is sent as plain text, commands as ':<command> <args>'.",

	ConnInvalidFrame:  "the server received a malformed message and closed your connection.",
	ConnUnknownSender: "the server received a message from an unknown sender and closed your connection.",
	ConnRateLimited:   "slow down, you're sending messages too fast.",

	CmdNotRecognized: "%s is not a recognized command.",
	CmdInsufficient:  "insufficient permissions to execute %s",
	CmdInternalError: "something went wrong while executing %s.",
	CmdHelp:          "available commands: %s. Note: for commands you don't know any arguments to, use ':command /'",
	CmdUsage:         "usage: %s",

	ChatMuted: "cannot use 'say' while muted. (%s remaining)",

	ModMutedGlobal:  "%s has been muted for %s - duration: %s",
	ModMutedNotice:  "You've been muted for %s. Reason - %s",
	ModMutedTitle:   "Muted (%s remaining)",
	ModUnmuted:      "You've been unmuted.",
	ModBannedGlobal: "%s has been banned. Reason - %s",
	ModBanNotice:    "You've been banned. Reason - %s",
	ModBanResponse:  "banned %s.",
	ModGranted:      "%s granted you the permission '%s'",
	ModRevoked:      "%s revoked the permission '%s'",
	ModPrivate:      "[%s][PM] %s",
	ModGlobal:       "[Server] %s",

	ServerPaused:   "This server is now private & is not accepting new connections for now.",
	ServerShutdown: "Server is shutting down.",
	ServerKicked:   "You have been disconnected by the server.",
}
