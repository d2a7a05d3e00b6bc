package proto

import "strings"

// Command names in their canonical long form. Handlers in the daemon are
// registered and looked up by these constants, never by the wire token.
const (
	CmdPass      = "PASS"
	CmdServer    = "SERVER"
	CmdNick      = "NICK"
	CmdQuit      = "QUIT"
	CmdKill      = "KILL"
	CmdMode      = "MODE"
	CmdJoin      = "JOIN"
	CmdCreate    = "CREATE"
	CmdBurst     = "BURST"
	CmdPart      = "PART"
	CmdKick      = "KICK"
	CmdTopic     = "TOPIC"
	CmdPrivmsg   = "PRIVMSG"
	CmdNotice    = "NOTICE"
	CmdPing      = "PING"
	CmdPong      = "PONG"
	CmdSquit     = "SQUIT"
	CmdEOB       = "EOB"
	CmdEOBAck    = "EOB_ACK"
	CmdGline     = "GLINE"
	CmdAccount   = "ACCOUNT"
	CmdFake      = "FAKE"
	CmdSVSNick   = "SVSNICK"
	CmdOpMode    = "OPMODE"
	CmdClearMode = "CLEARMODE"
)

// table maps every accepted wire token -- long name and short alias alike --
// to the command's canonical long form. Lookup is case-insensitive.
var table = map[string]string{
	"PASS": CmdPass, "PA": CmdPass,
	"SERVER": CmdServer, "S": CmdServer,
	"NICK": CmdNick, "N": CmdNick,
	"QUIT": CmdQuit, "Q": CmdQuit,
	"KILL": CmdKill, "D": CmdKill,
	"MODE": CmdMode, "M": CmdMode,
	"JOIN": CmdJoin, "J": CmdJoin,
	"CREATE": CmdCreate, "C": CmdCreate,
	"BURST": CmdBurst, "B": CmdBurst,
	"PART": CmdPart, "L": CmdPart,
	"KICK": CmdKick, "K": CmdKick,
	"TOPIC": CmdTopic, "T": CmdTopic,
	"PRIVMSG": CmdPrivmsg, "P": CmdPrivmsg,
	"NOTICE": CmdNotice, "O": CmdNotice,
	"PING": CmdPing, "G": CmdPing,
	"PONG": CmdPong, "Z": CmdPong,
	"SQUIT": CmdSquit, "SQ": CmdSquit,
	"EOB": CmdEOB, "EB": CmdEOB,
	"EOB_ACK": CmdEOBAck, "EA": CmdEOBAck,
	"GLINE": CmdGline, "GL": CmdGline,
	"ACCOUNT": CmdAccount, "AC": CmdAccount,
	"FAKE": CmdFake, "FA": CmdFake,
	"SVSNICK": CmdSVSNick, "SN": CmdSVSNick,
	"OPMODE": CmdOpMode, "OM": CmdOpMode,
	"CLEARMODE": CmdClearMode, "CM": CmdClearMode,
}

// shortToken is the inverse of table restricted to the canonical short
// alias, used when formatting outbound lines in the compact dialect.
var shortToken = map[string]string{
	CmdPass: "PA", CmdServer: "S", CmdNick: "N", CmdQuit: "Q", CmdKill: "D",
	CmdMode: "M", CmdJoin: "J", CmdCreate: "C", CmdBurst: "B", CmdPart: "L",
	CmdKick: "K", CmdTopic: "T", CmdPrivmsg: "P", CmdNotice: "O",
	CmdPing: "G", CmdPong: "Z", CmdSquit: "SQ", CmdEOB: "EB",
	CmdEOBAck: "EA", CmdGline: "GL", CmdAccount: "AC", CmdFake: "FA",
	CmdSVSNick: "SN", CmdOpMode: "OM", CmdClearMode: "CM",
}

// Resolve maps a wire token (either alias) to its canonical long command
// name. ok is false for unrecognized tokens; callers log and drop the line,
// per spec: unknown commands are a parse error but never a disconnect.
func Resolve(token string) (command string, ok bool) {
	command, ok = table[strings.ToUpper(token)]
	return command, ok
}

// ShortToken returns the compact dialect's token for a canonical command,
// falling back to the long name if no alias is registered.
func ShortToken(command string) string {
	if t, ok := shortToken[command]; ok {
		return t
	}
	return command
}
