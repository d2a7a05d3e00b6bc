package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/GameSurge/srvx-sub002/internal/ioloop"
	"github.com/GameSurge/srvx-sub002/internal/modes"
	"github.com/GameSurge/srvx-sub002/internal/netstate"
	"github.com/GameSurge/srvx-sub002/internal/proto"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

// onCreate handles CREATE: "<user numeric> C <chanlist> <ts>" (cmd_create).
// Unlike plain JOIN, the timestamp is mandatory -- a malformed line is
// dropped rather than defaulted to now.
func (s *Server) onCreate(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	u, ok := s.db.UserByNumeric(origin)
	if !ok {
		u, ok = s.db.User(origin)
		if !ok {
			return
		}
	}
	ts, err := parseUnix(args[len(args)-1])
	if err != nil {
		log.Warn("ircd: CREATE bad timestamp from %s: %v", origin, err)
		return
	}
	for _, chName := range splitComma(args[0]) {
		s.db.AddChannelUser(u.ID, chName, ts)
	}
}

// onTopic handles TOPIC in both of proto-p10.c's cmd_topic forms: the
// simple 3-arg "<chan> :<topic>" form (topic time defaults to now) and the
// Asuka-style 5-arg burst form "<chan> <chan_ts> <topic_ts> :<topic>".
func (s *Server) onTopic(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	ch, ok := s.db.Channel(args[0])
	if !ok {
		return
	}
	setter, _ := s.db.User(origin)

	topic := args[len(args)-1]
	when := time.Now()
	if len(args) >= 4 {
		if ts, err := parseUnix(args[2]); err == nil {
			when = ts
		}
	}
	if err := s.db.SetTopic(ch.ID, setter, topic, when); err != nil {
		log.Warn("ircd: TOPIC on %s: %v", args[0], err)
	}
}

// onSquit handles an explicit wire SQUIT: "SQUIT <server-name> <arg> :<reason>"
// (cmd_squit). The TCP-EOF path (handleDisconnect) covers a peer vanishing
// without notice; this covers a peer announcing a third server's departure.
func (s *Server) onSquit(origin string, args []string) {
	if len(args) < 1 {
		return
	}
	srv, ok := s.db.Server(args[0])
	if !ok {
		return
	}
	reason := ""
	if len(args) > 1 {
		reason = args[len(args)-1]
	}
	s.db.DelServer(srv.ID, true, reason)
}

// onGline handles inbound GLINE: "<issuer> GLINE <target> +<mask> <duration> :<reason>"
// to add, or "<issuer> GLINE <target> -<mask>" to remove (cmd_gline).
func (s *Server) onGline(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	mask := args[1]
	switch {
	case strings.HasPrefix(mask, "+"):
		if len(args) < 4 {
			return
		}
		target := strings.TrimPrefix(mask, "+")
		dur, err := strconv.Atoi(args[2])
		if err != nil {
			log.Warn("ircd: GLINE bad duration from %s: %v", origin, err)
			return
		}
		reason := args[len(args)-1]
		s.glines.Add(origin, target, reason, time.Duration(dur)*time.Second)
	case strings.HasPrefix(mask, "-"):
		target := strings.TrimPrefix(mask, "-")
		s.glines.Remove(target)
	}
}

// sendGlineBurst replays every active gline to a newly linked peer, the
// on-link refresh SPEC_FULL.md 4.7 calls for (gline_refresh_server): one
// GLINE wire line per entry in the store.
func (s *Server) sendGlineBurst(c *ioloop.Conn) {
	self := s.db.Self()
	for _, g := range s.glines.All() {
		dur := "0"
		if !g.Permanent() {
			dur = strconv.Itoa(int(time.Until(g.Expires).Seconds()))
		}
		c.WriteLine(formatGline(self.NumericHi, g.TargetMask, dur, g.Reason))
	}
}

// onAccount handles ACCOUNT: "<server numeric> AC <user numeric> <account>"
// (cmd_account). Origin must resolve to a server; an unknown user numeric
// is dropped silently, matching the reference's "likely a QUIT race" note
// rather than treated as an error.
func (s *Server) onAccount(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	if _, ok := s.db.ServerByNumeric(origin); !ok {
		log.Warn("ircd: ACCOUNT from non-server origin %q", origin)
		return
	}
	u, ok := s.db.UserByNumeric(args[0])
	if !ok {
		return
	}
	if err := s.db.SetAccount(u.ID, args[1]); err != nil {
		log.Warn("ircd: ACCOUNT on %s: %v", args[0], err)
	}
}

// onFake handles FAKE: "<server numeric> FA <user numeric> <fakehost>"
// (cmd_fakehost). Same origin-must-be-server guard as ACCOUNT.
func (s *Server) onFake(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	if _, ok := s.db.ServerByNumeric(origin); !ok {
		log.Warn("ircd: FAKE from non-server origin %q", origin)
		return
	}
	u, ok := s.db.UserByNumeric(args[0])
	if !ok {
		return
	}
	if err := s.db.SetFakeHost(u.ID, args[1]); err != nil {
		log.Warn("ircd: FAKE on %s: %v", args[0], err)
	}
}

// onSVSNick handles SVSNICK: "SVSNICK <target numeric> <newnick>"
// (cmd_svsnick). The reference guards against the target being non-local
// and the destination nick already being taken; neither guard is
// meaningful here (this replica hosts no local clients), so the rename is
// applied unconditionally.
func (s *Server) onSVSNick(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	u, ok := s.db.UserByNumeric(args[0])
	if !ok {
		return
	}
	if err := s.db.NickChange(u.ID, args[1], true); err != nil {
		log.Warn("ircd: SVSNICK on %s: %v", args[0], err)
	}
}

// onKill handles KILL: "<origin> D <target numeric> :<reason>". Not named
// in the review's command list but present in the dispatch table
// (CmdKill, registered alongside OPMODE/CLEARMODE/SQUIT in proto-p10.c's
// command table) and trivially representable as a QuitUser.
func (s *Server) onKill(origin string, args []string) {
	if len(args) < 1 {
		return
	}
	u, ok := s.db.UserByNumeric(args[0])
	if !ok {
		u, ok = s.db.User(args[0])
		if !ok {
			return
		}
	}
	reason := ""
	if len(args) > 1 {
		reason = args[len(args)-1]
	}
	s.db.QuitUser(u.ID, reason)
}

// onClearMode handles CLEARMODE: "<origin> CM <chan> <letters>"
// (cmd_clearmode, which delegates to clear_chanmode).
func (s *Server) onClearMode(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	if err := modes.Clear(s.db, args[0], args[1]); err != nil {
		log.Warn("ircd: CLEARMODE on %s: %v", args[0], err)
	}
}

// onBurst handles BURST: "<server numeric> B <channel> <ts> [+modes
// [mode-params...]] [memberlist] [:%ban1 ban2 ban3...]" (cmd_burst), the
// netjoin reconciliation path -- this is the wire entry point for
// internal/netstate's ReconcileBurst/ReconcileChannelBurst.
func (s *Server) onBurst(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	if _, ok := s.db.ServerByNumeric(origin); !ok {
		log.Warn("ircd: BURST from unknown server numeric %q", origin)
		return
	}

	channel := args[0]
	ts, err := parseUnix(args[1])
	if err != nil {
		log.Warn("ircd: BURST bad timestamp on %s: %v", channel, err)
		return
	}

	idx := 2
	change := &modes.Change{}
	if idx < len(args) && strings.HasPrefix(args[idx], "+") {
		modestr := args[idx][1:]
		idx++
		n := countBurstModeParams(modestr)
		var params []string
		if idx+n <= len(args) {
			params = args[idx : idx+n]
			idx += n
		}
		if c, err := modes.Parse(channel, "", modestr, params, ts); err == nil {
			change = c
		} else {
			log.Warn("ircd: BURST mode parse on %s: %v", channel, err)
		}
	}

	var memberToken, banToken string
	if idx < len(args) {
		if strings.HasPrefix(args[idx], "%") {
			banToken = args[idx]
		} else {
			memberToken = args[idx]
			idx++
			if idx < len(args) && strings.HasPrefix(args[idx], "%") {
				banToken = args[idx]
			}
		}
	}

	ch := s.db.EnsureChannel(channel, ts)

	members := parseBurstMembers(s.db, memberToken)
	for _, bm := range members {
		s.db.AddChannelUser(bm.User, channel, ts)
	}
	bans := parseBurstBans(banToken, ts)

	s.db.ReconcileChannelBurst(ch.ID, ts, change.Set, change.Limit, change.Key, change.AdminPass, change.UserPass, bans, members)
}

// countBurstModeParams counts how many trailing parameter tokens a BURST
// mode string consumes: one each for 'k', 'l', 'A', and 'U', mirroring
// cmd_burst's n_modes walk over the mode letters before reading params.
func countBurstModeParams(modestr string) int {
	n := 0
	for i := 0; i < len(modestr); i++ {
		switch modestr[i] {
		case 'k', 'l', 'A', 'U':
			n++
		}
	}
	return n
}

// parseBurstBans splits a BURST line's trailing "%mask1 mask2 ..." token
// into individual ban records. The reference's AddChannel does this split
// internally; its body was not available to ground the exact Setter/
// SetTime it assigns each entry, so both are approximated here as the
// burst's own timestamp and an empty setter.
func parseBurstBans(token string, when time.Time) []netstate.Ban {
	token = strings.TrimPrefix(token, "%")
	if token == "" {
		return nil
	}
	var out []netstate.Ban
	for _, p := range strings.Fields(token) {
		out = append(out, netstate.Ban{Pattern: p, SetTime: when})
	}
	return out
}

// parseBurstMembers splits a BURST line's comma-separated member list into
// BurstMember records, resolving each numeric against the DB. A ":flags"
// suffix on any entry (one or more of 'o', 'v', or a decimal oplevel)
// persists onto every later entry that lacks its own suffix, matching
// irc_burst's last_mode tracking on the sending side.
func parseBurstMembers(db *netstate.DB, token string) []netstate.BurstMember {
	if token == "" {
		return nil
	}
	var out []netstate.BurstMember
	op, voice := false, false
	oplevel := -1
	for _, entry := range strings.Split(token, ",") {
		numTok := entry
		if i := strings.IndexByte(entry, ':'); i >= 0 {
			numTok = entry[:i]
			op, voice, oplevel = applyBurstFlags(entry[i+1:], false, false, oplevel)
		}
		if u, ok := db.UserByNumeric(numTok); ok {
			out = append(out, netstate.BurstMember{User: u.ID, Op: op, Voice: voice, Oplevel: oplevel})
		}
	}
	return out
}

// applyBurstFlags folds one ":flags" suffix into the persistent
// (op, voice, oplevel) burst-member state: 'o'/'v' set the corresponding
// flag, and a run of digits is an oplevel, added onto any oplevel already
// in force (approximating irc_burst's "oplevel += parse_oplevel").
func applyBurstFlags(flags string, op, voice bool, oplevel int) (bool, bool, int) {
	digits, hasDigits := 0, false
	for i := 0; i < len(flags); i++ {
		switch c := flags[i]; {
		case c == 'o':
			op = true
		case c == 'v':
			voice = true
		case c >= '0' && c <= '9':
			digits = digits*10 + int(c-'0')
			hasDigits = true
		}
	}
	if hasDigits {
		if oplevel < 0 {
			oplevel = digits
		} else {
			oplevel += digits
		}
	}
	return op, voice, oplevel
}

// formatGline renders one GLINE add line in the form onGline parses:
// "<origin> GLINE <target-scope> +<mask> <duration> :<reason>". The
// target-scope is always "*" here (apply everywhere), matching
// gline_refresh_server's broadcast of the whole table to a new link.
func formatGline(selfNumeric, mask, duration, reason string) string {
	return proto.Format(selfNumeric, proto.CmdGline, []string{"*", "+" + mask, duration, reason}, true)
}
