package main

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/GameSurge/srvx-sub002/internal/config"
	"github.com/GameSurge/srvx-sub002/internal/console"
	"github.com/GameSurge/srvx-sub002/internal/dnsbl"
	"github.com/GameSurge/srvx-sub002/internal/gline"
	"github.com/GameSurge/srvx-sub002/internal/ioloop"
	"github.com/GameSurge/srvx-sub002/internal/modes"
	"github.com/GameSurge/srvx-sub002/internal/netstate"
	"github.com/GameSurge/srvx-sub002/internal/numeric"
	"github.com/GameSurge/srvx-sub002/internal/proto"
	"github.com/GameSurge/srvx-sub002/internal/ratelimit"
	"github.com/GameSurge/srvx-sub002/internal/resolver"
	"github.com/GameSurge/srvx-sub002/internal/scanner"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

// Server is the top-level daemon: one netstate.DB, one io loop, and the
// supporting subsystems (glines, resolver, scanner, dnsbl, console),
// wired together the way cmd/minimega/main.go wires its Node, cli, and
// web subsystems around a single mux loop.
type Server struct {
	cfg *config.Node

	db       *netstate.DB
	glines   *gline.Store
	scan     *scanner.Scanner
	blacklists *dnsbl.Checker
	res      *resolver.Resolver
	loop     *ioloop.Loop

	serverPolicer *ratelimit.Policer

	peerConns map[*ioloop.Conn]*peerState
}

// peerState tracks the per-connection handshake progress for a linked
// peer server (PASS/SERVER seen, numeric prefix assigned) before it is
// promoted to a full entry in netstate.
type peerState struct {
	conn       *ioloop.Conn
	pass       string
	serverID   netstate.ServerID
	registered bool
}

func NewServer(cfg *config.Node) (*Server, error) {
	selfName, _ := cfg.Get("server.name")
	selfDesc, _ := cfg.Get("server.description")
	selfNumeric, _ := cfg.Get("server.numeric")
	if selfName == "" || selfNumeric == "" {
		selfName, selfNumeric = "services.int", "AA"
	}

	db := netstate.New(selfName, selfDesc, selfNumeric, 262143, time.Now())

	s := &Server{
		cfg:           cfg,
		db:            db,
		glines:        gline.New(),
		serverPolicer: ratelimit.New(ratelimit.NewParams()),
		peerConns:     make(map[*ioloop.Conn]*peerState),
	}
	s.loop = ioloop.New(s.handleLine)

	if tests := buildSockcheckTests(cfg); len(tests) > 0 {
		s.scan = scanner.New(tests, int64(cfg.GetInt("scanner.max_concurrent", 8)), 5*time.Second, 10*time.Minute)
	}

	resConn, err := net.ListenPacket("udp", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("ircd: resolver socket: %w", err)
	}
	resCfg := resolver.DefaultConfig()
	if ns, ok := cfg.Get("resolver.nameserver"); ok {
		resCfg.Nameservers = []string{ns}
	}
	s.res = resolver.New(resCfg, resConn)
	go s.readResolverPackets(resConn)

	if zones := buildDNSBLZones(cfg); len(zones) > 0 {
		lookup := func(name string, v6 bool, cb func(addrs []net.IP, err error)) {
			if err := s.res.LookupHost(name, v6, func(r resolver.Result) { cb(r.Addrs, r.Err) }); err != nil {
				cb(nil, err)
			}
		}
		s.blacklists = dnsbl.New(zones, lookup, func(mask, reason string, dur time.Duration) {
			s.glines.Add("DNSBL", mask, reason, dur)
		})
	}

	return s, nil
}

// buildDNSBLZones reads "dnsbl.zone.<name>" blocks from cfg into
// dnsbl.Zone values. Absent a configured section, no blacklists are
// checked and the checker is left nil.
func buildDNSBLZones(cfg *config.Node) []dnsbl.Zone {
	sect, ok := cfg.Section("dnsbl.zone")
	if !ok {
		return nil
	}
	var out []dnsbl.Zone
	for name, block := range sect.Children {
		dur := time.Duration(block.GetInt("duration_seconds", 0)) * time.Second
		reason, _ := block.Get("reason")
		out = append(out, dnsbl.Zone{
			Name:          name,
			Mask:          uint8(block.GetInt("mask", 0xff)),
			DefaultReason: reason,
			Duration:      dur,
		})
	}
	return out
}

// readResolverPackets feeds every UDP reply on conn to the resolver's
// pending-request table. It runs on its own goroutine, outside the
// single dispatch goroutine's invariant, since resolver state is private
// to *resolver.Resolver and guarded by its own mutex.
func (s *Server) readResolverPackets(conn net.PacketConn) {
	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.res.Deliver(data)
	}
}

// buildSockcheckTests reads "scanner.test.<name>" blocks from cfg into
// scanner.Test values, each carrying a "state.<n>" chain of compiled
// templates -- the data-driven equivalent of mod-sockcheck.c's static
// sockcheck_state tables. Absent a configured scanner section, no tests
// run and the scanner is left nil -- proxy scanning is opt-in.
//
// Expected shape:
//
//	scanner {
//	    test socks4 {
//	        port "1080";
//	        reps "1";
//	        state 0 {
//	            send "=04=01$p$i";
//	            timeout_seconds "5";
//	            response 0 { match "=00"; next "1"; };
//	            response 1 { other "1"; next "2"; };
//	        };
//	        state 1 { type "closed"; };
//	        state 2 { type "open"; };
//	    };
//	};
func buildSockcheckTests(cfg *config.Node) []scanner.Test {
	sect, ok := cfg.Section("scanner")
	if !ok {
		return nil
	}
	testsSect, ok := sect.Section("test")
	if !ok {
		return nil
	}

	var out []scanner.Test
	for _, name := range sortedKeys(testsSect.Children) {
		block := testsSect.Children[name]
		port := block.GetInt("port", 0)
		if port == 0 {
			log.Warn("ircd: scanner test %q has no port configured, skipping", name)
			continue
		}
		states, err := buildSockcheckStates(block)
		if err != nil {
			log.Warn("ircd: scanner test %q: %v", name, err)
			continue
		}
		out = append(out, scanner.Test{
			Name:   name,
			Port:   port,
			Reps:   block.GetInt("reps", 1),
			States: states,
		})
	}
	return out
}

func buildSockcheckStates(testBlock *config.Node) ([]scanner.State, error) {
	statesSect, ok := testBlock.Section("state")
	if !ok {
		return nil, fmt.Errorf("no state blocks configured")
	}

	keys := sortedKeys(statesSect.Children)
	states := make([]scanner.State, len(keys))
	for i, key := range keys {
		sb := statesSect.Children[key]

		var typ scanner.Decision
		switch t, _ := sb.Get("type"); t {
		case "open":
			typ = scanner.Open
		case "closed":
			typ = scanner.Closed
		default:
			typ = scanner.Checking
		}

		sendStr, _ := sb.Get("send")
		sendTokens, err := scanner.CompileTemplate(sendStr, false)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", key, err)
		}

		st := scanner.State{
			Timeout: time.Duration(sb.GetInt("timeout_seconds", 5)) * time.Second,
			Type:    typ,
			Send:    sendTokens,
		}

		if respSect, ok := sb.Section("response"); ok {
			rkeys := sortedKeys(respSect.Children)
			for _, rkey := range rkeys {
				rb := respSect.Children[rkey]
				next := rb.GetInt("next", 0)
				if rb.GetBool("other", false) {
					st.Responses = append(st.Responses, scanner.Response{Other: true, Next: next})
					continue
				}
				matchStr, _ := rb.Get("match")
				toks, err := scanner.CompileTemplate(matchStr, true)
				if err != nil {
					return nil, fmt.Errorf("state %s response %s: %w", key, rkey, err)
				}
				st.Responses = append(st.Responses, scanner.Response{Tokens: toks, Next: next})
			}
			// The last response is the connection-fallback slot
			// (read timeout, EOF, overflow); if the config did not
			// supply one explicitly, fall through to this state's
			// own terminal type.
			if len(st.Responses) == 0 || !st.Responses[len(st.Responses)-1].Other {
				st.Responses = append(st.Responses, scanner.Response{Next: i})
			}
		}

		states[i] = st
	}
	return states, nil
}

// sortedKeys returns m's keys ordered numerically where every key parses
// as an integer (state/response indices), falling back to lexical order
// otherwise (test names).
func sortedKeys(m map[string]*config.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	allNumeric := true
	for _, k := range keys {
		if _, err := strconv.Atoi(k); err != nil {
			allNumeric = false
			break
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if allNumeric {
			a, _ := strconv.Atoi(keys[i])
			b, _ := strconv.Atoi(keys[j])
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

// scanNewUser runs the configured proxy-scan tests against a newly
// introduced user's IP, glining them on any Open verdict -- the wire
// equivalent of mod-sockcheck.c's sockcheck_start_client firing off of
// a NICK burst.
func (s *Server) scanNewUser(ip net.IP, nick string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	v, err := s.scan.Scan(ctx, ip)
	if err != nil {
		log.Debug("ircd: scanner: %s: %v", nick, err)
		return
	}
	if !v.Open {
		return
	}
	for test, d := range v.Results {
		if d == scanner.Open {
			log.Warn("ircd: %s (%s) detected as open proxy by test %q", nick, ip, test)
		}
	}
	s.glines.Add("SOCKCHECK", "*@"+ip.String(), "open proxy detected", time.Hour)
}

// Listen starts accepting peer-link connections on addr. The operator
// console is started separately, by ListenConsole.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Error("ircd: accept: %v", err)
			return
		}
		c := s.loop.Adopt(conn)
		s.peerConns[c] = &peerState{conn: c}
		log.Info("ircd: peer connection from %s", conn.RemoteAddr())
	}
}

// ListenConsole starts the operator control socket described in
// SPEC_FULL.md section 11.
func (s *Server) ListenConsole(addr string, reg *console.Registry, auth console.Authenticator) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := console.NewServer(reg, auth)
	go srv.Serve(ln)
	return nil
}

// Run starts the daemon's single dispatch goroutine. It blocks until the
// loop's context is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.loop.AddTimer("gline:expire", time.Now().Add(time.Minute), s.expireGlines)
	s.loop.AddTimer("resolver:tick", time.Now().Add(time.Second), s.tickResolver)
	s.loop.Run(ctx)
}

func (s *Server) expireGlines() {
	for _, g := range s.glines.ExpireAll() {
		log.Info("ircd: gline on %s expired", g.TargetMask)
	}
	s.loop.AddTimer("gline:expire", time.Now().Add(time.Minute), s.expireGlines)
}

func (s *Server) tickResolver() {
	s.res.Tick(time.Now())
	s.loop.AddTimer("resolver:tick", time.Now().Add(time.Second), s.tickResolver)
}

// handleLine is the single entry point every inbound byte eventually
// reaches: it is only ever invoked from the ioloop's one dispatch
// goroutine, so it -- and everything it calls into (netstate, modes,
// gline) -- may freely mutate shared state without locking. DrainDeferred
// runs once per line, after the whole handler (including anything it
// calls) has returned, per the deferred-kill invariant.
func (s *Server) handleLine(ln ioloop.Line) {
	if ln.Err != nil {
		s.handleDisconnect(ln.Conn)
		return
	}

	defer s.db.DrainDeferred()

	if !s.serverPolicer.Conforms(time.Now(), 1.0) {
		log.Warn("ircd: %s: dropping line, policer exceeded (%s)", ln.Conn.RemoteAddr(), s.serverPolicer)
		return
	}

	origin, token, args, _, err := proto.Split(ln.Text)
	if err != nil {
		log.Debug("ircd: %s: parse error: %v", ln.Conn.RemoteAddr(), err)
		return
	}
	command, ok := proto.Resolve(token)
	if !ok {
		log.Debug("ircd: %s: unknown command %q", ln.Conn.RemoteAddr(), token)
		return
	}

	switch command {
	case proto.CmdPass:
		s.onPass(ln.Conn, args)
	case proto.CmdServer:
		s.onServer(ln.Conn, args)
	case proto.CmdPing:
		s.onPing(ln.Conn, origin, args)
	case proto.CmdNick:
		s.onNick(origin, args)
	case proto.CmdJoin:
		s.onJoin(origin, args)
	case proto.CmdCreate:
		s.onCreate(origin, args)
	case proto.CmdBurst:
		s.onBurst(origin, args)
	case proto.CmdPart:
		s.onPart(origin, args)
	case proto.CmdMode, proto.CmdOpMode:
		s.onMode(origin, args)
	case proto.CmdClearMode:
		s.onClearMode(origin, args)
	case proto.CmdKick:
		s.onKick(origin, args)
	case proto.CmdTopic:
		s.onTopic(origin, args)
	case proto.CmdQuit:
		s.onQuit(origin, args)
	case proto.CmdKill:
		s.onKill(origin, args)
	case proto.CmdSquit:
		s.onSquit(origin, args)
	case proto.CmdGline:
		s.onGline(origin, args)
	case proto.CmdAccount:
		s.onAccount(origin, args)
	case proto.CmdFake:
		s.onFake(origin, args)
	case proto.CmdSVSNick:
		s.onSVSNick(origin, args)
	case proto.CmdEOB:
		s.onEOB(origin)
	case proto.CmdEOBAck:
		s.onEOBAck(origin)
	case proto.CmdPrivmsg, proto.CmdNotice, proto.CmdPong:
		// No in-process message sink or latency tracking in this
		// replica (spec.md Non-goals); the line is intentionally a
		// no-op rather than an unhandled-command warning.
	default:
		log.Debug("ircd: unhandled command %s from %s", command, origin)
	}
}

func (s *Server) handleDisconnect(c *ioloop.Conn) {
	ps, ok := s.peerConns[c]
	if !ok {
		return
	}
	delete(s.peerConns, c)
	if ps.registered {
		s.db.DelServer(ps.serverID, true, "connection lost")
		s.db.DrainDeferred()
	}
}

func (s *Server) onPass(c *ioloop.Conn, args []string) {
	if len(args) < 1 {
		return
	}
	s.peerConns[c].pass = args[0]
}

func (s *Server) onServer(c *ioloop.Conn, args []string) {
	// SERVER name hops boot link numeric :description
	if len(args) < 6 {
		log.Warn("ircd: malformed SERVER line: %v", args)
		return
	}
	name := args[0]
	numericPrefix := args[4]
	description := args[len(args)-1]

	srv, err := s.db.AddServer(s.db.Self().ID, name, 1, time.Now(), time.Now(), numericPrefix, description)
	if err != nil {
		log.Warn("ircd: AddServer %s: %v", name, err)
		return
	}
	if ps, ok := s.peerConns[c]; ok {
		ps.serverID = srv.ID
		ps.registered = true
	}
	s.sendGlineBurst(c)
}

func (s *Server) onPing(c *ioloop.Conn, origin string, args []string) {
	reply := proto.Format(s.db.Self().NumericHi, proto.CmdPong, append([]string{s.db.Self().Name}, args...), false)
	c.WriteLine(reply)
}

func (s *Server) onNick(origin string, args []string) {
	// New-user introduction: NICK nick hops ts ident host modes numeric :gecos
	// Nick change (existing user): NICK newnick ts
	if len(args) >= 7 {
		nick := args[0]
		ts, _ := parseUnix(args[2])
		ident := args[3]
		host := args[4]
		_, localTok, err := numeric.SplitServerPrefix(args[6], len(origin))
		if err != nil {
			log.Warn("ircd: NICK numeric parse: %v", err)
			return
		}
		local, err := numeric.Decode(localTok)
		if err != nil {
			log.Warn("ircd: NICK local numeric decode: %v", err)
			return
		}

		srv, ok := s.db.ServerByNumeric(origin)
		if !ok {
			log.Warn("ircd: NICK from unknown server numeric %q", origin)
			return
		}
		gecos := args[len(args)-1]
		ip := net.ParseIP(host)
		u, err := s.db.AddUser(srv.ID, nick, ident, host, 0, int(local), args[6], gecos, ts, ip)
		if err != nil {
			log.Warn("ircd: AddUser %s: %v", nick, err)
			return
		}
		if s.blacklists != nil && ip != nil {
			s.blacklists.Check(ip, "*@"+ip.String(), func(zone dnsbl.Zone, reason string) {
				log.Warn("ircd: %s matched dnsbl zone %s: %s", u.Nick, zone.Name, reason)
			})
		}
		if s.scan != nil && ip != nil {
			go s.scanNewUser(ip, nick)
		}
		return
	}

	if len(args) >= 2 {
		u, ok := s.db.User(origin)
		if !ok {
			return
		}
		if err := s.db.NickChange(u.ID, args[0], true); err != nil {
			log.Warn("ircd: NickChange: %v", err)
		}
	}
}

func (s *Server) onJoin(origin string, args []string) {
	if len(args) < 1 {
		return
	}
	u, ok := s.db.User(origin)
	if !ok {
		return
	}
	// cmd_join: a creation timestamp is optional on plain JOIN (unlike
	// CREATE, where it is mandatory) and defaults to now when absent.
	ts := time.Now()
	if len(args) >= 2 {
		if parsed, err := parseUnix(args[1]); err == nil {
			ts = parsed
		}
	}
	for _, chName := range splitComma(args[0]) {
		s.db.AddChannelUser(u.ID, chName, ts)
	}
}

func (s *Server) onPart(origin string, args []string) {
	if len(args) < 1 {
		return
	}
	u, ok := s.db.User(origin)
	if !ok {
		return
	}
	reason := ""
	if len(args) > 1 {
		reason = args[len(args)-1]
	}
	for _, chName := range splitComma(args[0]) {
		ch, ok := s.db.Channel(chName)
		if !ok {
			continue
		}
		s.db.DelChannelUser(u.ID, ch.ID, reason, false)
	}
}

func (s *Server) onMode(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	channel := args[0]
	change, err := modes.Parse(channel, origin, args[1], args[2:], time.Now())
	if err != nil {
		log.Warn("ircd: MODE parse on %s: %v", channel, err)
		return
	}
	if err := modes.Apply(s.db, change); err != nil {
		log.Warn("ircd: MODE apply on %s: %v", channel, err)
	}
}

func (s *Server) onKick(origin string, args []string) {
	if len(args) < 2 {
		return
	}
	kicker, _ := s.db.User(origin)
	victim, ok := s.db.User(args[1])
	if !ok {
		return
	}
	ch, ok := s.db.Channel(args[0])
	if !ok {
		return
	}
	reason := ""
	if len(args) > 2 {
		reason = args[len(args)-1]
	}
	s.db.KickChannelUser(kicker, victim.ID, ch.ID, reason)
}

func (s *Server) onQuit(origin string, args []string) {
	u, ok := s.db.User(origin)
	if !ok {
		return
	}
	reason := ""
	if len(args) > 0 {
		reason = args[len(args)-1]
	}
	s.db.QuitUser(u.ID, reason)
}

func (s *Server) onEOB(origin string) {
	if srv, ok := s.db.ServerByNumeric(origin); ok {
		srv.Bursting = false
	}
}

func (s *Server) onEOBAck(origin string) {
	if srv, ok := s.db.ServerByNumeric(origin); ok {
		srv.Bursting = false
	}
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func parseUnix(s string) (time.Time, error) {
	var sec int64
	if _, err := fmt.Sscan(s, &sec); err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}
