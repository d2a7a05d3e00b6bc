package main

import (
	"fmt"
	"strconv"

	"github.com/GameSurge/srvx-sub002/internal/config"
	"github.com/GameSurge/srvx-sub002/internal/console"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

// buildConsoleRegistry wires the operator commands (servers, user,
// channel, gline, log, stats) to this server's subsystems. No scanner or
// DNSBL command is registered.
func buildConsoleRegistry(s *Server) *console.Registry {
	reg := console.NewRegistry()

	reg.Register(&console.Command{
		Name: "servers",
		Help: "show the local server's summary line",
		Run: func(sess *console.Session, args []string) error {
			self := s.db.Self()
			sess.Reply(fmt.Sprintf("%-20s %-4s hops=%d bursting=%v children=%d", self.Name, self.NumericHi, self.Hops, self.Bursting, len(self.Children)))
			return nil
		},
	})

	reg.Register(&console.Command{
		Name:    "user",
		Help:    "user <nick> -- show one user's state",
		MinArgs: 1,
		Run: func(sess *console.Session, args []string) error {
			u, ok := s.db.User(args[0])
			if !ok {
				return fmt.Errorf("no such user %q", args[0])
			}
			sess.Reply(fmt.Sprintf("%s!%s@%s modes=%d account=%q", u.Nick, u.Ident, u.Hostname, u.Modes, u.Account))
			return nil
		},
	})

	reg.Register(&console.Command{
		Name:    "channel",
		Help:    "channel <#chan> -- show one channel's state",
		MinArgs: 1,
		Run: func(sess *console.Session, args []string) error {
			ch, ok := s.db.Channel(args[0])
			if !ok {
				return fmt.Errorf("no such channel %q", args[0])
			}
			sess.Reply(fmt.Sprintf("%s modes=%d members=%d bans=%d", ch.Name, ch.Modes, len(ch.Members), len(ch.Bans)))
			return nil
		},
	})

	reg.Register(&console.Command{
		Name:    "gline",
		Help:    "gline <add|del|list> ...",
		MinArgs: 1,
		Run: func(sess *console.Session, args []string) error {
			switch args[0] {
			case "list":
				for _, g := range s.glines.All() {
					sess.Reply(fmt.Sprintf("%-40s %-20s %s", g.TargetMask, g.Issuer, g.Reason))
				}
				return nil
			case "add":
				if len(args) < 3 {
					return fmt.Errorf("usage: gline add <mask> <reason>")
				}
				s.glines.Add(sess.Account, args[1], args[2], 0)
				return nil
			case "del":
				if len(args) < 2 {
					return fmt.Errorf("usage: gline del <mask>")
				}
				if !s.glines.Remove(args[1]) {
					return fmt.Errorf("no such gline %q", args[1])
				}
				return nil
			default:
				return fmt.Errorf("unknown gline subcommand %q", args[0])
			}
		},
	})

	reg.Register(&console.Command{
		Name:    "log",
		Help:    "log <level <lvl>|history [n]>",
		MinArgs: 1,
		Run: func(sess *console.Session, args []string) error {
			switch args[0] {
			case "level":
				if len(args) < 2 {
					return fmt.Errorf("usage: log level <debug|info|warn|error|fatal>")
				}
				lvl, err := log.LevelInt(args[1])
				if err != nil {
					return err
				}
				log.SetLevel("stderr", lvl)
				log.SetLevel("ring", lvl)
				return nil
			case "history":
				n := 0
				if len(args) >= 2 {
					if v, err := strconv.Atoi(args[1]); err == nil {
						n = v
					}
				}
				lines, ok := log.RingHistoryLast("ring", n)
				if !ok {
					return fmt.Errorf("no log history available")
				}
				for _, line := range lines {
					sess.Reply(line)
				}
				return nil
			default:
				return fmt.Errorf("unknown log subcommand %q", args[0])
			}
		},
	})

	reg.Register(&console.Command{
		Name: "stats",
		Help: "show basic daemon counters",
		Run: func(sess *console.Session, args []string) error {
			sess.Reply(fmt.Sprintf("glines=%d", s.glines.Count()))
			return nil
		},
	})

	return reg
}

func buildConsoleAuth(cfg *config.Node) console.Authenticator {
	opSect, ok := cfg.Section("console.operators")
	if !ok {
		return func(account, password string) bool { return false }
	}
	return func(account, password string) bool {
		want, ok := opSect.Get(account)
		return ok && want == password
	}
}
