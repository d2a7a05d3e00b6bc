// Package console implements the operator control socket referenced by
// SPEC_FULL.md section 11: a line-oriented command protocol, structurally
// similar to the server-link protocol it shares a process with (newline
// framed, one command per line, multi-line responses terminated by a
// sentinel), but its own small command registry rather than a port of
// proto-p10. Commands are registered by name with a handler and an
// optional permission predicate; unknown commands and handler panics are
// both turned into an error response rather than taking down the
// connection.
package console

import (
	"bufio"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

// End is the sentinel line marking the end of one command's response,
// distinct from any line a command's own output could plausibly emit.
const End = ".\x00"

// Session describes the caller of a command: the account name they
// authenticated as (for permission checks) and a Reply sink.
type Session struct {
	Account string
	Reply   func(line string)
}

// Handler runs one command. args excludes the command name itself.
// Returned error becomes a single "ERR <message>" reply line.
type Handler func(s *Session, args []string) error

// Command is one registered console verb.
type Command struct {
	Name    string
	Help    string
	MinArgs int
	Allowed func(account string) bool // nil means any authenticated session
	Run     Handler
}

// Registry holds every registered Command, keyed by name.
type Registry struct {
	mu  sync.RWMutex
	cmd map[string]*Command
}

func NewRegistry() *Registry {
	return &Registry{cmd: make(map[string]*Command)}
}

func (r *Registry) Register(c *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmd[strings.ToLower(c.Name)] = c
}

func (r *Registry) lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cmd[strings.ToLower(name)]
	return c, ok
}

// Help returns every registered command's name and help text, sorted by
// name, for a built-in "help" command.
func (r *Registry) Help() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cmd))
	for n := range r.cmd {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, fmt.Sprintf("%-16s %s", n, r.cmd[n].Help))
	}
	return out
}

// Dispatch parses one input line as "command arg1 arg2 ..." (simple
// whitespace splitting, so no argument can contain spaces) and runs the
// matching registered command, replying through
// sess.Reply and finally emitting End.
func (r *Registry) Dispatch(sess *Session, line string) {
	defer sess.Reply(End)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	name, args := fields[0], fields[1:]

	if strings.EqualFold(name, "help") {
		for _, h := range r.Help() {
			sess.Reply(h)
		}
		return
	}

	cmd, ok := r.lookup(name)
	if !ok {
		sess.Reply("ERR unknown command " + name)
		return
	}
	if cmd.Allowed != nil && !cmd.Allowed(sess.Account) {
		sess.Reply("ERR permission denied")
		return
	}
	if len(args) < cmd.MinArgs {
		sess.Reply(fmt.Sprintf("ERR %s requires at least %d argument(s)", cmd.Name, cmd.MinArgs))
		return
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("console: command %q panicked: %v", name, rec)
				sess.Reply(fmt.Sprintf("ERR internal error running %s", name))
			}
		}()
		if err := cmd.Run(sess, args); err != nil {
			sess.Reply("ERR " + err.Error())
		}
	}()
}

// Authenticator validates a password-style login for the control socket.
type Authenticator func(account, password string) bool

// Server accepts connections on a listener and serves the console
// protocol: the first line must be "AUTH <account> <password>", after
// which every subsequent line is dispatched as a command.
type Server struct {
	Registry *Registry
	Auth     Authenticator
}

func NewServer(reg *Registry, auth Authenticator) *Server {
	return &Server{Registry: reg, Auth: auth}
}

// Serve accepts connections from ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	reply := func(line string) {
		w.WriteString(line)
		w.WriteString("\n")
		w.Flush()
	}

	authLine, err := r.ReadString('\n')
	if err != nil {
		return
	}
	fields := strings.Fields(authLine)
	if len(fields) != 3 || !strings.EqualFold(fields[0], "AUTH") {
		reply("ERR expected AUTH <account> <password>")
		return
	}
	account, password := fields[1], fields[2]
	if s.Auth == nil || !s.Auth(account, password) {
		reply("ERR authentication failed")
		return
	}
	reply("OK")

	sess := &Session{Account: account, Reply: reply}
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			s.Registry.Dispatch(sess, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}
