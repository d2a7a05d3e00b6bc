package console

import (
	"net"
	"testing"
	"time"
)

func TestDispatchRunsRegisteredCommand(t *testing.T) {
	reg := NewRegistry()
	var gotArgs []string
	reg.Register(&Command{
		Name:    "echo",
		Help:    "echo args back",
		MinArgs: 1,
		Run: func(s *Session, args []string) error {
			gotArgs = args
			s.Reply("ok: " + args[0])
			return nil
		},
	})

	var replies []string
	sess := &Session{Account: "admin", Reply: func(l string) { replies = append(replies, l) }}
	reg.Dispatch(sess, "echo hello")

	if len(gotArgs) != 1 || gotArgs[0] != "hello" {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	if len(replies) != 2 || replies[0] != "ok: hello" || replies[1] != End {
		t.Fatalf("unexpected replies %v", replies)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	reg := NewRegistry()
	var replies []string
	sess := &Session{Reply: func(l string) { replies = append(replies, l) }}
	reg.Dispatch(sess, "bogus")
	if len(replies) != 2 || replies[0] != "ERR unknown command bogus" {
		t.Fatalf("unexpected replies %v", replies)
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Command{
		Name:    "shutdown",
		Allowed: func(account string) bool { return account == "root" },
		Run:     func(s *Session, args []string) error { return nil },
	})

	var replies []string
	sess := &Session{Account: "guest", Reply: func(l string) { replies = append(replies, l) }}
	reg.Dispatch(sess, "shutdown")
	if replies[0] != "ERR permission denied" {
		t.Fatalf("expected permission denied, got %v", replies)
	}
}

func TestDispatchMinArgs(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Command{Name: "gline", MinArgs: 2, Run: func(s *Session, args []string) error { return nil }})
	var replies []string
	sess := &Session{Reply: func(l string) { replies = append(replies, l) }}
	reg.Dispatch(sess, "gline onlyone")
	if replies[0] != "ERR gline requires at least 2 argument(s)" {
		t.Fatalf("unexpected replies %v", replies)
	}
}

func TestDispatchHandlerPanicBecomesError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Command{Name: "boom", Run: func(s *Session, args []string) error { panic("kaboom") }})
	var replies []string
	sess := &Session{Reply: func(l string) { replies = append(replies, l) }}
	reg.Dispatch(sess, "boom")
	if replies[0] != "ERR internal error running boom" {
		t.Fatalf("unexpected replies %v", replies)
	}
}

func TestServerAuthAndDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Command{Name: "ping", Run: func(s *Session, args []string) error {
		s.Reply("pong")
		return nil
	}})

	srv := NewServer(reg, func(account, password string) bool {
		return account == "admin" && password == "secret"
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go srv.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	conn.Write([]byte("AUTH admin secret\n"))

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil || string(buf[:n]) != "OK\n" {
		t.Fatalf("expected OK after auth, got %q err=%v", string(buf[:n]), err)
	}

	conn.Write([]byte("ping\n"))
	n, err = conn.Read(buf)
	if err != nil {
		t.Fatalf("read after ping: %v", err)
	}
	got := string(buf[:n])
	if got != "pong\n"+End+"\n" {
		t.Fatalf("unexpected response %q", got)
	}
}
