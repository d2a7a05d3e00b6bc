package ioloop

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestAdoptDeliversLines(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	var got []string
	l := New(func(ln Line) {
		if ln.Err == nil {
			got = append(got, ln.Text)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Adopt(server)

	go client.Write([]byte("NICK alice\r\n"))

	deadline := time.Now().Add(2 * time.Second)
	for len(got) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(got) != 1 || got[0] != "NICK alice" {
		t.Fatalf("expected one line 'NICK alice', got %v", got)
	}
}

func TestTimerFires(t *testing.T) {
	l := New(func(Line) {})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	fired := make(chan struct{}, 1)
	l.AddTimer("test:once", time.Now().Add(20*time.Millisecond), func() {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire in time")
	}
}

func TestCancelTimersWildcard(t *testing.T) {
	l := New(func(Line) {})
	fired := 0
	l.AddTimer("gline:expire:a", time.Now().Add(time.Hour), func() { fired++ })
	l.AddTimer("gline:expire:b", time.Now().Add(time.Hour), func() { fired++ })
	l.AddTimer("dns:retry:1", time.Now().Add(time.Hour), func() { fired++ })

	n := l.CancelTimers("gline:expire:*")
	if n != 2 {
		t.Fatalf("expected 2 timers cancelled, got %d", n)
	}
	if len(l.timers) != 1 || l.timers[0].name != "dns:retry:1" {
		t.Fatalf("expected only the non-matching timer to survive, got %v", l.timers)
	}
}
