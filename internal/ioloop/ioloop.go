// Package ioloop implements the cooperative single-dispatch I/O and timer
// loop from spec 4.2: exactly one goroutine mutates shared daemon state,
// fed by per-connection reader goroutines over a channel, plus a timer
// heap supporting named, wildcard-cancellable one-shot timers (periodic
// work re-arms its own timer from the callback). Grounded on internal/meshage's client/Node split (client.go's
// per-connection goroutine writing to the node's receive channel,
// drained by Node's single message-handling goroutine in node.go) --
// generalized here from mesh gossip delivery to line-oriented protocol
// I/O, preserving the "only one goroutine touches state" invariant while
// still overlapping network reads concurrently.
package ioloop

import (
	"bufio"
	"container/heap"
	"context"
	"fmt"
	"net"
	"path"
	"sync"
	"time"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

// Line is one inbound line read from a connection, tagged with the
// connection it arrived on so the dispatch loop can reply/close it.
type Line struct {
	Conn *Conn
	Text string
	Err  error // non-nil (with Text=="") signals the connection died
}

// Conn wraps one network connection this loop owns: reads happen on a
// dedicated goroutine, writes happen synchronously from the dispatch
// goroutine only (matching the single-writer discipline the source's
// event loop assumes).
type Conn struct {
	ID  uint64
	raw net.Conn
	w   *bufio.Writer

	mu     sync.Mutex
	closed bool
}

func (c *Conn) WriteLine(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("ioloop: write to closed connection %d", c.ID)
	}
	c.raw.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if _, err := c.w.WriteString(s); err != nil {
		return err
	}
	if !hasSuffixCRLF(s) {
		c.w.WriteString("\r\n")
	}
	return c.w.Flush()
}

func hasSuffixCRLF(s string) bool {
	return len(s) >= 2 && s[len(s)-2] == '\r' && s[len(s)-1] == '\n'
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.raw.Close()
}

func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// timerEntry is one scheduled callback in the timer heap.
type timerEntry struct {
	when  time.Time
	name  string // used for wildcard cancellation, e.g. "gline:expire:*"
	fn    func()
	index int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Loop is the single-dispatch event loop: one Run goroutine drains both
// the line channel (fed by reader goroutines) and due timers, and is the
// only goroutine ever allowed to call into the handler.
type Loop struct {
	lines   chan Line
	handler func(Line)

	mu      sync.Mutex
	timers  timerHeap
	nextConnID uint64

	Now func() time.Time
}

func New(handler func(Line)) *Loop {
	return &Loop{
		lines:   make(chan Line, 256),
		handler: handler,
		Now:     time.Now,
	}
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Adopt starts a reader goroutine for conn, feeding complete lines (and a
// final error record on disconnect) into the loop's shared channel.
func (l *Loop) Adopt(raw net.Conn) *Conn {
	l.mu.Lock()
	l.nextConnID++
	id := l.nextConnID
	l.mu.Unlock()

	c := &Conn{ID: id, raw: raw, w: bufio.NewWriter(raw)}
	go l.readLoop(c)
	return c
}

func (l *Loop) readLoop(c *Conn) {
	r := bufio.NewReaderSize(c.raw, 4096)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			l.lines <- Line{Conn: c, Text: trimCRLF(line)}
		}
		if err != nil {
			l.lines <- Line{Conn: c, Err: err}
			return
		}
	}
}

func trimCRLF(s string) string {
	n := len(s)
	for n > 0 && (s[n-1] == '\n' || s[n-1] == '\r') {
		n--
	}
	return s[:n]
}

// AddTimer schedules fn to run from the dispatch goroutine at 'when'.
// name is matched by CancelTimers for wildcard cancellation using
// path.Match-style globs (e.g. "dns:retry:*").
func (l *Loop) AddTimer(name string, when time.Time, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	heap.Push(&l.timers, &timerEntry{when: when, name: name, fn: fn})
}

// CancelTimers removes every pending timer whose name matches pattern
// (a path.Match glob), returning the count removed.
func (l *Loop) CancelTimers(pattern string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.timers[:0]
	removed := 0
	for _, e := range l.timers {
		if ok, _ := path.Match(pattern, e.name); ok {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.timers = kept
	heap.Init(&l.timers)
	return removed
}

// nextTimerDeadline returns the earliest pending timer's time, or a zero
// time if none are scheduled.
func (l *Loop) nextTimerDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return time.Time{}, false
	}
	return l.timers[0].when, true
}

// popDueTimers removes and returns every timer due at or before now.
func (l *Loop) popDueTimers(now time.Time) []*timerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var due []*timerEntry
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		due = append(due, heap.Pop(&l.timers).(*timerEntry))
	}
	return due
}

// Run drains lines and fires due timers until ctx is cancelled. Exactly
// one goroutine should ever call Run.
func (l *Loop) Run(ctx context.Context) {
	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if when, ok := l.nextTimerDeadline(); ok {
			d := when.Sub(l.now())
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ln := <-l.lines:
			if timer != nil {
				timer.Stop()
			}
			l.handler(ln)

		case <-timerC:
			for _, e := range l.popDueTimers(l.now()) {
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error("ioloop: timer %q panicked: %v", e.name, r)
						}
					}()
					e.fn()
				}()
			}
		}
	}
}
