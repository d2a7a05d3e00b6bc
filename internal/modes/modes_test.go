package modes

import (
	"net"
	"testing"
	"time"

	"github.com/GameSurge/srvx-sub002/internal/netstate"
)

func newTestDB(t *testing.T) (*netstate.DB, *netstate.User, *netstate.Channel) {
	t.Helper()
	db := netstate.New("hub.example.net", "test hub", "AA", 255, time.Unix(1700000000, 0))
	u, err := db.AddUser(firstServer(db), "Alice", "alice", "host", 0, 1, "AAAAAB", "Alice", time.Unix(1700000100, 0), net.ParseIP("127.0.0.1"))
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	m, ok := db.AddChannelUser(u.ID, "#test", time.Unix(1700000000, 0))
	if !ok {
		t.Fatalf("AddChannelUser failed")
	}
	ch, _ := db.Channel("#test")
	_ = m
	return db, u, ch
}

func firstServer(db *netstate.DB) netstate.ServerID {
	return db.Self().ID
}

func TestParseSimpleFlags(t *testing.T) {
	c, err := Parse("#test", "Op", "+mt-s", nil, time.Unix(1700000200, 0))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Set&netstate.ChanModerated == 0 || c.Set&netstate.ChanTopicOpOnly == 0 {
		t.Fatalf("expected +m+t set, got %v", c.Set)
	}
	if c.Clear&netstate.ChanSecret == 0 {
		t.Fatalf("expected -s cleared, got %v", c.Clear)
	}
}

func TestParsePrivateSecretExclusive(t *testing.T) {
	c, err := Parse("#test", "Op", "+s", nil, time.Unix(1700000200, 0))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Clear&netstate.ChanPrivate == 0 {
		t.Fatalf("setting secret should force-clear private")
	}
}

func TestParseAndApplyOpVoiceBan(t *testing.T) {
	db, u, _ := newTestDB(t)

	c, err := Parse("#test", "Op", "+ob", []string{"Alice", "*!*@*.evil.net"}, time.Unix(1700000200, 0))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Apply(db, c); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	ch, _ := db.Channel("#test")
	m, ok := db.FindMembership(u.ID, ch.ID)
	if !ok || m.Flags&netstate.MemberOp == 0 {
		t.Fatalf("expected Alice to be opped")
	}
	if len(ch.Bans) != 1 || ch.Bans[0].Pattern != "*!*@*.evil.net" {
		t.Fatalf("expected ban to be recorded, got %v", ch.Bans)
	}
}

func TestParseLimitAndKey(t *testing.T) {
	db, _, _ := newTestDB(t)
	c, err := Parse("#test", "Op", "+lk", []string{"10", "secret"}, time.Unix(1700000200, 0))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Apply(db, c); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	ch, _ := db.Channel("#test")
	if ch.Limit != 10 || ch.Key != "secret" {
		t.Fatalf("expected limit=10 key=secret, got limit=%d key=%q", ch.Limit, ch.Key)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	c, err := Parse("#test", "Op", "+mt", nil, time.Unix(1700000200, 0))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := Format(c)
	if out != "+mt" && out != "+tm" {
		t.Fatalf("unexpected format output %q", out)
	}
}

func TestAnnounceSplitsLongChanges(t *testing.T) {
	c := &Change{Channel: "#test"}
	for i := 0; i < 100; i++ {
		c.Args = append(c.Args, Arg{Type: ArgBan, Target: "verylongmask!ident@host12345678901234567890.evil.example.net"})
	}
	frags := Announce(c)
	if len(frags) < 2 {
		t.Fatalf("expected long change to be split across multiple announce fragments, got %d", len(frags))
	}
	for _, f := range frags {
		if len(f) > 450 {
			t.Fatalf("fragment exceeds soft cap: %d bytes", len(f))
		}
	}
}
