package netstate

import (
	"net"
	"testing"
	"time"
)

func newTestDB() *DB {
	return New("hub.example.net", "test hub", "AA", 255, time.Unix(1700000000, 0))
}

func TestAddUserAndLookup(t *testing.T) {
	db := newTestDB()
	u, err := db.AddUser(db.self, "Alice", "alice", "host.example.net", 0, 1, "AAAAAB", "Alice Real Name", time.Unix(1700000100, 0), net.ParseIP("127.0.0.1"))
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	got, ok := db.User("alice")
	if !ok || got.ID != u.ID {
		t.Fatalf("User lookup failed, ok=%v", ok)
	}
}

func TestNickCollisionOlderWins(t *testing.T) {
	db := newTestDB()
	_, err := db.AddUser(db.self, "Bob", "bob", "host", 0, 1, "AAAAAB", "Bob", time.Unix(1700000100, 0), nil)
	if err != nil {
		t.Fatalf("first AddUser: %v", err)
	}

	_, err = db.AddUser(db.self, "Bob", "bob2", "host2", 0, 2, "AAAAAC", "Bob2", time.Unix(1700000200, 0), nil)
	if err == nil {
		t.Fatalf("expected newer introduction to be dropped")
	}
	if _, ok := db.User("bob"); !ok {
		t.Fatalf("original user should still be present")
	}
}

func TestNickCollisionNewerReplacesOlder(t *testing.T) {
	db := newTestDB()
	first, _ := db.AddUser(db.self, "Carol", "c1", "host", 0, 1, "AAAAAB", "Carol", time.Unix(1700000200, 0), nil)

	second, err := db.AddUser(db.self, "Carol", "c2", "host2", 0, 2, "AAAAAC", "Carol2", time.Unix(1700000100, 0), nil)
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if second.Ident != "c2" {
		t.Fatalf("expected new introduction to win, got ident %q", second.Ident)
	}
	if u := db.users[first.ID]; !u.Dead {
		t.Fatalf("older colliding user should be marked dead")
	}
}

func TestJoinPartDestroysEmptyChannel(t *testing.T) {
	db := newTestDB()
	u, _ := db.AddUser(db.self, "Dave", "dave", "host", 0, 1, "AAAAAB", "Dave", time.Unix(1700000100, 0), nil)

	m, ok := db.AddChannelUser(u.ID, "#test", time.Unix(1700000000, 0))
	if !ok {
		t.Fatalf("AddChannelUser failed")
	}
	if _, ok := db.Channel("#test"); !ok {
		t.Fatalf("channel should exist after join")
	}

	db.DelChannelUser(u.ID, m.Channel, "leaving", false)
	if _, ok := db.Channel("#test"); ok {
		t.Fatalf("empty unlocked channel should be destroyed")
	}
}

func TestQuitUserDeferredDrain(t *testing.T) {
	db := newTestDB()
	u, _ := db.AddUser(db.self, "Eve", "eve", "host", 0, 1, "AAAAAB", "Eve", time.Unix(1700000100, 0), nil)

	db.QuitUser(u.ID, "bye")
	if _, ok := db.User("eve"); ok {
		t.Fatalf("quit user should no longer be looked up by nick")
	}
	if _, present := db.users[u.ID]; !present {
		t.Fatalf("user should still be present in arena until DrainDeferred")
	}

	db.DrainDeferred()
	if _, present := db.users[u.ID]; present {
		t.Fatalf("DrainDeferred should free the tombstoned user")
	}
}

func TestBanSupersetInvariant(t *testing.T) {
	ch := &Channel{Name: "#test"}

	ch.AddBan("evil!*@*.example.net", "op", time.Unix(1700000000, 0))
	removed := ch.AddBan("*!*@*.example.net", "op", time.Unix(1700000001, 0))
	if len(removed) != 1 || removed[0] != "evil!*@*.example.net" {
		t.Fatalf("broader ban should subsume narrower one, removed=%v", removed)
	}
	if len(ch.Bans) != 1 {
		t.Fatalf("expected exactly one ban after subsumption, got %d", len(ch.Bans))
	}

	redundant := ch.AddBan("evil2!*@*.example.net", "op", time.Unix(1700000002, 0))
	if redundant != nil {
		t.Fatalf("narrower ban should be rejected as redundant")
	}
	if len(ch.Bans) != 1 {
		t.Fatalf("redundant ban should not have been added")
	}
}

func TestReconcileBurstIncomingWins(t *testing.T) {
	ch := &Channel{Name: "#net", TS: time.Unix(1700000100, 0), Modes: ChanModerated}
	won := ReconcileBurst(ch, time.Unix(1700000000, 0), ChanPrivate, 0, "", "", "", []Ban{{Pattern: "x!*@*"}}, nil)
	if !won {
		t.Fatalf("earlier incoming TS should win")
	}
	if ch.Modes != ChanPrivate {
		t.Fatalf("winning side's modes should replace local modes")
	}
}

func TestReconcileBurstLocalWins(t *testing.T) {
	ch := &Channel{Name: "#net", TS: time.Unix(1700000000, 0), Modes: ChanModerated}
	won := ReconcileBurst(ch, time.Unix(1700000100, 0), ChanPrivate, 0, "", "", "", []Ban{{Pattern: "x!*@*"}}, nil)
	if won {
		t.Fatalf("later incoming TS should not win")
	}
	if ch.Modes != ChanModerated {
		t.Fatalf("local modes should be preserved when local wins")
	}
	if len(ch.Bans) != 1 {
		t.Fatalf("bans should still union in even when local wins")
	}
}
