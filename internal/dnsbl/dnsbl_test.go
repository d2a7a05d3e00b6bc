package dnsbl

import (
	"net"
	"testing"
	"time"
)

func TestCheckHitFiresOnHitAndGline(t *testing.T) {
	zone := Zone{
		Name: "zen.spamhaus.org",
		Mask: 0xff,
		Reasons: map[int]string{
			2: "spam source",
		},
		Duration: time.Hour,
	}

	lookup := func(name string, v6 bool, cb func(addrs []net.IP, err error)) {
		if name != "1.0.0.127.zen.spamhaus.org" {
			t.Fatalf("unexpected query name %q", name)
		}
		cb([]net.IP{net.ParseIP("127.0.0.2")}, nil)
	}

	var hitZone Zone
	var hitReason string
	var glinedMask, glinedReason string
	var glinedDur time.Duration

	c := New([]Zone{zone}, lookup, func(mask, reason string, dur time.Duration) {
		glinedMask, glinedReason, glinedDur = mask, reason, dur
	})

	c.Check(net.ParseIP("127.0.0.1"), "*@baduser.example.net", func(z Zone, reason string) {
		hitZone, hitReason = z, reason
	})

	if hitZone.Name != "zen.spamhaus.org" {
		t.Fatalf("onHit not called with expected zone, got %+v", hitZone)
	}
	if hitReason != "spam source" {
		t.Fatalf("expected reason 'spam source', got %q", hitReason)
	}
	if glinedMask != "*@baduser.example.net" || glinedReason != "spam source" || glinedDur != time.Hour {
		t.Fatalf("gline not issued as expected: mask=%q reason=%q dur=%v", glinedMask, glinedReason, glinedDur)
	}
}

func TestCheckNoHitWhenMaskExcludes(t *testing.T) {
	zone := Zone{Name: "zone.example", Mask: 0x01}
	lookup := func(name string, v6 bool, cb func(addrs []net.IP, err error)) {
		cb([]net.IP{net.ParseIP("127.0.0.2")}, nil) // bit 2 set, mask only allows bit 0
	}

	called := false
	c := New([]Zone{zone}, lookup, nil)
	c.Check(net.ParseIP("10.0.0.1"), "*@x", func(Zone, string) { called = true })
	if called {
		t.Fatalf("onHit should not fire when response bits do not intersect the zone mask")
	}
}

func TestCheckIgnoresNonListingAddress(t *testing.T) {
	zone := Zone{Name: "zone.example", Mask: 0xff}
	lookup := func(name string, v6 bool, cb func(addrs []net.IP, err error)) {
		cb([]net.IP{net.ParseIP("8.8.8.8")}, nil) // not a 127.0.0.x listing address
	}
	called := false
	c := New([]Zone{zone}, lookup, nil)
	c.Check(net.ParseIP("10.0.0.1"), "*@x", func(Zone, string) { called = true })
	if called {
		t.Fatalf("onHit should not fire for a non-127.0.0.x reply")
	}
}
