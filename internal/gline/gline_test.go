package gline

import (
	"testing"
	"time"
)

func TestAddAndFind(t *testing.T) {
	s := New()
	s.Now = func() time.Time { return time.Unix(1700000000, 0) }

	s.Add("oper", "*@*.evil.net", "spam", time.Hour)
	g, ok := s.Find("*@*.evil.net")
	if !ok {
		t.Fatalf("expected to find gline")
	}
	if g.Permanent() {
		t.Fatalf("duration>0 should not be permanent")
	}
}

func TestRefreshNeverShortens(t *testing.T) {
	s := New()
	now := time.Unix(1700000000, 0)
	s.Now = func() time.Time { return now }

	s.Add("oper", "*@*.evil.net", "spam", 2*time.Hour)
	longExpiry := s.byMask["*@*.evil.net"].Expires

	s.Add("oper2", "*@*.evil.net", "spam again", time.Minute)
	g, _ := s.Find("*@*.evil.net")
	if !g.Expires.Equal(longExpiry) {
		t.Fatalf("refresh with a shorter duration must not shorten expiry: got %v want %v", g.Expires, longExpiry)
	}
}

func TestRefreshPermanentStaysPermanent(t *testing.T) {
	s := New()
	s.Add("oper", "*@*.evil.net", "spam", 0)
	s.Add("oper", "*@*.evil.net", "spam", time.Hour)
	g, _ := s.Find("*@*.evil.net")
	if !g.Permanent() {
		t.Fatalf("refreshing a permanent gline with a finite duration must stay permanent")
	}
}

func TestExpireAll(t *testing.T) {
	s := New()
	now := time.Unix(1700000000, 0)
	s.Now = func() time.Time { return now }
	s.Add("oper", "*@*.a.net", "x", time.Minute)
	s.Add("oper", "*@*.b.net", "x", 0)

	s.Now = func() time.Time { return now.Add(2 * time.Minute) }
	expired := s.ExpireAll()
	if len(expired) != 1 || expired[0].TargetMask != "*@*.a.net" {
		t.Fatalf("expected exactly the timed gline to expire, got %v", expired)
	}
	if s.Count() != 1 {
		t.Fatalf("expected one surviving gline, got %d", s.Count())
	}
}

func TestSearchDiscriminator(t *testing.T) {
	s := New()
	s.Add("oper", "*@host1.evil.net", "spam", time.Hour)
	s.Add("oper", "*@host2.evil.net", "abuse", time.Hour)
	s.Add("oper", "*@good.net", "spam", time.Hour)

	var hits []string
	n := s.Search(Discriminator{ReasonMask: "spam"}, func(g *Gline) { hits = append(hits, g.TargetMask) })
	if n != 2 {
		t.Fatalf("expected 2 matches by reason, got %d", n)
	}

	hits = nil
	n = s.Search(Discriminator{TargetMask: "*evil.net", MaskType: Subset}, func(g *Gline) { hits = append(hits, g.TargetMask) })
	if n != 2 {
		t.Fatalf("expected 2 matches under *evil.net, got %d", n)
	}
}

func TestOnChangeFires(t *testing.T) {
	s := New()
	var added, removed int
	s.OnChange(func(g *Gline, isRemove bool) {
		if isRemove {
			removed++
		} else {
			added++
		}
	})
	s.Add("oper", "*@x.net", "r", time.Hour)
	s.Remove("*@x.net")
	if added != 1 || removed != 1 {
		t.Fatalf("expected one add and one remove callback, got added=%d removed=%d", added, removed)
	}
}
