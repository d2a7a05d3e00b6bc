package resolver

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

type fakePacketConn struct {
	net.PacketConn
	written []byte
	to      net.Addr
}

func (f *fakePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	f.written = append([]byte(nil), p...)
	f.to = addr
	return len(p), nil
}

func TestSearchCandidatesQualifiedNameSkipsSearchList(t *testing.T) {
	got := searchCandidates("www.example.com", []string{"corp.local"})
	if len(got) != 1 || got[0] != "www.example.com." {
		t.Fatalf("qualified name should bypass search list, got %v", got)
	}
}

func TestSearchCandidatesUnqualifiedAppendsSearchList(t *testing.T) {
	got := searchCandidates("host1", []string{"corp.local", "example.net"})
	want := []string{"host1.corp.local.", "host1.example.net.", "host1."}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestLookupHostSendsQuery(t *testing.T) {
	conn := &fakePacketConn{}
	r := New(Config{Nameservers: []string{"127.0.0.1:53"}}, conn)

	err := r.LookupHost("host1.example.net", false, func(Result) {})
	if err != nil {
		t.Fatalf("LookupHost: %v", err)
	}
	if len(conn.written) == 0 {
		t.Fatalf("expected a query packet to be written")
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(conn.written); err != nil {
		t.Fatalf("Unpack sent query: %v", err)
	}
	if len(msg.Question) != 1 || msg.Question[0].Qtype != dns.TypeA {
		t.Fatalf("expected one A question, got %v", msg.Question)
	}
	if r.Pending() != 1 {
		t.Fatalf("expected one pending request")
	}
}

func TestDeliverDispatchesToCallback(t *testing.T) {
	conn := &fakePacketConn{}
	r := New(Config{Nameservers: []string{"127.0.0.1:53"}}, conn)

	var got Result
	called := false
	if err := r.LookupHost("host1.example.net", false, func(res Result) { got = res; called = true }); err != nil {
		t.Fatalf("LookupHost: %v", err)
	}

	query := new(dns.Msg)
	if err := query.Unpack(conn.written); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	resp := new(dns.Msg)
	resp.SetReply(query)
	rr, err := dns.NewRR("host1.example.net. 300 IN A 192.0.2.1")
	if err != nil {
		t.Fatalf("NewRR: %v", err)
	}
	resp.Answer = append(resp.Answer, rr)
	packed, err := resp.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	r.Deliver(packed)
	if !called {
		t.Fatalf("expected callback to be invoked")
	}
	if len(got.Addrs) != 1 || !got.Addrs[0].Equal(net.ParseIP("192.0.2.1")) {
		t.Fatalf("expected resolved address 192.0.2.1, got %v", got.Addrs)
	}
	if r.Pending() != 0 {
		t.Fatalf("request should be cleared from the pending table")
	}
}

func TestTickExpiresAfterRetries(t *testing.T) {
	conn := &fakePacketConn{}
	r := New(Config{Nameservers: []string{"127.0.0.1:53"}, Timeout: time.Second, Retries: 1}, conn)

	var gotErr error
	if err := r.LookupHost("host1.example.net", false, func(res Result) { gotErr = res.Err }); err != nil {
		t.Fatalf("LookupHost: %v", err)
	}

	base := time.Now()
	r.Tick(base.Add(2 * time.Second)) // first retry
	if r.Pending() != 1 {
		t.Fatalf("expected request to survive first retry")
	}
	r.Tick(base.Add(4 * time.Second)) // exceeds retry budget
	if r.Pending() != 0 {
		t.Fatalf("expected request to be expired")
	}
	if gotErr == nil {
		t.Fatalf("expected timeout error to be delivered to callback")
	}
}
