package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
server {
    name "hub.example.net";
    numeric "AA";
    uplink {
        host "1.2.3.4";
        port 7000;
    };
};
# a comment line
gline_duration 3600;
`

func TestParseNestedBlocks(t *testing.T) {
	n, err := Parse(bufio.NewReader(strings.NewReader(sample)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	name, ok := n.Get("server.name")
	if !ok || name != "hub.example.net" {
		t.Fatalf("expected server.name=hub.example.net, got %q ok=%v", name, ok)
	}

	port := n.GetInt("server.uplink.port", 0)
	if port != 7000 {
		t.Fatalf("expected port 7000, got %d", port)
	}

	if n.GetInt("gline_duration", 0) != 3600 {
		t.Fatalf("expected top-level gline_duration=3600")
	}

	if _, ok := n.Section("server.uplink"); !ok {
		t.Fatalf("expected server.uplink section to resolve")
	}
}

func TestLoaderReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.conf")
	if err := os.WriteFile(path, []byte(`val "one";`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if v, _ := l.Current().Get("val"); v != "one" {
		t.Fatalf("expected initial value 'one', got %q", v)
	}

	stop := make(chan struct{})
	defer close(stop)
	if err := l.Watch(stop); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	reloaded := make(chan *Node, 1)
	l.OnReload(func(n *Node) { reloaded <- n })

	if err := os.WriteFile(path, []byte(`val "two";`), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case n := <-reloaded:
		if v, _ := n.Get("val"); v != "two" {
			t.Fatalf("expected reloaded value 'two', got %q", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("reload callback not invoked in time")
	}
}
