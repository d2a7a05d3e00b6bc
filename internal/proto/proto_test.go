package proto

import (
	"reflect"
	"testing"
)

func TestSplitBasic(t *testing.T) {
	origin, cmd, args, colon, err := Split(":AA N Alice 1 100 ~u host.example.com +oi AAAAAA AAAAAB :Real Name")
	if err != nil {
		t.Fatal(err)
	}
	if origin != "AA" || cmd != "N" {
		t.Fatalf("origin=%q cmd=%q", origin, cmd)
	}
	want := []string{"Alice", "1", "100", "~u", "host.example.com", "+oi", "AAAAAA", "AAAAAB", "Real Name"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args=%#v want %#v", args, want)
	}
	if !colon {
		t.Fatal("expected colonArg true")
	}
}

func TestSplitNoOrigin(t *testing.T) {
	origin, cmd, args, _, err := Split("SERVER hub.example.net 1 100 100 J]] +s :hub")
	if err != nil {
		t.Fatal(err)
	}
	if origin != "" {
		t.Fatalf("expected empty origin, got %q", origin)
	}
	if cmd != "SERVER" {
		t.Fatalf("cmd=%q", cmd)
	}
	if args[len(args)-1] != "hub" {
		t.Fatalf("last arg=%q", args[len(args)-1])
	}
}

func TestSplitEmpty(t *testing.T) {
	if _, _, _, _, err := Split(""); err == nil {
		t.Fatal("expected error for empty line")
	}
	if _, _, _, _, err := Split("\r\n"); err == nil {
		t.Fatal("expected error for blank line")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	line := Format("AA", "P", []string{"#test", "hello there"}, false)
	origin, cmd, args, colon, err := Split(line)
	if err != nil {
		t.Fatal(err)
	}
	if origin != "AA" || cmd != "P" || !colon {
		t.Fatalf("origin=%q cmd=%q colon=%v", origin, cmd, colon)
	}
	if args[0] != "#test" || args[1] != "hello there" {
		t.Fatalf("args=%#v", args)
	}
}

func TestResolveAliases(t *testing.T) {
	for _, tok := range []string{"NICK", "nick", "N", "n"} {
		cmd, ok := Resolve(tok)
		if !ok || cmd != CmdNick {
			t.Fatalf("Resolve(%q) = %q, %v", tok, cmd, ok)
		}
	}
	if _, ok := Resolve("BOGUS"); ok {
		t.Fatal("expected unknown command to fail resolution")
	}
}

func TestFormatTruncatesAtMaxLine(t *testing.T) {
	huge := make([]byte, MaxLine*2)
	for i := range huge {
		huge[i] = 'x'
	}
	line := Format("AA", "P", []string{"#test", string(huge)}, true)
	if len(line) > MaxLine-2 {
		t.Fatalf("line length %d exceeds MaxLine-2", len(line))
	}
}

func TestFormatNumeric(t *testing.T) {
	line := FormatNumeric("irc.example.net", 401, "Bob", "Alice", "No such nick/channel")
	origin, cmd, args, _, err := Split(line)
	if err != nil {
		t.Fatal(err)
	}
	if origin != "irc.example.net" || cmd != "401" {
		t.Fatalf("origin=%q cmd=%q", origin, cmd)
	}
	if args[0] != "Bob" || args[1] != "Alice" || args[2] != "No such nick/channel" {
		t.Fatalf("args=%#v", args)
	}
}
