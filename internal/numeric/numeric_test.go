package numeric

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		n     int64
		width int
	}{
		{0, 1},
		{1, 2},
		{63, 1},
		{64, 2},
		{4095, 2},
		{4096, 3},
	}

	for _, c := range cases {
		s := Encode(c.n, c.width)
		if len(s) != c.width {
			t.Fatalf("Encode(%d, %d) = %q, want length %d", c.n, c.width, s, c.width)
		}
		got, err := Decode(s)
		if err != nil {
			t.Fatalf("Decode(%q): %v", s, err)
		}
		if got != c.n {
			t.Fatalf("Decode(Encode(%d, %d)) = %d, want %d", c.n, c.width, got, c.n)
		}
	}
}

func TestSplitServerPrefix(t *testing.T) {
	prefix, local, err := SplitServerPrefix("AAB", 2)
	if err != nil {
		t.Fatal(err)
	}
	if prefix != "AA" || local != "B" {
		t.Fatalf("got prefix=%q local=%q", prefix, local)
	}

	if _, _, err := SplitServerPrefix("A", 2); err == nil {
		t.Fatal("expected error for too-short token")
	}
}

func TestDecodeInvalidDigit(t *testing.T) {
	if _, err := Decode("A!"); err == nil {
		t.Fatal("expected error for invalid digit")
	}
}

func TestValid(t *testing.T) {
	if !Valid("AA") {
		t.Fatal("AA should be valid")
	}
	if Valid("") {
		t.Fatal("empty string should be invalid")
	}
	if Valid("A!") {
		t.Fatal("A! should be invalid")
	}
}
