package id

import (
	"bytes"
	"testing"
)

func TestFromRoundTrip(t *testing.T) {
	id := From(1700000000000, 42)
	if id.TimeMs() != 1700000000000 {
		t.Fatalf("time: %d", id.TimeMs())
	}
	parsed, err := Parse(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip: %s != %s", parsed, id)
	}
	if !bytes.Equal(parsed.Bytes(), id[:]) {
		t.Fatal("bytes mismatch")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, s := range []string{
		"",
		"zz",
		"abcd",                             // too short
		"000102030405060708090a0b0c0d0e0f00", // too long
		"g00102030405060708090a0b0c0d0e0f", // not hex
	} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("parse %q: expected error", s)
		}
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 10000; i++ {
		next := g.Next()
		if bytes.Compare(next[:], prev[:]) <= 0 {
			t.Fatalf("not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestGeneratorPinsClockRegression(t *testing.T) {
	now := int64(1700000000000)
	orig := nowMs
	nowMs = func() int64 { return now }
	defer func() { nowMs = orig }()

	g := NewGenerator()
	first := g.Next()

	// The wall clock jumps backwards; issued IDs must not.
	now -= 5000
	second := g.Next()
	if second.TimeMs() != first.TimeMs() {
		t.Fatalf("timestamp moved: %d -> %d", first.TimeMs(), second.TimeMs())
	}
	if bytes.Compare(second[:], first[:]) <= 0 {
		t.Fatal("id went backwards under clock regression")
	}
}

func TestGeneratorSequenceResetsOnNewMillisecond(t *testing.T) {
	now := int64(1700000000000)
	orig := nowMs
	nowMs = func() int64 { return now }
	defer func() { nowMs = orig }()

	g := NewGenerator()
	g.Next()
	a := g.Next()
	if got := a[15]; got != 1 {
		t.Fatalf("sequence within same ms: %d", got)
	}

	now++
	b := g.Next()
	if got := b[15]; got != 0 {
		t.Fatalf("sequence after tick: %d", got)
	}
	if b.TimeMs() != now {
		t.Fatalf("timestamp: %d", b.TimeMs())
	}
}
