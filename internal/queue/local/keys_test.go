package local

import (
	"bytes"
	"testing"
)

func TestReadyKeyRoundTrip(t *testing.T) {
	var msgID [16]byte
	copy(msgID[:], "0123456789abcdef")

	key := readyKey("orders.fifo", "users-7", msgID)
	group, gotID, ok := parseReadyKey("orders.fifo", key)
	if !ok {
		t.Fatal("parse failed")
	}
	if group != "users-7" {
		t.Fatalf("group: %s", group)
	}
	if gotID != msgID {
		t.Fatalf("id mismatch")
	}
}

func TestReadyKeyGroupWithSlash(t *testing.T) {
	var msgID [16]byte
	msgID[0] = 0xAA

	key := readyKey("q.fifo", "a/b", msgID)
	group, gotID, ok := parseReadyKey("q.fifo", key)
	if !ok || group != "a/b" || gotID != msgID {
		t.Fatalf("parse: %v %q", ok, group)
	}
}

func TestParseReadyKeyRejectsShort(t *testing.T) {
	if _, _, ok := parseReadyKey("q.fifo", []byte("q/q.fifo/ready/x")); ok {
		t.Fatal("short key should not parse")
	}
}

func TestDelayKeyOrdering(t *testing.T) {
	var msgID [16]byte
	early := delayKey("q.fifo", 1000, msgID)
	late := delayKey("q.fifo", 2000, msgID)
	if bytes.Compare(early, late) >= 0 {
		t.Fatal("delay keys must sort by fire time")
	}
}

func TestURLRoundTrip(t *testing.T) {
	url := urlFor("orders.fifo")
	name, ok := nameFromURL(url)
	if !ok || name != "orders.fifo" {
		t.Fatalf("round trip: %v %s", ok, name)
	}
	if _, ok := nameFromURL("http://elsewhere"); ok {
		t.Fatal("foreign scheme should not parse")
	}
	if _, ok := nameFromURL(urlScheme); ok {
		t.Fatal("empty name should not parse")
	}
}
