package identity

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseLocal(t *testing.T) {
	id, err := Parse("local:alice")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Scheme() != "local" || id.Payload() != "alice" {
		t.Fatalf("unexpected parts: %q %q", id.Scheme(), id.Payload())
	}
	if !id.IsLocal() {
		t.Fatalf("expected IsLocal")
	}
}

func TestParseNonLocal(t *testing.T) {
	for _, s := range []string{"url:alice@example.com", "ed25519:abcd"} {
		id, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if id.IsLocal() {
			t.Fatalf("%q should not be local", s)
		}
	}
}

func TestParsePayloadMayContainColon(t *testing.T) {
	id, err := Parse("url:alice@example.com:8080")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Payload() != "alice@example.com:8080" {
		t.Fatalf("payload mismatch: %q", id.Payload())
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"", "noseparator"} {
		if _, err := Parse(s); !errors.Is(err, ErrMissingSeparator) {
			t.Fatalf("parse %q: want ErrMissingSeparator, got %v", s, err)
		}
	}
	if _, err := Parse(":payload"); !errors.Is(err, ErrEmptyScheme) {
		t.Fatalf("want ErrEmptyScheme, got %v", err)
	}
}

func TestRoundtrip(t *testing.T) {
	for _, id := range []Identity{Local("bob"), URL("a@b"), Ed25519("ff00"), New("zot", "x:y:z")} {
		back, err := Parse(id.String())
		if err != nil {
			t.Fatalf("roundtrip %q: %v", id, err)
		}
		if back != id {
			t.Fatalf("roundtrip mismatch: %v != %v", back, id)
		}
	}
}

func TestJSONCanonicalString(t *testing.T) {
	b, err := json.Marshal(Local("alice"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"local:alice"` {
		t.Fatalf("want canonical string form, got %s", b)
	}
	var id Identity
	if err := json.Unmarshal(b, &id); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if id != Local("alice") {
		t.Fatalf("json roundtrip mismatch: %v", id)
	}
}

func TestTrustRegistry(t *testing.T) {
	if TrustOf(Local("x")) != TrustConnection {
		t.Fatalf("local should map to connection trust")
	}
	if TrustOf(URL("a@b")) != TrustServer {
		t.Fatalf("url should map to server trust")
	}
	if TrustOf(Ed25519("ff")) != TrustKey {
		t.Fatalf("ed25519 should map to key trust")
	}
	if TrustOf(New("webid", "x")) != TrustUnknown {
		t.Fatalf("unregistered scheme should be unknown")
	}
	RegisterScheme("webid", TrustServer)
	if TrustOf(New("webid", "x")) != TrustServer {
		t.Fatalf("registered scheme not picked up")
	}
}
