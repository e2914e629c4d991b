package hashing

import "testing"

func TestEncodeIsByteStable(t *testing.T) {
	a := Object(F("b", Int(2)), F("a", Int(1)))
	b := Object(F("b", Int(2)), F("a", Int(1)))
	if string(Encode(a)) != string(Encode(b)) {
		t.Fatalf("equal objects encoded differently")
	}
}

func TestEncodeInsertionOrderMatters(t *testing.T) {
	a := Object(F("a", Int(1)), F("b", Int(2)))
	b := Object(F("b", Int(2)), F("a", Int(1)))
	if string(Encode(a)) == string(Encode(b)) {
		t.Fatalf("objects with different key order should not collide")
	}
}

func TestSetAndMapAreTaggedSequences(t *testing.T) {
	s := Set(Str("x"), Str("y"))
	m := OrderedMap(P(Str("x"), Int(1)), P(Str("y"), Int(2)))
	if s.Kind != KindSet || m.Kind != KindOrderedMap {
		t.Fatalf("unexpected kinds")
	}
	// A set and a map with unrelated contents must not accidentally collide.
	if string(Encode(s)) == string(Encode(m)) {
		t.Fatalf("set and map encodings collided")
	}
}

func TestChainDeterministic(t *testing.T) {
	genesis := Of(Str("page-1"))
	a := Object(F("type", Str("draw")), F("uuid", Str("u1")))
	b := Object(F("type", Str("draw")), F("uuid", Str("u2")))

	h1 := Next(genesis, a)
	h1again := Next(genesis, a)
	if h1 != h1again {
		t.Fatalf("Next is not deterministic for identical inputs")
	}

	h2 := Next(h1, b)
	if h2 == h1 {
		t.Fatalf("chaining a different action produced the same digest")
	}
	if h2 == genesis {
		t.Fatalf("chained digest collided with genesis")
	}
}

func TestDigestRoundTripsThroughString(t *testing.T) {
	d := Of(Str("round-trip"))
	parsed, ok := ParseDigest(d.String())
	if !ok {
		t.Fatalf("failed to parse a digest we just rendered")
	}
	if !d.Equal(parsed) {
		t.Fatalf("parsed digest does not equal original")
	}
}

func TestParseDigestRejectsGarbage(t *testing.T) {
	if _, ok := ParseDigest("not-hex"); ok {
		t.Fatalf("expected failure parsing non-hex string")
	}
	if _, ok := ParseDigest("abcd"); ok {
		t.Fatalf("expected failure parsing short hex string")
	}
}
