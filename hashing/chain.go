package hashing

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// Digest is the fixed-width chained hash. 128 bits comfortably exceeds the
// spec's "120-bit accumulator is adequate" requirement; it is not a MAC and
// makes no cryptographic-strength claim.
type Digest [16]byte

// String renders the digest as the opaque hex string clients and the wire
// protocol compare for equality. Hashes are never compared in constant time;
// the spec explicitly does not require it.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Equal reports whether two digests are identical.
func (d Digest) Equal(other Digest) bool { return d == other }

// MarshalJSON renders the digest as its hex string, the same form String
// produces.
func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses the hex string produced by MarshalJSON.
func (d *Digest) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("hashing: invalid digest JSON %q", s)
	}
	parsed, ok := ParseDigest(s[1 : len(s)-1])
	if !ok {
		return fmt.Errorf("hashing: invalid digest hex %q", s)
	}
	*d = parsed
	return nil
}

// ParseDigest parses the hex form produced by String. A malformed or
// wrong-length string parses to the zero digest and ok=false; callers treat
// that as "does not match anything we have" rather than panicking.
func ParseDigest(s string) (Digest, bool) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(d) {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// Of hashes an arbitrary canonical value, used for the page's genesis hash
// hashes[0] = hash(pageId).
func Of(v Value) Digest {
	return sum(Encode(v))
}

// Next computes hash_next(prev, action) = hash([prev, action]) as specified:
// the chain element is the canonical encoding of a 2-element sequence
// containing the previous digest (as bytes) and the action's value form.
func Next(prev Digest, action Value) Digest {
	chained := Seq(Bin(prev[:]), action)
	return sum(Encode(chained))
}

func sum(b []byte) Digest {
	h := fnv.New128a()
	h.Write(b)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
