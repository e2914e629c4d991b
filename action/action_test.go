package action

import (
	"encoding/json"
	"testing"
)

func TestDecodeRoundTripsDraw(t *testing.T) {
	a := Action{Type: TypeDraw, UUID: "u1", Element: json.RawMessage(`{"x":1}`)}
	decoded, err := Decode(a.Value())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != a.Type || decoded.UUID != a.UUID || string(decoded.Element) != string(a.Element) {
		t.Fatalf("round-tripped action differs: got %+v, want %+v", decoded, a)
	}
}

func TestDecodeRoundTripsGroup(t *testing.T) {
	a := Action{
		Type: TypeGroup,
		UUID: "g1",
		Actions: []Action{
			{Type: TypeDraw, UUID: "u1", Element: json.RawMessage(`{}`)},
			{Type: TypeErase, UUID: "u2", Target: "u1"},
		},
	}
	decoded, err := Decode(a.Value())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Actions) != 2 || decoded.Actions[1].Target != "u1" {
		t.Fatalf("round-tripped group differs: got %+v", decoded)
	}
}

func TestDecodeRoundTripsUndo(t *testing.T) {
	a := Action{Type: TypeUndo, Target: "u1"}
	decoded, err := Decode(a.Value())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != TypeUndo || decoded.Target != "u1" {
		t.Fatalf("round-tripped undo differs: got %+v", decoded)
	}
}

func TestDecodeRejectsInvalidValue(t *testing.T) {
	// A draw action missing its required element field, wire-equivalent
	// to a canonical value that never passed Validate on encode.
	bad := Action{Type: TypeDraw, UUID: "u1"}.Value()
	if _, err := Decode(bad); err == nil {
		t.Fatalf("expected decode to reject a structurally invalid draw")
	}
}
