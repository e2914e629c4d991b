package protocol

import "testing"

func TestDecodeType(t *testing.T) {
	typ, err := decodeType([]byte(`{"type":"register-board","boardId":"b1"}`))
	if err != nil {
		t.Fatalf("decodeType: %v", err)
	}
	if typ != TypeRegisterBoard {
		t.Fatalf("type = %q, want %q", typ, TypeRegisterBoard)
	}
}

func TestDecodeTypeMalformed(t *testing.T) {
	if _, err := decodeType([]byte(`not json`)); err == nil {
		t.Fatalf("expected an error for malformed input")
	}
}
