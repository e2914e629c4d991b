// Package action defines the action variants that make up a page's history,
// per spec section "Action variants".
package action

import (
	"encoding/json"
	"fmt"

	"github.com/kubux/whiteboard/hashing"
)

// Type tags an action variant. Kept as a fixed set of string constants
// instead of free-form strings so unknown types are a compile-time
// impossibility for server-authored actions and a clean decode error for
// client-authored ones.
type Type string

const (
	TypeDraw       Type = "draw"
	TypeErase      Type = "erase"
	TypeGroup      Type = "group"
	TypeUndo       Type = "undo"
	TypeRedo       Type = "redo"
	TypeNewPage    Type = "new-page"
	TypeDeletePage Type = "delete-page"
)

// Action is a single history entry. Only the fields relevant to its Type
// are populated; this mirrors the spec's per-variant payload description
// while staying a single concrete struct, which keeps the wire decoder and
// the canonical hashing path simple (no interface{} dispatch).
type Action struct {
	Type Type `json:"type"`

	// UUID is the action's own identifier. Required for Draw, Erase and
	// Group (Erase's own uuid is distinct from its Target).
	UUID string `json:"uuid,omitempty"`

	// Element is Draw's opaque stroke payload, stored and hashed as the
	// exact bytes the client sent — the engine never interprets it.
	Element json.RawMessage `json:"element,omitempty"`

	// Target is Erase's target_uuid, or Undo/Redo's target_action_uuid.
	Target string `json:"target,omitempty"`

	// Actions holds Group's ordered sub-actions.
	Actions []Action `json:"actions,omitempty"`
}

// Validate reports a decode-time structural problem: missing fields
// required by the action's own Type, or an unrecognized Type. This is the
// server's "unknown action type" / "missing required field" ProtocolError
// surface (spec section 4.3 / 4.8), kept separate from commit-time
// CommitConflict checks.
func (a Action) Validate() error {
	switch a.Type {
	case TypeDraw:
		if a.UUID == "" {
			return fmt.Errorf("draw action missing uuid")
		}
		if len(a.Element) == 0 {
			return fmt.Errorf("draw action missing element")
		}
	case TypeErase:
		if a.UUID == "" {
			return fmt.Errorf("erase action missing uuid")
		}
		if a.Target == "" {
			return fmt.Errorf("erase action missing target")
		}
	case TypeGroup:
		if a.UUID == "" {
			return fmt.Errorf("group action missing uuid")
		}
		for i, sub := range a.Actions {
			if sub.Type == TypeGroup {
				return fmt.Errorf("group action %d: nested groups are not an edit sub-action type", i)
			}
			if sub.Type != TypeDraw && sub.Type != TypeErase {
				return fmt.Errorf("group action %d: %q is not a valid edit sub-action", i, sub.Type)
			}
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("group action %d: %w", i, err)
			}
		}
	case TypeUndo, TypeRedo:
		if a.Target == "" {
			return fmt.Errorf("%s action missing target", a.Type)
		}
	case TypeNewPage, TypeDeletePage:
		// board-level, no further required fields
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// IsEdit reports whether an action variant is appended to page history at
// all (Draw/Erase/Group) as opposed to advancing the present cursor
// (Undo/Redo) or operating at board level (NewPage/DeletePage).
func (a Action) IsEdit() bool {
	switch a.Type {
	case TypeDraw, TypeErase, TypeGroup:
		return true
	default:
		return false
	}
}

// Value renders the action as a canonical hashing.Value, the form that is
// actually hashed into the chain. Field order is fixed by this function, not
// by the original JSON, so repeated calls for the same in-memory Action
// always produce the same bytes.
func (a Action) Value() hashing.Value {
	fields := []hashing.Field{
		hashing.F("type", hashing.Str(string(a.Type))),
	}
	if a.UUID != "" {
		fields = append(fields, hashing.F("uuid", hashing.Str(a.UUID)))
	}
	if len(a.Element) != 0 {
		fields = append(fields, hashing.F("element", hashing.Bin(a.Element)))
	}
	if a.Target != "" {
		fields = append(fields, hashing.F("target", hashing.Str(a.Target)))
	}
	if len(a.Actions) != 0 {
		items := make([]hashing.Value, len(a.Actions))
		for i, sub := range a.Actions {
			items[i] = sub.Value()
		}
		fields = append(fields, hashing.F("actions", hashing.Seq(items...)))
	}
	return hashing.Object(fields...)
}

// Decode rebuilds an Action from the canonical hashing.Value produced by
// Value, the inverse used when an action is read back from a page file's
// canonical serialization rather than off the wire. Fields absent from v
// are left at their Go zero value, matching Value's own "omit if empty"
// encoding.
func Decode(v hashing.Value) (Action, error) {
	if v.Kind != hashing.KindObject {
		return Action{}, fmt.Errorf("action: expected an object, got kind %d", v.Kind)
	}
	var a Action
	for _, f := range v.Obj {
		switch f.Key {
		case "type":
			a.Type = Type(f.Val.S)
		case "uuid":
			a.UUID = f.Val.S
		case "element":
			a.Element = json.RawMessage(f.Val.Bytes)
		case "target":
			a.Target = f.Val.S
		case "actions":
			subs := make([]Action, len(f.Val.Seq))
			for i, item := range f.Val.Seq {
				sub, err := Decode(item)
				if err != nil {
					return Action{}, fmt.Errorf("action: sub-action %d: %w", i, err)
				}
				subs[i] = sub
			}
			a.Actions = subs
		}
	}
	if err := a.Validate(); err != nil {
		return Action{}, fmt.Errorf("action: decoded value failed validation: %w", err)
	}
	return a, nil
}
