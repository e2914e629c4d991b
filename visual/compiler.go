// Package visual implements the pure commit/revert compiler over a page's
// visual state, per spec section 4.2.
package visual

import (
	"encoding/json"
	"fmt"

	"github.com/kubux/whiteboard/action"
)

// State is the pair (element_table, visible_set) the spec describes.
// Elements holds every Draw ever committed (even currently hidden ones);
// Visible holds the uuids currently shown.
type State struct {
	Elements map[string]json.RawMessage
	Visible  map[string]struct{}
}

// New returns an empty visual state.
func New() State {
	return State{
		Elements: make(map[string]json.RawMessage),
		Visible:  make(map[string]struct{}),
	}
}

// Clone deep-copies a State. Used to snapshot before attempting a Group so
// a failed sub-action can restore the prior state exactly.
func (s State) Clone() State {
	c := State{
		Elements: make(map[string]json.RawMessage, len(s.Elements)),
		Visible:  make(map[string]struct{}, len(s.Visible)),
	}
	for k, v := range s.Elements {
		c.Elements[k] = v
	}
	for k := range s.Visible {
		c.Visible[k] = struct{}{}
	}
	return c
}

// VisibleSet returns a copy of the set of uuids currently visible (an
// unordered map), primarily for
// equality comparisons in tests and for the "state == compile" consistency
// check (spec section 9).
func (s State) VisibleSet() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Visible))
	for k := range s.Visible {
		out[k] = struct{}{}
	}
	return out
}

// Equal reports whether two states have the same visible set. Elements are
// deliberately excluded: a Draw that was committed then erased still
// occupies Elements on both sides as long as both states trace the same
// history, and the spec's invariant 4 is phrased purely in terms of
// Visible.
func (s State) Equal(other State) bool {
	if len(s.Visible) != len(other.Visible) {
		return false
	}
	for k := range s.Visible {
		if _, ok := other.Visible[k]; !ok {
			return false
		}
	}
	return true
}

// CommitDraw inserts uuid -> element if not already present and marks uuid
// visible. Idempotent on Visible, per spec.
func CommitDraw(s *State, uuid string, element json.RawMessage) error {
	if uuid == "" {
		return fmt.Errorf("draw: empty uuid")
	}
	if _, exists := s.Elements[uuid]; !exists {
		s.Elements[uuid] = element
	}
	s.Visible[uuid] = struct{}{}
	return nil
}

// CommitErase removes target from Visible; fails if not currently visible.
func CommitErase(s *State, target string) error {
	if _, ok := s.Visible[target]; !ok {
		return fmt.Errorf("cannot apply action to current visual state")
	}
	delete(s.Visible, target)
	return nil
}

// CommitGroup snapshots state, attempts each sub-action in order under
// commit rules, and restores the snapshot on any failure (all-or-nothing).
func CommitGroup(s *State, actions []action.Action) error {
	snapshot := s.Clone()
	for _, sub := range actions {
		if err := Commit(s, sub); err != nil {
			*s = snapshot
			return err
		}
	}
	return nil
}

// Commit dispatches a single action to its commit rule. Undo/Redo/NewPage/
// DeletePage never reach here: they are handled by the page engine, not the
// visual compiler (spec section 4.2's commit rules only cover Draw/Erase/
// Group).
func Commit(s *State, a action.Action) error {
	switch a.Type {
	case action.TypeDraw:
		return CommitDraw(s, a.UUID, a.Element)
	case action.TypeErase:
		return CommitErase(s, a.Target)
	case action.TypeGroup:
		return CommitGroup(s, a.Actions)
	default:
		return fmt.Errorf("unknown action type")
	}
}

// RevertDraw removes uuid from Visible; fails if not visible.
func RevertDraw(s *State, uuid string) error {
	if _, ok := s.Visible[uuid]; !ok {
		return fmt.Errorf("cannot revert: %s not visible", uuid)
	}
	delete(s.Visible, uuid)
	return nil
}

// RevertErase adds target back to Visible.
func RevertErase(s *State, target string) error {
	s.Visible[target] = struct{}{}
	return nil
}

// RevertGroup iterates sub-actions in reverse, reverting each; snapshot and
// restore on failure, mirroring CommitGroup.
func RevertGroup(s *State, actions []action.Action) error {
	snapshot := s.Clone()
	for i := len(actions) - 1; i >= 0; i-- {
		if err := Revert(s, actions[i]); err != nil {
			*s = snapshot
			return err
		}
	}
	return nil
}

// Revert dispatches a single action to its revert rule.
func Revert(s *State, a action.Action) error {
	switch a.Type {
	case action.TypeDraw:
		return RevertDraw(s, a.UUID)
	case action.TypeErase:
		return RevertErase(s, a.Target)
	case action.TypeGroup:
		return RevertGroup(s, a.Actions)
	default:
		return fmt.Errorf("unknown action type")
	}
}

// Compile returns the state obtained by committing actions[0:k] in order
// from an empty state, or the first commit failure. It is a pure function,
// used both as a sanity check against the incrementally maintained state
// and to replay history during catch-up.
func Compile(actions []action.Action) (State, error) {
	s := New()
	for i, a := range actions {
		if err := Commit(&s, a); err != nil {
			return State{}, fmt.Errorf("compile: action %d: %w", i, err)
		}
	}
	return s, nil
}
