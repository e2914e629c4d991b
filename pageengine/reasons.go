package pageengine

// Decline reasons surfaced to the protocol layer, verbatim per spec
// section 4.3.
const (
	ReasonCannotApply    = "cannot apply action to current visual state"
	ReasonUndoBoundary   = "can only undo the immediate past"
	ReasonRedoBoundary   = "can only redo the immediate future"
	ReasonUnknownType    = "unknown action type"
	ReasonDeleteLastPage = "cannot delete last page of a board"
	ReasonUnauthorized   = "unauthorized"
)
