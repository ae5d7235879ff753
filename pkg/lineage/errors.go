package lineage

import "fmt"

// ErrUnexpectedToken is the format for token mismatch errors.
const ErrUnexpectedToken = "unexpected token %s, expected %s"

// ParseError represents an error during SQL parsing.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
	}
	return e.Message
}

// SetOpError reports mismatched column counts across set operation
// branches. The query has no well-defined output in that case.
type SetOpError struct {
	Op    SetOpType
	Left  int
	Right int
}

func (e *SetOpError) Error() string {
	return fmt.Sprintf("%s branches produce different column counts: %d vs %d", e.Op, e.Left, e.Right)
}
