package filosofi

import "fmt"

// StructuralError reports that the extracted table does not have the shape
// the registry describes. It is not retryable.
type StructuralError struct {
	WantAttributes int
	GotAttributes  int
	WantModalities int
	GotModalities  int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("filosofi: table has %d attributes and %d modalities, registry expects %d and %d",
		e.GotAttributes, e.GotModalities, e.WantAttributes, e.WantModalities)
}

// ValidationError reports a row whose deciles break the ordering invariant.
type ValidationError struct {
	Row    Row
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("filosofi: invalid row for commune %s, %s=%s: %s",
		e.Row.CommuneID, e.Row.Attribute, e.Row.Modality, e.Reason)
}
