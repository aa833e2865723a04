package income

import "fmt"

// MissingDistributionError reports a municipality without a decile row for
// the modality a household needs. Income cannot be imputed without it.
type MissingDistributionError struct {
	CommuneID string
	Attribute string
	Modality  string
}

func (e *MissingDistributionError) Error() string {
	return fmt.Sprintf("income: no %s=%s distribution for commune %s", e.Attribute, e.Modality, e.CommuneID)
}
