package household

import (
	"fmt"
	"strings"

	"github.com/tellae/eqasim/internal/model"
)

// Conflict is a household matched by more than one rule.
type Conflict struct {
	HouseholdID int64
	Labels      []model.HouseholdType
}

// ConflictError reports households whose typology is ambiguous.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	const shown = 5
	parts := make([]string, 0, shown)
	for i, c := range e.Conflicts {
		if i == shown {
			break
		}
		labels := make([]string, len(c.Labels))
		for j, l := range c.Labels {
			labels[j] = string(l)
		}
		parts = append(parts, fmt.Sprintf("%d=%s", c.HouseholdID, strings.Join(labels, "|")))
	}
	return fmt.Sprintf("household: %d households match several types: %s",
		len(e.Conflicts), strings.Join(parts, ", "))
}
