package metastore

import (
	"fmt"
)

// ValidatePRD checks the fields every stored PRD must carry.
func ValidatePRD(p *PRD) error {
	if p.ID == "" {
		return fmt.Errorf("id: missing required field: %w", ErrInvalid)
	}
	if p.FileName == "" {
		return fmt.Errorf("prd %s: fileName: missing required field: %w", p.ID, ErrInvalid)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("prd %s: invalid status %q: %w", p.ID, p.Status, ErrInvalid)
	}
	if p.Priority != "" && !p.Priority.Valid() {
		return fmt.Errorf("prd %s: invalid priority %q: %w", p.ID, p.Priority, ErrInvalid)
	}
	if p.Complexity != "" && !p.Complexity.Valid() {
		return fmt.Errorf("prd %s: invalid complexity %q: %w", p.ID, p.Complexity, ErrInvalid)
	}
	return nil
}

// CheckUniqueIDs returns an error naming the first duplicated PRD ID.
func (x *PRDIndex) CheckUniqueIDs() error {
	seen := make(map[string]bool, len(x.PRDs))
	for _, p := range x.PRDs {
		if seen[p.ID] {
			return fmt.Errorf("duplicate prd id %q: %w", p.ID, ErrInvalid)
		}
		seen[p.ID] = true
	}
	return nil
}
