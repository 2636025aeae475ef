package taxonomy

import (
	"fmt"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
)

// LevelViolation describes a stored category whose level disagrees with its
// parent chain.
type LevelViolation struct {
	CategoryID int64
	Stored     int
	Expected   int
}

func (v LevelViolation) String() string {
	return fmt.Sprintf("category %d: stored level %d, expected %d", v.CategoryID, v.Stored, v.Expected)
}

// CheckLevels compares stored levels against the materialised tree.
func CheckLevels(categories []Category) []LevelViolation {
	stored := make(map[int64]int, len(categories))
	for _, c := range categories {
		if _, ok := stored[c.ID]; !ok {
			stored[c.ID] = c.Level
		}
	}
	var violations []LevelViolation
	for _, c := range Flatten(BuildTree(categories)) {
		if stored[c.ID] != c.Level {
			violations = append(violations, LevelViolation{CategoryID: c.ID, Stored: stored[c.ID], Expected: c.Level})
		}
	}
	return violations
}

// LevelFor returns the level a child of parent must have.
func LevelFor(parent *Category) int {
	if parent == nil {
		return 0
	}
	return parent.Level + 1
}

// ValidateParent checks that moving category id under newParent keeps the
// forest acyclic.
func ValidateParent(categories []Category, id int64, newParent *int64) error {
	if newParent == nil {
		return nil
	}
	if *newParent == id {
		return apperr.Validation("parent_id", "category cannot be its own parent")
	}
	parentOf := make(map[int64]*int64, len(categories))
	for _, c := range categories {
		parentOf[c.ID] = c.ParentID
	}
	if _, ok := parentOf[*newParent]; !ok {
		return apperr.Validation("parent_id", fmt.Sprintf("parent category %d does not exist", *newParent))
	}
	seen := make(map[int64]struct{})
	for cur := newParent; cur != nil; cur = parentOf[*cur] {
		if *cur == id {
			return apperr.Validation("parent_id", "category cannot be moved under its own descendant")
		}
		if _, loop := seen[*cur]; loop {
			break
		}
		seen[*cur] = struct{}{}
	}
	return nil
}
