// Package taxonomy turns the flat, parent-referencing category list into a
// navigable forest and provides the search and expand/collapse helpers the
// category views are rendered from.
package taxonomy

import (
	"errors"
	"time"
)

// ErrHasChildren is returned when deleting a category that still has children.
var ErrHasChildren = errors.New("category has child categories")

// Category is a single taxonomy entry as stored.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        *string   `json:"slug,omitempty"`
	Description *string   `json:"description,omitempty"`
	ParentID    *int64    `json:"parent_id"`
	Level       int       `json:"level"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// IsRoot reports whether the category has no parent reference.
func (c Category) IsRoot() bool {
	return c.ParentID == nil
}

// Node is a category with its resolved children.
type Node struct {
	Category
	// EffectiveActive is false when the category or any ancestor is inactive.
	EffectiveActive bool    `json:"effective_active"`
	Children        []*Node `json:"children"`
}

// HasChildren reports whether the node has at least one child.
func (n *Node) HasChildren() bool {
	return len(n.Children) > 0
}
