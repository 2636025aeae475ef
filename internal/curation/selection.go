package curation

import "slices"

// Selection is the set of product ids a listing view has ticked. It belongs
// to one view and is not safe for concurrent use.
type Selection struct {
	ids map[string]struct{}
}

func NewSelection() *Selection {
	return &Selection{ids: make(map[string]struct{})}
}

// Toggle flips id and returns whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *Selection) Select(ids ...string) {
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

func (s *Selection) Deselect(ids ...string) {
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// SelectAll replaces the selection with exactly ids (the visible page).
func (s *Selection) SelectAll(ids []string) {
	clear(s.ids)
	s.Select(ids...)
}

func (s *Selection) Clear() {
	clear(s.ids)
}

func (s *Selection) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Len() int {
	return len(s.ids)
}

// AllSelected reports whether every id in page is selected. An empty page is
// never all-selected.
func (s *Selection) AllSelected(page []string) bool {
	if len(page) == 0 {
		return false
	}
	for _, id := range page {
		if !s.Contains(id) {
			return false
		}
	}
	return true
}

// Retain drops ids that are not in current. Call it after the listing is
// reloaded so a bulk action never targets rows the user can no longer see.
func (s *Selection) Retain(current []string) {
	keep := make(map[string]struct{}, len(current))
	for _, id := range current {
		keep[id] = struct{}{}
	}
	for id := range s.ids {
		if _, ok := keep[id]; !ok {
			delete(s.ids, id)
		}
	}
}

// IDs returns the selected ids sorted.
func (s *Selection) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
