package filter

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
)

// DefaultDebounce is how long search input must settle before it is queried.
const DefaultDebounce = 300 * time.Millisecond

// ErrClosed is returned by a State after Close.
var ErrClosed = errors.New("filter state closed")

// State owns the criteria of one listing view. Every change produces a
// full Criteria value passed to onQuery; search edits are debounced so rapid
// keystrokes collapse into one query with the latest text.
//
// onQuery runs synchronously and must not call back into the State.
type State struct {
	debounce time.Duration
	onQuery  func(Criteria)

	emitMu sync.Mutex // serialises onQuery calls in mutation order

	mu            sync.Mutex
	criteria      Criteria
	pendingSearch *string
	timer         *time.Timer
	generation    uint64
	closed        bool
}

// NewState creates a State starting from Default(). A non-positive debounce
// uses DefaultDebounce.
func NewState(onQuery func(Criteria), debounce time.Duration) *State {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &State{
		debounce: debounce,
		onQuery:  onQuery,
		criteria: Default(),
	}
}

// Criteria returns the criteria as last submitted. A pending search is not included.
func (s *State) Criteria() Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria
}

// PendingSearch returns the search text waiting on the debounce timer.
func (s *State) PendingSearch() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingSearch == nil {
		return "", false
	}
	return *s.pendingSearch, true
}

// SetField merges one field. Any field other than page and page_size
// resets the page to 1. Search is debounced; other fields query at once and
// carry any pending search with them.
func (s *State) SetField(key, value string) error {
	if !slices.Contains(fields, key) {
		return apperr.Validation(key, "unknown filter field")
	}

	if key == "search" {
		return s.setSearch(value)
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next, err := s.criteria.with(key, value)
	if err == nil && s.pendingSearch != nil {
		next, err = next.with("search", *s.pendingSearch)
	}
	if err == nil {
		if key != "page" && key != "page_size" {
			next.Page = 1
		}
		err = next.Validate()
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.cancelPendingLocked()
	s.criteria = next
	s.mu.Unlock()

	s.emit(next)
	return nil
}

func (s *State) setSearch(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.criteria.with("search", value); err != nil {
		return err
	}

	s.cancelPendingLocked()
	s.pendingSearch = &value
	s.generation++
	gen := s.generation
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(gen) })
	return nil
}

// fire applies the pending search if no newer input superseded it.
func (s *State) fire(gen uint64) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed || gen != s.generation || s.pendingSearch == nil {
		s.mu.Unlock()
		return
	}
	next, err := s.criteria.with("search", *s.pendingSearch)
	s.pendingSearch = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if err != nil {
		s.mu.Unlock()
		return
	}
	next.Page = 1
	s.criteria = next
	s.mu.Unlock()

	s.emit(next)
}

// Flush applies a pending search immediately, as when the user presses enter.
// It reports whether a query was issued.
func (s *State) Flush() bool {
	s.mu.Lock()
	gen := s.generation
	pending := s.pendingSearch != nil && !s.closed
	s.mu.Unlock()
	if !pending {
		return false
	}
	s.fire(gen)
	return true
}

// Clear restores the defaults and queries once.
func (s *State) Clear() error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancelPendingLocked()
	s.criteria = Default()
	next := s.criteria
	s.mu.Unlock()

	s.emit(next)
	return nil
}

// Close stops the debounce timer. The State cannot be used afterwards.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	s.closed = true
}

func (s *State) cancelPendingLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pendingSearch = nil
	s.generation++
}

func (s *State) emit(c Criteria) {
	if s.onQuery != nil {
		s.onQuery(c)
	}
}
