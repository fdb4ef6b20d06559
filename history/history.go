// Package history owns the ordered page log of one drawing session.
// The store itself is not goroutine safe: all access goes through the
// devsync exclusive section, so a single lock covers every reader and
// the drawing engine.
package history

import (
	"errors"
	"fmt"

	"github.com/gdlive/gdlive/draw"
)

// ErrPageNotFound reports a 1-based page number outside the store.
var ErrPageNotFound = errors.New("page not found")

// Page is one drawing frame: an append-only command log plus the
// nominal size and background it was opened with. A page closes when
// the next one begins or the device shuts down; closed pages never
// change again.
type Page struct {
	Width      float64
	Height     float64
	Background draw.Color
	Commands   []draw.Command
	Closed     bool
}

// Snapshot returns a copy whose command slice is independent of the
// store, safe to render after the exclusive section is released.
func (p *Page) Snapshot() *Page {
	cp := *p
	cp.Commands = make([]draw.Command, len(p.Commands))
	copy(cp.Commands, p.Commands)
	return &cp
}

// Store is the ordered collection of pages. Page numbers are 1-based
// and contiguous; upid strictly increases on every mutation so readers
// can cache it and detect staleness with one comparison.
type Store struct {
	pages     []*Page
	open      int // index of the open page, -1 if none
	upid      int64
	recording bool
}

// NewStore creates an empty store. With recording disabled only the
// current page is retained: a new page replaces the previous one.
func NewStore(recording bool) *Store {
	return &Store{open: -1, recording: recording}
}

func (s *Store) bump() { s.upid++ }

// NewPage closes the current page (if any) and opens a fresh one.
// Blank pages are valid and retained.
func (s *Store) NewPage(width, height float64, background draw.Color) {
	if s.open >= 0 {
		s.pages[s.open].Closed = true
	}
	p := &Page{Width: width, Height: height, Background: background}
	if !s.recording && len(s.pages) > 0 {
		s.pages = []*Page{p}
	} else {
		s.pages = append(s.pages, p)
	}
	s.open = len(s.pages) - 1
	s.bump()
}

// Append adds a command to the open page. With no open page this is a
// no-op: the engine guarantees a page exists before drawing, so there
// is nothing useful to surface.
func (s *Store) Append(cmd draw.Command) {
	if s.open < 0 {
		return
	}
	s.pages[s.open].Commands = append(s.pages[s.open].Commands, cmd)
	s.bump()
}

// Remove deletes the page at the given 1-based number; later pages
// shift down so numbering stays contiguous. Removing the open page
// closes drawing state: appends become no-ops until the next NewPage.
func (s *Store) Remove(page int) error {
	idx := page - 1
	if idx < 0 || idx >= len(s.pages) {
		return fmt.Errorf("remove page %d of %d: %w", page, len(s.pages), ErrPageNotFound)
	}
	s.pages = append(s.pages[:idx], s.pages[idx+1:]...)
	switch {
	case s.open == idx:
		s.open = -1
	case s.open > idx:
		s.open--
	}
	s.bump()
	return nil
}

// Clear removes all pages.
func (s *Store) Clear() {
	s.pages = nil
	s.open = -1
	s.bump()
}

// Page returns a snapshot of the page at the given 1-based number.
// An open page is returned as-is up to its last appended command.
func (s *Store) Page(page int) (*Page, error) {
	idx := page - 1
	if idx < 0 || idx >= len(s.pages) {
		return nil, fmt.Errorf("page %d of %d: %w", page, len(s.pages), ErrPageNotFound)
	}
	return s.pages[idx].Snapshot(), nil
}

// PageSize reports the nominal size of the open page, falling back to
// the most recent page when none is open.
func (s *Store) PageSize() (w, h float64, ok bool) {
	idx := s.open
	if idx < 0 {
		idx = len(s.pages) - 1
	}
	if idx < 0 {
		return 0, 0, false
	}
	return s.pages[idx].Width, s.pages[idx].Height, true
}

func (s *Store) PageCount() int { return len(s.pages) }

func (s *Store) UpID() int64 { return s.upid }
