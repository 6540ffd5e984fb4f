package table

import (
	"ForceView/internal/filter"
)

// PageSize is the fixed number of rows per page.
const PageSize = 100

type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

func (d Direction) normalize() Direction {
	if d == Descending {
		return Descending
	}
	return Ascending
}

type Sort struct {
	Column    string
	Direction Direction
}

// Toggle flips the direction of the active column or selects a new column ascending.
func (s Sort) Toggle(column string) Sort {
	if column == s.Column {
		return Sort{Column: column, Direction: -s.Direction.normalize()}
	}
	return Sort{Column: column, Direction: Ascending}
}

func (s Sort) Icon(column string) string {
	if column != s.Column {
		return "↕"
	}
	if s.Direction.normalize() == Ascending {
		return "▲"
	}
	return "▼"
}

// TotalPages is ceil(rows / PageSize).
func TotalPages(rows int) int {
	if rows <= 0 {
		return 0
	}
	return (rows + PageSize - 1) / PageSize
}

// State is everything one table page remembers between user actions.
type State struct {
	Page       int
	TotalPages int
	Sort       Sort
	Filter     []string
	SubcaseID  int
}

func NewState(defaultSort string) State {
	return State{Page: 1, Sort: Sort{Column: defaultSort, Direction: Ascending}, Filter: []string{}}
}

// SetRowCount recomputes the page count and keeps Page inside it.
func (s *State) SetRowCount(rows int) {
	s.TotalPages = TotalPages(rows)
	if s.TotalPages > 0 && s.Page > s.TotalPages {
		s.Page = s.TotalPages
	}
	if s.Page < 1 {
		s.Page = 1
	}
}

func (s State) PrevDisabled() bool {
	return s.Page <= 1
}

func (s State) NextDisabled() bool {
	return s.TotalPages <= 1 || s.Page >= s.TotalPages
}

func (s *State) Next() bool {
	if s.NextDisabled() {
		return false
	}
	s.Page++
	return true
}

func (s *State) Prev() bool {
	if s.PrevDisabled() {
		return false
	}
	s.Page--
	return true
}

func (s *State) ToggleSort(column string) {
	s.Sort = s.Sort.Toggle(column)
}

// ApplyFilter replaces the filter from raw input and returns to the first page.
// An empty list means no filter.
func (s *State) ApplyFilter(raw string) {
	s.Filter = filter.ParseIDs(raw)
	s.Page = 1
}

func (s *State) ResetFilter() {
	s.Filter = []string{}
	s.Page = 1
}

func (s State) Filtered() bool {
	return len(s.Filter) > 0
}

func (s State) FilterText() string {
	return filter.Join(s.Filter)
}

type Key string

const (
	KeyEnter  Key = "Enter"
	KeyEscape Key = "Escape"
)

// HandleKey applies the filter on Enter and clears it on Escape. It reports
// whether the key changed anything.
func (s *State) HandleKey(key Key, raw string) bool {
	switch key {
	case KeyEnter:
		s.ApplyFilter(raw)
		return true
	case KeyEscape:
		s.ResetFilter()
		return true
	}
	return false
}

func (s State) clone() State {
	out := s
	out.Filter = append([]string{}, s.Filter...)
	return out
}
