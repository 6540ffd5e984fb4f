package table

import (
	"context"
	"errors"

	"ForceView/internal/backend"
	"ForceView/internal/clipboard"
	"ForceView/internal/model"
	"ForceView/internal/subcase"
)

type Column struct {
	Key   string
	Label string
	// Sortable columns render as clickable headers.
	Sortable bool
	// NeedsSubcase marks sorts that depend on the selected subcase (fabs, mabs).
	NeedsSubcase bool
}

type Cell struct {
	Text string
	Copy *clipboard.Button
}

type Row struct {
	Cells []Cell
}

// Query is what a source needs to produce one page.
type Query struct {
	Page      int
	Sort      Sort
	IDs       []string
	SubcaseID int
	// SubcaseSort is set when the sort column depends on the subcase.
	SubcaseSort bool
	Subcase     *model.Subcase
}

type Source[T any] interface {
	// Count returns the number of rows matching ids (all rows when ids is empty).
	Count(ctx context.Context, ids []string) (int, error)
	Fetch(ctx context.Context, q Query) ([]T, error)
}

// Entity configures one table: where rows come from and how they render.
type Entity[T any] struct {
	Name        string
	Title       string
	EmptyText   string
	Columns     []Column
	DefaultSort string
	Precision   int
	Source      Source[T]
	Render      func(row T, sc *model.Subcase, precision int) []Row
}

func (e Entity[T]) column(key string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

type View struct {
	Name      string
	Title     string
	Columns   []Column
	Rows      []Row
	Empty     bool
	EmptyText string
	State     State
	Subcases  []subcase.Option
	Precision int
}

// Table is the entity-independent face of a Controller.
type Table interface {
	Name() string
	State() State
	Restore(State)
	Refresh(ctx context.Context) (View, error)
	Load(ctx context.Context) (View, error)
	Next(ctx context.Context) (View, error)
	Prev(ctx context.Context) (View, error)
	ToggleSort(ctx context.Context, column string) (View, error)
	ApplyFilter(ctx context.Context, raw string) (View, error)
	ResetFilter(ctx context.Context) (View, error)
	HandleKey(ctx context.Context, key Key, raw string) (View, bool, error)
	SelectSubcase(ctx context.Context, id int) (View, error)
}

// Controller drives one paginated, sortable, filterable table.
type Controller[T any] struct {
	entity   Entity[T]
	subcases *subcase.Cache
	state    State
}

func NewController[T any](entity Entity[T], subcases *subcase.Cache) *Controller[T] {
	return &Controller[T]{entity: entity, subcases: subcases, state: NewState(entity.DefaultSort)}
}

func (c *Controller[T]) Name() string { return c.entity.Name }

func (c *Controller[T]) State() State { return c.state.clone() }

// Restore replaces the state. An empty sort column selects the default column
// in the requested direction; an unknown column falls back to the default
// column ascending.
func (c *Controller[T]) Restore(s State) {
	s = s.clone()
	if s.Sort.Column == "" {
		s.Sort.Column = c.entity.DefaultSort
	} else if col, ok := c.entity.column(s.Sort.Column); !ok || !col.Sortable {
		s.Sort = Sort{Column: c.entity.DefaultSort, Direction: Ascending}
	}
	s.Sort.Direction = s.Sort.Direction.normalize()
	if s.Page < 1 {
		s.Page = 1
	}
	if s.Filter == nil {
		s.Filter = []string{}
	}
	c.state = s
}

// Refresh recounts the rows for the current filter and loads the current page.
func (c *Controller[T]) Refresh(ctx context.Context) (View, error) {
	return c.apply(ctx, c.state.clone(), true)
}

func (c *Controller[T]) Load(ctx context.Context) (View, error) {
	return c.apply(ctx, c.state.clone(), false)
}

func (c *Controller[T]) Next(ctx context.Context) (View, error) {
	next := c.state.clone()
	next.Next()
	return c.apply(ctx, next, false)
}

func (c *Controller[T]) Prev(ctx context.Context) (View, error) {
	next := c.state.clone()
	next.Prev()
	return c.apply(ctx, next, false)
}

func (c *Controller[T]) ToggleSort(ctx context.Context, column string) (View, error) {
	next := c.state.clone()
	if col, ok := c.entity.column(column); ok && col.Sortable {
		next.ToggleSort(column)
	}
	return c.apply(ctx, next, false)
}

func (c *Controller[T]) ApplyFilter(ctx context.Context, raw string) (View, error) {
	next := c.state.clone()
	next.ApplyFilter(raw)
	return c.apply(ctx, next, true)
}

func (c *Controller[T]) ResetFilter(ctx context.Context) (View, error) {
	next := c.state.clone()
	next.ResetFilter()
	return c.apply(ctx, next, true)
}

func (c *Controller[T]) HandleKey(ctx context.Context, key Key, raw string) (View, bool, error) {
	next := c.state.clone()
	if !next.HandleKey(key, raw) {
		return View{}, false, nil
	}
	v, err := c.apply(ctx, next, true)
	return v, true, err
}

func (c *Controller[T]) SelectSubcase(ctx context.Context, id int) (View, error) {
	next := c.state.clone()
	next.SubcaseID = id
	return c.apply(ctx, next, false)
}

// apply fetches the page described by next and commits next only on success.
func (c *Controller[T]) apply(ctx context.Context, next State, recount bool) (View, error) {
	if recount {
		n, err := c.entity.Source.Count(ctx, next.Filter)
		if err != nil && !errors.Is(err, backend.ErrNotFound) {
			return c.failed(), err
		}
		next.SetRowCount(n)
	}

	next.SubcaseID = c.subcases.Resolve(ctx, next.SubcaseID)
	sc, _ := c.subcases.Find(ctx, next.SubcaseID)

	var rows []T
	if !recount || next.TotalPages > 0 {
		col, _ := c.entity.column(next.Sort.Column)
		fetched, err := c.entity.Source.Fetch(ctx, Query{
			Page:        next.Page,
			Sort:        next.Sort,
			IDs:         next.Filter,
			SubcaseID:   next.SubcaseID,
			SubcaseSort: col.NeedsSubcase,
			Subcase:     sc,
		})
		if err != nil && !errors.Is(err, backend.ErrNotFound) {
			return c.failed(), err
		}
		rows = fetched
	}

	c.state = next
	return c.render(rows, sc), nil
}

// failed renders the committed state without rows.
func (c *Controller[T]) failed() View {
	v := c.render(nil, nil)
	v.Empty = false
	return v
}

func (c *Controller[T]) render(rows []T, sc *model.Subcase) View {
	v := View{
		Name:      c.entity.Name,
		Title:     c.entity.Title,
		Columns:   c.entity.Columns,
		EmptyText: c.entity.EmptyText,
		State:     c.state.clone(),
		Subcases:  c.subcases.Options(),
		Precision: c.entity.Precision,
	}
	for _, r := range rows {
		v.Rows = append(v.Rows, c.entity.Render(r, sc, c.entity.Precision)...)
	}
	v.Empty = len(v.Rows) == 0
	return v
}
