package subcase

import (
	"context"
	"strconv"
	"sync"

	"ForceView/internal/model"
)

type Fetcher interface {
	Subcases(ctx context.Context) ([]model.Subcase, error)
}

// Option is one entry of the subcase dropdown.
type Option struct {
	ID    int
	Label string
}

// Cache loads the subcase list once and serves it to every table.
type Cache struct {
	fetcher Fetcher

	mu       sync.Mutex
	loaded   bool
	subcases []model.Subcase
	options  []Option
}

func NewCache(f Fetcher) *Cache {
	return &Cache{fetcher: f}
}

// Get returns the cached list, fetching it on first use or when force is set.
// A failed fetch returns an empty list and leaves the cache untouched.
func (c *Cache) Get(ctx context.Context, force bool) ([]model.Subcase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && !force {
		return c.subcases, nil
	}
	list, err := c.fetcher.Subcases(ctx)
	if err != nil {
		return []model.Subcase{}, err
	}
	if list == nil {
		list = []model.Subcase{}
	}
	c.subcases = list
	c.options = make([]Option, 0, len(list))
	for _, sc := range list {
		c.options = append(c.options, Option{ID: sc.ID, Label: strconv.Itoa(sc.ID)})
	}
	c.loaded = true
	return c.subcases, nil
}

// Options returns the dropdown entries of the last successful fetch.
func (c *Cache) Options() []Option {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Option, len(c.options))
	copy(out, c.options)
	return out
}

// Invalidate forgets the cached list; the next Get fetches again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

func (c *Cache) Find(ctx context.Context, id int) (*model.Subcase, bool) {
	list, err := c.Get(ctx, false)
	if err != nil {
		return nil, false
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], true
		}
	}
	return nil, false
}

// Resolve picks the active subcase: selected when it exists, else the first one, else 0.
func (c *Cache) Resolve(ctx context.Context, selected int) int {
	list, err := c.Get(ctx, false)
	if err != nil || len(list) == 0 {
		return 0
	}
	for _, sc := range list {
		if sc.ID == selected {
			return selected
		}
	}
	return list[0].ID
}
