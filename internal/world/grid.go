// Package world provides the toroidal grid that indexes agent positions.
// Opposite edges wrap, so every cell has a full Moore neighborhood.
package world

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDimensions = errors.New("grid dimensions must be positive")
	ErrOutOfBounds       = errors.New("coordinate out of bounds")
	ErrAlreadyPlaced     = errors.New("item already placed")
	ErrNotPlaced         = errors.New("item not placed")
)

// Coord is a cell position on the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Grid is a width × height torus. Any number of items may share a cell.
// Items are kept in arrival order within a cell.
type Grid[T comparable] struct {
	width  int
	height int
	cells  [][]T // indexed by y*width + x
	index  map[T]Coord
}

// NewGrid creates an empty grid.
func NewGrid[T comparable](width, height int) (*Grid[T], error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Grid[T]{
		width:  width,
		height: height,
		cells:  make([][]T, width*height),
		index:  make(map[T]Coord),
	}, nil
}

// Width returns the number of columns.
func (g *Grid[T]) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid[T]) Height() int { return g.height }

// Len returns the number of placed items.
func (g *Grid[T]) Len() int { return len(g.index) }

// InBounds reports whether c addresses a cell without wrapping.
func (g *Grid[T]) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < g.width && c.Y >= 0 && c.Y < g.height
}

// Wrap reduces c onto the torus.
func (g *Grid[T]) Wrap(c Coord) Coord {
	return Coord{X: mod(c.X, g.width), Y: mod(c.Y, g.height)}
}

func mod(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// Neighborhood returns the Moore neighborhood (radius 1) of c, wrapped and
// de-duplicated, ordered by dx then dy. On grids narrower than three cells
// wrapped neighbors may coincide; each cell appears once.
func (g *Grid[T]) Neighborhood(c Coord, includeCenter bool) ([]Coord, error) {
	if !g.InBounds(c) {
		return nil, fmt.Errorf("neighborhood of %s: %w", c, ErrOutOfBounds)
	}

	out := make([]Coord, 0, 9)
	seen := make(map[Coord]struct{}, 9)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			n := g.Wrap(Coord{X: c.X + dx, Y: c.Y + dy})
			if n == c && !includeCenter {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out, nil
}

// Occupants returns a copy of the items at c.
func (g *Grid[T]) Occupants(c Coord) ([]T, error) {
	if !g.InBounds(c) {
		return nil, fmt.Errorf("occupants of %s: %w", c, ErrOutOfBounds)
	}
	cell := g.cells[g.offset(c)]
	out := make([]T, len(cell))
	copy(out, cell)
	return out, nil
}

// PositionOf returns where item is placed.
func (g *Grid[T]) PositionOf(item T) (Coord, bool) {
	c, ok := g.index[item]
	return c, ok
}

// Place puts a new item at c.
func (g *Grid[T]) Place(item T, c Coord) error {
	if !g.InBounds(c) {
		return fmt.Errorf("place at %s: %w", c, ErrOutOfBounds)
	}
	if _, ok := g.index[item]; ok {
		return ErrAlreadyPlaced
	}
	g.add(item, c)
	return nil
}

// Move relocates a placed item to c. It joins the end of the destination
// cell, even when c is its current cell.
func (g *Grid[T]) Move(item T, c Coord) error {
	if !g.InBounds(c) {
		return fmt.Errorf("move to %s: %w", c, ErrOutOfBounds)
	}
	from, ok := g.index[item]
	if !ok {
		return ErrNotPlaced
	}
	g.remove(item, from)
	g.add(item, c)
	return nil
}

func (g *Grid[T]) offset(c Coord) int {
	return c.Y*g.width + c.X
}

func (g *Grid[T]) add(item T, c Coord) {
	i := g.offset(c)
	g.cells[i] = append(g.cells[i], item)
	g.index[item] = c
}

func (g *Grid[T]) remove(item T, c Coord) {
	i := g.offset(c)
	cell := g.cells[i]
	for k, v := range cell {
		if v == item {
			// Preserve arrival order of the remaining items.
			g.cells[i] = append(cell[:k], cell[k+1:]...)
			break
		}
	}
	delete(g.index, item)
}
