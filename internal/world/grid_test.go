package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewGrid_RejectsNonPositiveDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 10}, {10, 0}, {-1, 5}, {5, -3}} {
		_, err := NewGrid[int](dims[0], dims[1])
		assert.ErrorIs(t, err, ErrInvalidDimensions, "dims %v", dims)
	}
}

func TestNeighborhood_WrapsAtCorner(t *testing.T) {
	g, err := NewGrid[int](10, 10)
	require.NoError(t, err)

	got, err := g.Neighborhood(Coord{0, 0}, false)
	require.NoError(t, err)

	want := []Coord{
		{9, 9}, {9, 0}, {9, 1},
		{0, 9}, {0, 1},
		{1, 9}, {1, 0}, {1, 1},
	}
	assert.Equal(t, want, got)
}

func TestNeighborhood_IncludeCenter(t *testing.T) {
	g, err := NewGrid[int](10, 10)
	require.NoError(t, err)

	got, err := g.Neighborhood(Coord{5, 5}, true)
	require.NoError(t, err)
	assert.Len(t, got, 9)
	assert.Contains(t, got, Coord{5, 5})
}

func TestNeighborhood_DegenerateGridDeduplicates(t *testing.T) {
	g, err := NewGrid[int](2, 1)
	require.NoError(t, err)

	got, err := g.Neighborhood(Coord{0, 0}, false)
	require.NoError(t, err)
	assert.Equal(t, []Coord{{1, 0}}, got)

	single, err := NewGrid[int](1, 1)
	require.NoError(t, err)
	got, err = single.Neighborhood(Coord{0, 0}, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNeighborhood_RejectsOutOfRange(t *testing.T) {
	g, err := NewGrid[int](4, 4)
	require.NoError(t, err)

	_, err = g.Neighborhood(Coord{4, 0}, false)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = g.Occupants(Coord{0, -1})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestPlaceAndMove(t *testing.T) {
	g, err := NewGrid[string](5, 5)
	require.NoError(t, err)

	require.NoError(t, g.Place("a", Coord{1, 1}))
	require.NoError(t, g.Place("b", Coord{1, 1}))
	require.NoError(t, g.Place("c", Coord{2, 2}))
	assert.ErrorIs(t, g.Place("a", Coord{0, 0}), ErrAlreadyPlaced)

	occ, err := g.Occupants(Coord{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, occ)

	require.NoError(t, g.Move("a", Coord{2, 2}))

	occ, _ = g.Occupants(Coord{1, 1})
	assert.Equal(t, []string{"b"}, occ)
	occ, _ = g.Occupants(Coord{2, 2})
	assert.Equal(t, []string{"c", "a"}, occ)

	pos, ok := g.PositionOf("a")
	require.True(t, ok)
	assert.Equal(t, Coord{2, 2}, pos)

	assert.ErrorIs(t, g.Move("zzz", Coord{0, 0}), ErrNotPlaced)
	assert.ErrorIs(t, g.Move("a", Coord{5, 0}), ErrOutOfBounds)
	assert.Equal(t, 3, g.Len())
}

func TestOccupants_ReturnsCopy(t *testing.T) {
	g, err := NewGrid[int](3, 3)
	require.NoError(t, err)
	require.NoError(t, g.Place(1, Coord{0, 0}))

	occ, _ := g.Occupants(Coord{0, 0})
	occ[0] = 99

	again, _ := g.Occupants(Coord{0, 0})
	assert.Equal(t, []int{1}, again)
}

func TestMove_NoItemLost(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 8).Draw(t, "width")
		h := rapid.IntRange(1, 8).Draw(t, "height")
		n := rapid.IntRange(1, 20).Draw(t, "items")

		g, err := NewGrid[int](w, h)
		if err != nil {
			t.Fatalf("new grid: %v", err)
		}
		for i := 0; i < n; i++ {
			c := Coord{rapid.IntRange(0, w-1).Draw(t, "x"), rapid.IntRange(0, h-1).Draw(t, "y")}
			if err := g.Place(i, c); err != nil {
				t.Fatalf("place: %v", err)
			}
		}

		moves := rapid.IntRange(0, 50).Draw(t, "moves")
		for m := 0; m < moves; m++ {
			item := rapid.IntRange(0, n-1).Draw(t, "item")
			dx := rapid.IntRange(-1, 1).Draw(t, "dx")
			dy := rapid.IntRange(-1, 1).Draw(t, "dy")
			from, _ := g.PositionOf(item)
			if err := g.Move(item, g.Wrap(Coord{from.X + dx, from.Y + dy})); err != nil {
				t.Fatalf("move: %v", err)
			}
		}

		total := 0
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				occ, _ := g.Occupants(Coord{x, y})
				for _, item := range occ {
					pos, ok := g.PositionOf(item)
					if !ok || pos != (Coord{x, y}) {
						t.Fatalf("item %d indexed at %v but found in (%d,%d)", item, pos, x, y)
					}
				}
				total += len(occ)
			}
		}
		if total != n {
			t.Fatalf("expected %d items on grid, found %d", n, total)
		}
	})
}
