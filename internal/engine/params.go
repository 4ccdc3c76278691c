package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned for configurations that cannot produce a
// market: non-positive agent counts or grid dimensions.
var ErrInvalidParams = errors.New("invalid simulation parameters")

// Params configures a market simulation.
type Params struct {
	NumSellers int   `json:"num_sellers"`
	NumBuyers  int   `json:"num_buyers"`
	Width      int   `json:"width"`
	Height     int   `json:"height"`
	Seed       int64 `json:"seed"`
}

// DefaultParams returns the reference scenario: 10 sellers, 20 buyers on a
// 10×10 torus.
func DefaultParams() Params {
	return Params{
		NumSellers: 10,
		NumBuyers:  20,
		Width:      10,
		Height:     10,
		Seed:       42,
	}
}

// Validate rejects parameters before any simulation state is built.
func (p Params) Validate() error {
	switch {
	case p.NumSellers <= 0:
		return fmt.Errorf("%w: num_sellers must be positive, got %d", ErrInvalidParams, p.NumSellers)
	case p.NumBuyers <= 0:
		return fmt.Errorf("%w: num_buyers must be positive, got %d", ErrInvalidParams, p.NumBuyers)
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("%w: grid must be at least 1x1, got %dx%d", ErrInvalidParams, p.Width, p.Height)
	}
	return nil
}
