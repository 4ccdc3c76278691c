// Package economy provides the bilateral trade rule and price adaptation.
// Everything here is a pure function over value types: callers apply the
// returned copies to their agents.
package economy

import (
	"fmt"
	"math/rand"
)

const (
	StartingStock     = 10  // Units each seller opens with
	StartingBudget    = 100 // Currency each buyer opens with
	MinOpeningPrice   = 5.0
	MaxOpeningPrice   = 15.0
	PriceStep         = 0.5 // Ask moves by this much per sale or undercut
	UndercutThreshold = 1.0 // Ask must exceed this to be undercut
)

// Stall is a seller's economic state.
type Stall struct {
	Stock int     `json:"stock"`
	Price float64 `json:"price"`
}

// Purse is a buyer's economic state.
type Purse struct {
	Budget   float64 `json:"budget"`
	Holdings int     `json:"holdings"`
}

// Trade is the result of a completed sale.
type Trade struct {
	Stall Stall   // Seller state after the sale
	Purse Purse   // Buyer state after the sale
	Paid  float64 // Ask at the moment of sale
}

// OpeningStall returns a fresh seller state with a uniform price in
// [MinOpeningPrice, MaxOpeningPrice).
func OpeningStall(rng *rand.Rand) Stall {
	return Stall{
		Stock: StartingStock,
		Price: MinOpeningPrice + rng.Float64()*(MaxOpeningPrice-MinOpeningPrice),
	}
}

// OpeningPurse returns a fresh buyer state.
func OpeningPurse() Purse {
	return Purse{Budget: StartingBudget}
}

// Affordable reports whether purse can buy one unit from stall.
func Affordable(stall Stall, purse Purse) bool {
	return purse.Budget >= stall.Price && stall.Stock > 0
}

// Settle exchanges one unit between stall and purse at the stall's ask.
// It returns false and leaves both inputs unchanged when the buyer cannot
// afford the ask or the seller is out of stock. A successful sale raises
// the ask by PriceStep.
func Settle(stall Stall, purse Purse) (Trade, bool) {
	if !Affordable(stall, purse) {
		return Trade{Stall: stall, Purse: purse}, false
	}

	paid := stall.Price
	stall.Stock--
	purse.Budget -= paid
	purse.Holdings++
	stall.Price += PriceStep

	if stall.Stock < 0 || purse.Budget < 0 {
		panic(fmt.Sprintf("economy: settlement left negative balance (stock=%d budget=%f)", stall.Stock, purse.Budget))
	}

	return Trade{Stall: stall, Purse: purse, Paid: paid}, true
}

// Undercut lowers an ask that found no buyers. The check happens before
// subtracting, so a price just above the threshold can land near 0.5.
func Undercut(price float64) float64 {
	if price > UndercutThreshold {
		return price - PriceStep
	}
	return price
}

// MeanPrice averages prices. Returns 0 for an empty slice.
func MeanPrice(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices))
}
