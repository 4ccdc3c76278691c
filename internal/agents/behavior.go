// Agent behavior: one activation per step.
// The agent moves to a random neighboring cell, looks at who else is there,
// and tries to trade according to its role.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/gridmarket/internal/economy"
	"github.com/talgya/gridmarket/internal/world"
)

// Grid is the spatial index agents move on.
type Grid = world.Grid[*Agent]

// OutcomeKind enumerates what an activation produced.
type OutcomeKind uint8

const (
	OutcomeIdle     OutcomeKind = iota // Nobody to trade with, ask unchanged
	OutcomeTrade                       // One unit changed hands
	OutcomeRefused                     // Partner found but unaffordable or out of stock
	OutcomeUndercut                    // Seller alone, ask lowered
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeTrade:
		return "trade"
	case OutcomeRefused:
		return "refused"
	case OutcomeUndercut:
		return "undercut"
	default:
		return "idle"
	}
}

// Outcome describes one activation.
type Outcome struct {
	AgentID     AgentID
	From        world.Coord
	To          world.Coord
	Kind        OutcomeKind
	Counterpart AgentID // Set for trades and refusals
	Price       float64 // Price paid on trades; new ask on undercuts
}

// Activate runs the full step protocol for a. The grid and the generator are
// owned by the caller; activations must not run concurrently.
func Activate(a *Agent, grid *Grid, rng *rand.Rand) (Outcome, error) {
	out := Outcome{AgentID: a.ID, From: a.Position}

	if err := move(a, grid, rng); err != nil {
		return out, fmt.Errorf("agent %d move: %w", a.ID, err)
	}
	out.To = a.Position

	occupants, err := grid.Occupants(a.Position)
	if err != nil {
		return out, fmt.Errorf("agent %d gather: %w", a.ID, err)
	}

	switch a.Role {
	case RoleSeller:
		interactAsSeller(a, occupants, rng, &out)
	case RoleBuyer:
		interactAsBuyer(a, occupants, &out)
	default:
		return out, fmt.Errorf("agent %d has unknown role %v", a.ID, a.Role)
	}
	return out, nil
}

// move relocates a to a uniformly chosen Moore neighbor. On a 1×1 grid there
// is nowhere to go and the agent stays put.
func move(a *Agent, grid *Grid, rng *rand.Rand) error {
	steps, err := grid.Neighborhood(a.Position, false)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	dest := steps[rng.Intn(len(steps))]
	if err := grid.Move(a, dest); err != nil {
		return err
	}
	a.Position = dest
	return nil
}

func interactAsSeller(s *Agent, occupants []*Agent, rng *rand.Rand, out *Outcome) {
	var buyers []*Agent
	for _, o := range occupants {
		if o.IsBuyer() {
			buyers = append(buyers, o)
		}
	}

	if len(buyers) == 0 {
		before := s.Stall.Price
		s.Stall.Price = economy.Undercut(before)
		if s.Stall.Price != before {
			out.Kind = OutcomeUndercut
			out.Price = s.Stall.Price
		}
		return
	}

	b := buyers[rng.Intn(len(buyers))]
	recordExchange(s, b, out)
}

func interactAsBuyer(b *Agent, occupants []*Agent, out *Outcome) {
	s := cheapestSeller(occupants)
	if s == nil {
		return
	}
	// No fallback to the next cheapest when the cheapest is unaffordable.
	recordExchange(s, b, out)
}

// cheapestSeller returns the in-stock seller with the lowest ask. Equal asks
// go to the earliest-created seller.
func cheapestSeller(occupants []*Agent) *Agent {
	var best *Agent
	for _, o := range occupants {
		if !o.IsSeller() || o.Stall.Stock <= 0 {
			continue
		}
		if best == nil ||
			o.Stall.Price < best.Stall.Price ||
			(o.Stall.Price == best.Stall.Price && o.ID < best.ID) {
			best = o
		}
	}
	return best
}

func recordExchange(seller, buyer *Agent, out *Outcome) {
	counterpart := buyer.ID
	if out.AgentID == buyer.ID {
		counterpart = seller.ID
	}
	out.Counterpart = counterpart

	paid, ok := Exchange(seller, buyer)
	if !ok {
		out.Kind = OutcomeRefused
		return
	}
	out.Kind = OutcomeTrade
	out.Price = paid
}

// Exchange settles one unit between seller and buyer and applies the result
// to both agents at once. It returns the price paid.
func Exchange(seller, buyer *Agent) (float64, bool) {
	if seller.Stall == nil || buyer.Purse == nil {
		panic(fmt.Sprintf("agents: exchange between %v and %v", seller.Role, buyer.Role))
	}

	trade, ok := economy.Settle(*seller.Stall, *buyer.Purse)
	if !ok {
		return 0, false
	}
	*seller.Stall = trade.Stall
	*buyer.Purse = trade.Purse
	seller.Transactions++
	buyer.Transactions++
	return trade.Paid, true
}
