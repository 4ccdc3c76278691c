// Package agents provides the trader data model and the per-step
// activation protocol (move, gather, interact).
package agents

import (
	"fmt"

	"github.com/talgya/gridmarket/internal/economy"
	"github.com/talgya/gridmarket/internal/world"
)

// AgentID is a unique identifier for an agent. IDs are issued in creation
// order, so comparing IDs compares creation order.
type AgentID uint64

// Role is an agent's fixed market side.
type Role uint8

const (
	RoleSeller Role = iota
	RoleBuyer
)

func (r Role) String() string {
	switch r {
	case RoleSeller:
		return "seller"
	case RoleBuyer:
		return "buyer"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Agent is a trader on the grid. Exactly one of Stall and Purse is set,
// matching Role.
type Agent struct {
	ID       AgentID     `json:"id"`
	Role     Role        `json:"role"`
	Position world.Coord `json:"position"`

	// Completed trades this agent took part in. Never decreases.
	Transactions int `json:"transactions"`

	Stall *economy.Stall `json:"stall,omitempty"` // Sellers only
	Purse *economy.Purse `json:"purse,omitempty"` // Buyers only
}

// NewSeller creates a seller holding stall.
func NewSeller(id AgentID, stall economy.Stall) *Agent {
	return &Agent{ID: id, Role: RoleSeller, Stall: &stall}
}

// NewBuyer creates a buyer holding purse.
func NewBuyer(id AgentID, purse economy.Purse) *Agent {
	return &Agent{ID: id, Role: RoleBuyer, Purse: &purse}
}

// IsSeller reports whether the agent sells.
func (a *Agent) IsSeller() bool { return a.Role == RoleSeller }

// IsBuyer reports whether the agent buys.
func (a *Agent) IsBuyer() bool { return a.Role == RoleBuyer }

// Price returns the seller's current ask. Buyers have no price.
func (a *Agent) Price() (float64, bool) {
	if a.Stall == nil {
		return 0, false
	}
	return a.Stall.Price, true
}

// Resources returns units held: stock for sellers, holdings for buyers.
func (a *Agent) Resources() int {
	switch {
	case a.Stall != nil:
		return a.Stall.Stock
	case a.Purse != nil:
		return a.Purse.Holdings
	}
	return 0
}

// Budget returns a buyer's remaining currency, 0 for sellers.
func (a *Agent) Budget() float64 {
	if a.Purse == nil {
		return 0
	}
	return a.Purse.Budget
}

// String returns a short description for logs.
func (a *Agent) String() string {
	if a.Stall != nil {
		return fmt.Sprintf("seller#%d@%s stock=%d price=%.2f trades=%d",
			a.ID, a.Position, a.Stall.Stock, a.Stall.Price, a.Transactions)
	}
	if a.Purse != nil {
		return fmt.Sprintf("buyer#%d@%s budget=%.2f holdings=%d trades=%d",
			a.ID, a.Position, a.Purse.Budget, a.Purse.Holdings, a.Transactions)
	}
	return fmt.Sprintf("agent#%d", a.ID)
}
