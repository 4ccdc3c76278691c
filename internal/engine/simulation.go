// Simulation ties together the grid, the trader population and metrics,
// and advances them one step at a time.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/talgya/gridmarket/internal/agents"
	"github.com/talgya/gridmarket/internal/economy"
	"github.com/talgya/gridmarket/internal/world"
)

// ErrAborted is returned by Step after an earlier step failed. There is no
// resuming from a partial step.
var ErrAborted = errors.New("simulation aborted")

const maxEvents = 1000

// Simulation is the market model. It owns every agent and the grid.
// Step must not be called concurrently with itself; the read accessors
// below may be called from other goroutines.
type Simulation struct {
	mu sync.RWMutex

	Params     Params
	Grid       *agents.Grid
	Agents     []*agents.Agent // Creation order: sellers, then buyers
	AgentIndex map[agents.AgentID]*agents.Agent
	Metrics    *Collector

	// Cumulative trades as of the start of the latest step. Lags the live
	// sum by one step's worth of trades.
	TotalTransactions int
	StepCount         int
	Events            []Event

	rng    *rand.Rand
	failed error
}

// Event is a notable trade or price change.
type Event struct {
	Step        int            `json:"step"`
	AgentID     agents.AgentID `json:"agent_id"`
	Counterpart agents.AgentID `json:"counterpart,omitempty"`
	Kind        string         `json:"kind"`
	Price       float64        `json:"price"`
}

// NewSimulation validates p and builds the initial market: sellers first,
// then buyers, each at an independent uniform cell. All randomness for the
// run comes from one generator seeded by p.Seed.
func NewSimulation(p Params) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	grid, err := world.NewGrid[*agents.Agent](p.Width, p.Height)
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	sim := &Simulation{
		Params:     p,
		Grid:       grid,
		Agents:     make([]*agents.Agent, 0, p.NumSellers+p.NumBuyers),
		AgentIndex: make(map[agents.AgentID]*agents.Agent, p.NumSellers+p.NumBuyers),
		Metrics:    NewCollector(),
		rng:        rng,
	}

	spawner := agents.NewSpawner(rng)
	for i := 0; i < p.NumSellers; i++ {
		if err := sim.addRandomly(spawner.SpawnSeller()); err != nil {
			return nil, err
		}
	}
	for i := 0; i < p.NumBuyers; i++ {
		if err := sim.addRandomly(spawner.SpawnBuyer()); err != nil {
			return nil, err
		}
	}

	slog.Debug("market created",
		"sellers", p.NumSellers,
		"buyers", p.NumBuyers,
		"grid", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"seed", p.Seed,
	)
	return sim, nil
}

func (s *Simulation) addRandomly(a *agents.Agent) error {
	pos := world.Coord{X: s.rng.Intn(s.Grid.Width()), Y: s.rng.Intn(s.Grid.Height())}
	if err := s.Grid.Place(a, pos); err != nil {
		return fmt.Errorf("place agent %d: %w", a.ID, err)
	}
	a.Position = pos
	s.Agents = append(s.Agents, a)
	s.AgentIndex[a.ID] = a
	return nil
}

// Step advances the market by one step: snapshot the cumulative trade count,
// record a metrics sample, then activate every agent once in a fresh random
// order. An activation error aborts the run.
func (s *Simulation) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		return fmt.Errorf("%w: %v", ErrAborted, s.failed)
	}

	s.TotalTransactions = s.sumTransactions()
	s.Metrics.Collect(s.StepCount, s.TotalTransactions, s.sellerPrices())

	trades := 0
	for _, i := range s.rng.Perm(len(s.Agents)) {
		out, err := agents.Activate(s.Agents[i], s.Grid, s.rng)
		if err != nil {
			s.failed = err
			return fmt.Errorf("step %d: %w", s.StepCount, err)
		}
		if out.Kind == agents.OutcomeTrade {
			trades++
		}
		s.record(out)
	}

	slog.Debug("step complete",
		"step", s.StepCount,
		"total_transactions", s.TotalTransactions,
		"trades", trades,
	)
	s.StepCount++
	return nil
}

func (s *Simulation) sumTransactions() int {
	total := 0
	for _, a := range s.Agents {
		total += a.Transactions
	}
	return total
}

func (s *Simulation) sellerPrices() []PricePoint {
	prices := make([]PricePoint, 0, s.Params.NumSellers)
	for _, a := range s.Agents {
		if p, ok := a.Price(); ok {
			prices = append(prices, PricePoint{AgentID: a.ID, Price: p})
		}
	}
	return prices
}

func (s *Simulation) record(out agents.Outcome) {
	switch out.Kind {
	case agents.OutcomeTrade, agents.OutcomeUndercut:
	default:
		return
	}
	s.Events = append(s.Events, Event{
		Step:        s.StepCount,
		AgentID:     out.AgentID,
		Counterpart: out.Counterpart,
		Kind:        out.Kind.String(),
		Price:       out.Price,
	})
	if len(s.Events) > 2*maxEvents {
		s.Events = append([]Event(nil), s.Events[len(s.Events)-maxEvents:]...)
	}
}

// CurrentStep returns the number of completed steps.
func (s *Simulation) CurrentStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StepCount
}

// Status summarizes the market at the last completed step.
type Status struct {
	Step              int     `json:"step"`
	TotalTransactions int     `json:"total_transactions"` // As sampled at the start of the last step
	LiveTransactions  int     `json:"live_transactions"`  // Sum over agents right now
	Sellers           int     `json:"sellers"`
	Buyers            int     `json:"buyers"`
	SellerStock       int     `json:"seller_stock"`
	BuyerHoldings     int     `json:"buyer_holdings"`
	TotalResources    int     `json:"total_resources"`
	BuyerBudget       float64 `json:"buyer_budget"`
	MeanPrice         float64 `json:"mean_price"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Seed              int64   `json:"seed"`
}

// Snapshot returns the current Status.
func (s *Simulation) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Step:              s.StepCount,
		TotalTransactions: s.TotalTransactions,
		LiveTransactions:  s.sumTransactions(),
		Sellers:           s.Params.NumSellers,
		Buyers:            s.Params.NumBuyers,
		Width:             s.Params.Width,
		Height:            s.Params.Height,
		Seed:              s.Params.Seed,
	}
	var prices []float64
	for _, a := range s.Agents {
		switch {
		case a.Stall != nil:
			st.SellerStock += a.Stall.Stock
			prices = append(prices, a.Stall.Price)
		case a.Purse != nil:
			st.BuyerHoldings += a.Purse.Holdings
			st.BuyerBudget += a.Purse.Budget
		}
	}
	st.TotalResources = st.SellerStock + st.BuyerHoldings
	st.MeanPrice = economy.MeanPrice(prices)
	return st
}

// TotalResources returns units held across all agents. Trades only move
// units, so this always equals StartingStock × NumSellers.
func (s *Simulation) TotalResources() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, a := range s.Agents {
		total += a.Resources()
	}
	return total
}

// AgentSnapshot returns detached copies of every agent in creation order.
func (s *Simulation) AgentSnapshot() []agents.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agents.Agent, len(s.Agents))
	for i, a := range s.Agents {
		out[i] = copyAgent(a)
	}
	return out
}

// Agent returns a detached copy of one agent.
func (s *Simulation) Agent(id agents.AgentID) (agents.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.AgentIndex[id]
	if !ok {
		return agents.Agent{}, false
	}
	return copyAgent(a), true
}

func copyAgent(a *agents.Agent) agents.Agent {
	c := *a
	if a.Stall != nil {
		stall := *a.Stall
		c.Stall = &stall
	}
	if a.Purse != nil {
		purse := *a.Purse
		c.Purse = &purse
	}
	return c
}

// RecentEvents returns up to n of the latest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n >= 0 && len(s.Events) > n {
		start = len(s.Events) - n
	}
	out := make([]Event, len(s.Events)-start)
	copy(out, s.Events[start:])
	return out
}
