// Agent spawning: creates sellers and buyers with sequential IDs and their
// opening economic state.
package agents

import (
	"math/rand"

	"github.com/talgya/gridmarket/internal/economy"
)

// Spawner creates agents for the simulation. It draws from the caller's
// generator so that creation interleaves deterministically with placement.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
}

// NewSpawner creates a spawner issuing IDs from 0.
func NewSpawner(rng *rand.Rand) *Spawner {
	return &Spawner{rng: rng}
}

// SetNextID sets the next agent ID to be issued.
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// NextID returns the ID the next spawned agent will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

// SpawnSeller creates a seller with full stock and a random opening ask.
func (s *Spawner) SpawnSeller() *Agent {
	id := s.nextID
	s.nextID++
	return NewSeller(id, economy.OpeningStall(s.rng))
}

// SpawnBuyer creates a buyer with the starting budget.
func (s *Spawner) SpawnBuyer() *Agent {
	id := s.nextID
	s.nextID++
	return NewBuyer(id, economy.OpeningPurse())
}
