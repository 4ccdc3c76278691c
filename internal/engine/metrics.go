// Metrics collection: one sample per step, append-only.
package engine

import (
	"sort"
	"sync"

	"github.com/talgya/gridmarket/internal/agents"
)

// PricePoint is one seller's ask at sampling time.
type PricePoint struct {
	AgentID agents.AgentID `json:"agent_id"`
	Price   float64        `json:"price"`
}

// Sample is the state recorded at the start of a step.
type Sample struct {
	Step              int          `json:"step"`
	TotalTransactions int          `json:"total_transactions"`
	Prices            []PricePoint `json:"prices"` // Sellers only, in creation order
}

// TransactionPoint is one entry of the transactions-over-time series.
type TransactionPoint struct {
	Step  int `json:"step"`
	Total int `json:"total"`
}

// PriceObservation is one (step, seller, price) tuple.
type PriceObservation struct {
	Step    int            `json:"step"`
	AgentID agents.AgentID `json:"agent_id"`
	Price   float64        `json:"price"`
}

// MeanPricePoint is the average seller ask at one step.
type MeanPricePoint struct {
	Step int     `json:"step"`
	Mean float64 `json:"mean"`
}

// Collector accumulates samples. Safe for one writer and concurrent readers.
type Collector struct {
	mu      sync.RWMutex
	samples []Sample
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect appends a sample. The prices slice is copied.
func (c *Collector) Collect(step, totalTransactions int, prices []PricePoint) {
	own := make([]PricePoint, len(prices))
	copy(own, prices)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, Sample{
		Step:              step,
		TotalTransactions: totalTransactions,
		Prices:            own,
	})
}

// Len returns the number of samples.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.samples)
}

// Samples returns all samples in step order.
func (c *Collector) Samples() []Sample {
	return c.Since(0)
}

// Since returns samples with Step >= step.
func (c *Collector) Since(step int) []Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := sort.Search(len(c.samples), func(i int) bool { return c.samples[i].Step >= step })
	if i == len(c.samples) {
		return nil
	}
	out := make([]Sample, len(c.samples)-i)
	copy(out, c.samples[i:])
	return out
}

// Latest returns the most recent sample.
func (c *Collector) Latest() (Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.samples) == 0 {
		return Sample{}, false
	}
	return c.samples[len(c.samples)-1], true
}

// TransactionSeries returns (step, totalTransactions) pairs.
func (c *Collector) TransactionSeries() []TransactionPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]TransactionPoint, len(c.samples))
	for i, s := range c.samples {
		out[i] = TransactionPoint{Step: s.Step, Total: s.TotalTransactions}
	}
	return out
}

// PriceSeries flattens every seller price into (step, agent, price) tuples.
func (c *Collector) PriceSeries() []PriceObservation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []PriceObservation
	for _, s := range c.samples {
		for _, p := range s.Prices {
			out = append(out, PriceObservation{Step: s.Step, AgentID: p.AgentID, Price: p.Price})
		}
	}
	return out
}

// MeanPriceSeries averages seller prices per step.
func (c *Collector) MeanPriceSeries() []MeanPricePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]MeanPricePoint, len(c.samples))
	for i, s := range c.samples {
		out[i] = MeanPricePoint{Step: s.Step, Mean: meanOf(s.Prices)}
	}
	return out
}

func meanOf(prices []PricePoint) float64 {
	if len(prices) == 0 {
		return 0
	}
	var sum float64
	for _, p := range prices {
		sum += p.Price
	}
	return sum / float64(len(prices))
}
