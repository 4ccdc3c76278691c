package persistence

import (
	"fmt"

	"github.com/talgya/gridmarket/internal/engine"
)

// Recorder writes a collector's samples to one run incrementally.
type Recorder struct {
	db    *DB
	RunID string
	next  int // First step not yet written
}

// StartRun registers p as a new run and returns a recorder for it.
func (db *DB) StartRun(p engine.Params) (*Recorder, error) {
	id, err := db.CreateRun(p)
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, RunID: id}, nil
}

// Flush saves every sample collected since the previous flush.
func (r *Recorder) Flush(c *engine.Collector) error {
	pending := c.Since(r.next)
	if len(pending) == 0 {
		return nil
	}
	if err := r.db.SaveSamples(r.RunID, pending); err != nil {
		return fmt.Errorf("flush run %s: %w", r.RunID, err)
	}
	r.next = pending[len(pending)-1].Step + 1
	return nil
}

// Close flushes the remaining samples and marks the run finished.
func (r *Recorder) Close(c *engine.Collector) error {
	if err := r.Flush(c); err != nil {
		return err
	}
	return r.db.FinishRun(r.RunID)
}
