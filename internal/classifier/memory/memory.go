// Package memory provides a scripted in-memory classifier for tests and
// offline development.
package memory

import (
	"context"
	"sync"

	"github.com/SilentInt/HamsterWallet/internal/classifier"
	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

// Classifier replays a scripted sequence of outcomes, one per batch call.
// When the script runs out it falls back to the Default function, or echoes
// every item onto the fallback category when no Default is set.
type Classifier struct {
	mu      sync.Mutex
	script  []Outcome
	calls   int
	batches [][]classifier.ItemPayload

	// Default produces an outcome when the script is exhausted.
	Default func(items []classifier.ItemPayload, tax []taxonomy.TaxonomyEntry) ([]classifier.Proposal, error)
}

// Outcome is one scripted batch reply.
type Outcome struct {
	Proposals []classifier.Proposal
	Err       error
}

func New(script ...Outcome) *Classifier {
	return &Classifier{script: script}
}

func (c *Classifier) ClassifyBatch(_ context.Context, items []classifier.ItemPayload, tax []taxonomy.TaxonomyEntry) ([]classifier.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batches = append(c.batches, append([]classifier.ItemPayload(nil), items...))
	call := c.calls
	c.calls++

	if call < len(c.script) {
		out := c.script[call]
		return out.Proposals, out.Err
	}
	if c.Default != nil {
		return c.Default(items, tax)
	}

	// Echo: propose the first taxonomy node for every item.
	if len(tax) == 0 {
		return nil, nil
	}
	proposals := make([]classifier.Proposal, len(items))
	for i, it := range items {
		proposals[i] = classifier.Proposal{ItemID: it.ID, CategoryID: tax[0].ID, CategoryName: tax[0].Name}
	}
	return proposals, nil
}

// Calls reports how many batches were classified.
func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Batch returns the item payloads of the i-th call.
func (c *Classifier) Batch(i int) []classifier.ItemPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.batches) {
		return nil
	}
	return c.batches[i]
}
