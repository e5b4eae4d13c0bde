// Transposition cache: position hash -> candidate lines from a prior
// analysis. One cache per run, owned by a single worker, so no locking.

package app

import "github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"

type cacheEntry struct {
	budget models.SearchBudget
	lines  []models.CandidateLine
}

type TranspositionCache struct {
	entries map[uint64]cacheEntry
	hits    int
	misses  int
}

func NewTranspositionCache() *TranspositionCache {
	return &TranspositionCache{entries: map[uint64]cacheEntry{}}
}

// Lookup returns cached lines only when the stored analysis was at least as
// deep and as long as the request; a stricter request is a miss even on a
// matching hash.
func (c *TranspositionCache) Lookup(hash uint64, required models.SearchBudget) ([]models.CandidateLine, bool) {
	e, ok := c.entries[hash]
	if !ok || !e.budget.Covers(required) {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.lines, true
}

// Store records lines computed under budget, keeping whichever entry was
// produced by the stricter budget when the hash is already present.
func (c *TranspositionCache) Store(hash uint64, budget models.SearchBudget, lines []models.CandidateLine) {
	if e, ok := c.entries[hash]; ok && e.budget.Covers(budget) && !budget.Covers(e.budget) {
		return
	}
	c.entries[hash] = cacheEntry{budget: budget, lines: lines}
}

func (c *TranspositionCache) Len() int { return len(c.entries) }

// Stats reports hit/miss counts for end-of-run logging.
func (c *TranspositionCache) Stats() (hits, misses int) { return c.hits, c.misses }
