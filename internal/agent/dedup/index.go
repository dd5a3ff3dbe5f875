// internal/agent/dedup/index.go
// Package dedup keeps an in-memory fuzzy fingerprint set over the existing
// catalog so near-duplicate candidates are rejected before persistence.
package dedup

import (
	"strings"
	"sync"

	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/models"
)

// stopWords are excluded from significant-word keys.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "by": true, "from": true, "is": true,
	"it": true, "as": true, "be": true, "was": true, "are": true,
	"this": true, "that": true, "your": true, "our": true, "new": true,
	"set": true, "pack": true, "pro": true, "mini": true,
}

// Index is a rebuildable set of derived dedup keys. A single significant
// word shared with an existing entry is enough to collide; the index trades
// missed candidates for duplicate prevention on purpose.
type Index struct {
	mu   sync.RWMutex
	keys map[string]bool
	log  logger.Logger
}

func NewIndex(log logger.Logger) *Index {
	return &Index{
		keys: make(map[string]bool),
		log:  log.With(map[string]interface{}{"component": "dedup-index"}),
	}
}

// Rebuild clears the index and regenerates keys for every existing entry.
func (i *Index) Rebuild(existing []models.Product) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.keys = make(map[string]bool)
	for _, p := range existing {
		for _, k := range deriveKeys(p.Name, p.Category) {
			i.keys[k] = true
		}
	}

	i.log.Info("dedup index rebuilt", map[string]interface{}{
		"entries": len(existing),
		"keys":    len(i.keys),
	})
}

// IsDuplicate reports whether any derived key of the candidate intersects
// the index.
func (i *Index) IsDuplicate(c models.Candidate) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, k := range deriveKeys(c.Name, c.Category) {
		if i.keys[k] {
			return true
		}
	}
	return false
}

// Register adds an accepted entry's keys to the index.
func (i *Index) Register(name, category string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, k := range deriveKeys(name, category) {
		i.keys[k] = true
	}
}

// Size returns the number of keys currently held.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.keys)
}

// deriveKeys computes the fuzzy fingerprints of one catalog name:
// the exact lowercase name, category plus first word, the leading two- and
// three-word n-grams, and category plus every significant content word.
func deriveKeys(name, category string) []string {
	name = strings.ToLower(strings.TrimSpace(name))
	category = strings.ToLower(strings.TrimSpace(category))
	if name == "" {
		return nil
	}

	keys := []string{name}

	words := strings.Fields(name)
	if len(words) == 0 {
		return keys
	}

	keys = append(keys, category+":"+words[0])

	if len(words) >= 2 {
		keys = append(keys, strings.Join(words[:2], " "))
	}
	if len(words) >= 3 {
		keys = append(keys, strings.Join(words[:3], " "))
	}

	for _, w := range words {
		w = strings.Trim(w, ".,!?:;()[]{}\"'")
		if len(w) <= 3 || stopWords[w] {
			continue
		}
		keys = append(keys, category+":"+w)
	}

	return keys
}
