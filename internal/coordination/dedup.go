package coordination

import (
	"fmt"
	"time"

	"github.com/levoit/visibilitypipeline/internal/models"
)

// DedupTTL is how long a successful (query, platform) scrape suppresses
// repeat work.
const DedupTTL = 6 * time.Hour

// Dedup tracks recently-completed (query, platform) scrapes so the
// orchestrator can skip repeat work within the dedup window.
type Dedup struct {
	store *Store
}

// NewDedup builds a dedup probe backed by store.
func NewDedup(store *Store) *Dedup {
	return &Dedup{store: store}
}

func (d *Dedup) key(queryID string, platform models.Platform) []byte {
	return []byte(fmt.Sprintf("dedup:%s:%s", queryID, platform))
}

// Seen reports whether (queryID, platform) has a live dedup entry.
func (d *Dedup) Seen(queryID string, platform models.Platform) (bool, error) {
	return d.store.setExists(d.key(queryID, platform))
}

// MarkSeen records a successful scrape of (queryID, platform), suppressing
// repeat work for DedupTTL.
func (d *Dedup) MarkSeen(queryID string, platform models.Platform) error {
	return d.store.setWithTTL(d.key(queryID, platform), []byte{1}, DedupTTL)
}
