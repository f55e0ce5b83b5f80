// Package refresh keeps the triage snapshot current and processes the inbox
// on a cron schedule.
package refresh

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"mailtriage/internal/rules"
	"mailtriage/internal/storage/sqlite"
	"mailtriage/internal/triage"
)

// Holder publishes the most recent snapshot. Readers get a value they may
// share but must not modify.
type Holder struct {
	mu   sync.RWMutex
	snap triage.Snapshot
}

func (h *Holder) Load() triage.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

func (h *Holder) Store(s triage.Snapshot) {
	h.mu.Lock()
	h.snap = s
	h.mu.Unlock()
}

// Loader reads rules and open work items. Rules come from RulesPath when set,
// otherwise from the rule_rows table.
type Loader struct {
	DB        *sql.DB
	RulesPath string
}

func (l Loader) Load() (triage.Snapshot, error) {
	var (
		store rules.Store
		stats rules.IngestStats
		err   error
	)
	source := "db"
	if path := strings.TrimSpace(l.RulesPath); path != "" {
		source = path
		store, stats, err = rules.LoadFile(path)
	} else {
		store, stats, err = sqlite.LoadRules(l.DB)
	}
	if err != nil {
		return triage.Snapshot{}, fmt.Errorf("load rules from %s: %w", source, err)
	}

	items, err := sqlite.ListOpenWorkItems(l.DB)
	if err != nil {
		return triage.Snapshot{}, fmt.Errorf("load open work items: %w", err)
	}
	log.Printf("refresh snapshot source=%s rules=%d skipped=%d items=%d", source, stats.Loaded, stats.Skipped, len(items))
	return triage.Snapshot{Rules: store, Items: items, LoadedAt: time.Now()}, nil
}
