// Package tracker holds in-memory scan progress state shared between the
// orchestrator (sole writer) and the bus/query surface (readers).
package tracker

import (
	"sync"
	"time"

	"github.com/bobmcallan/vire/internal/optionscan"
)

// Snapshot is a point-in-time, immutable copy of the tracker's state, used
// both for progress queries and for a late-joining subscriber's synthetic
// replay event.
type Snapshot struct {
	InProgress    bool
	ScanID        string
	Total         int
	Scanned       int
	CurrentSymbol optionscan.Symbol
	StartedAt     time.Time
}

// Tracker is a mutex-guarded value-type façade: never a package-level
// global, always constructor-injected.
type Tracker struct {
	mu            sync.Mutex
	inProgress    bool
	scanID        string
	total         int
	scanned       int
	currentSymbol optionscan.Symbol
	startedAt     time.Time
}

func New() *Tracker {
	return &Tracker{}
}

// StartScan atomically transitions to in-progress if not already running.
// Returns false if a scan is already in flight.
func (t *Tracker) StartScan(scanID string, total int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inProgress {
		return false
	}
	t.inProgress = true
	t.scanID = scanID
	t.total = total
	t.scanned = 0
	t.currentSymbol = ""
	t.startedAt = time.Now()
	return true
}

// AdvanceSymbol records the symbol currently being processed.
func (t *Tracker) AdvanceSymbol(symbol optionscan.Symbol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentSymbol = symbol
}

// CompleteSymbol increments the scanned counter.
func (t *Tracker) CompleteSymbol() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scanned++
}

// FinishScan clears the in-progress flag.
func (t *Tracker) FinishScan() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inProgress = false
	t.currentSymbol = ""
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		InProgress:    t.inProgress,
		ScanID:        t.scanID,
		Total:         t.total,
		Scanned:       t.scanned,
		CurrentSymbol: t.currentSymbol,
		StartedAt:     t.startedAt,
	}
}

// InProgress reports whether a scan is currently running.
func (t *Tracker) InProgress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inProgress
}
