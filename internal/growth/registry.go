package growth

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

// registryEntry serializes reseeds for one user. fingerprint always
// describes the series the projector currently holds.
type registryEntry struct {
	mu          sync.Mutex
	projector   *Projector
	fingerprint string
	dropped     bool
}

// Registry keeps one projector per signed-in user.
type Registry struct {
	opts ProjectorOptions

	mu      sync.Mutex
	entries map[uuid.UUID]*registryEntry
}

func NewRegistry(opts ProjectorOptions) *Registry {
	return &Registry{opts: opts, entries: make(map[uuid.UUID]*registryEntry)}
}

// Project returns the user's projection, reseeding only when the approved
// investment set or the interval differs from the last call.
func (r *Registry) Project(userID uuid.UUID, investments []models.LedgerEntry, interval Interval) Snapshot {
	fp := fingerprint(investments, interval)

	for {
		e := r.entry(userID)

		e.mu.Lock()
		if e.dropped {
			// lost a race with Drop; take the replacement entry
			e.mu.Unlock()
			continue
		}
		if e.fingerprint != fp {
			e.projector.Seed(investments, interval)
			e.projector.Start()
			e.fingerprint = fp
		}
		snap := e.projector.Snapshot()
		e.mu.Unlock()
		return snap
	}
}

func (r *Registry) entry(userID uuid.UUID) *registryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		e = &registryEntry{projector: NewProjector(r.opts)}
		r.entries[userID] = e
	}
	return e
}

// Drop stops and forgets the user's projector, as on sign-out.
func (r *Registry) Drop(userID uuid.UUID) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()
	if ok {
		e.stop()
	}
}

func (e *registryEntry) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropped = true
	e.projector.Stop()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) StopAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uuid.UUID]*registryEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.stop()
	}
	log.Infof("stopped %d projectors", len(entries))
}

func fingerprint(investments []models.LedgerEntry, interval Interval) string {
	parts := make([]string, 0, len(investments))
	for _, inv := range investments {
		if inv.IsSuccess() {
			parts = append(parts, strconv.FormatInt(inv.ID, 10)+":"+inv.Amount.String())
		}
	}
	sort.Strings(parts)
	return interval.Name + "|" + strings.Join(parts, ",")
}
