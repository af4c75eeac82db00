// Package reconcile holds the client-side authoritative collections and the
// merge rules that keep them consistent between optimistic local edits,
// server-pushed events, and full CRUD refreshes. All merges are idempotent
// by id, so the final state is correct regardless of arrival order.
package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/curalink/portal-core/internal/domain"
	"go.uber.org/zap"
)

// AppointmentBook is the canonical, de-duplicated, cancelled-filtered
// collection of appointments for the active patient.
//
// Removal is terminal per id: once an appointment has been cancelled by any
// path (DELETE, update with isCancelled, explicit cancelled event), later
// new/update events for the same id are absorbed. A tombstone set enforces
// this until the next full refresh.
type AppointmentBook struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	byID    map[string]domain.Appointment
	removed map[string]struct{}
}

func NewAppointmentBook(log *zap.SugaredLogger) *AppointmentBook {
	return &AppointmentBook{
		log:     log,
		byID:    make(map[string]domain.Appointment),
		removed: make(map[string]struct{}),
	}
}

// ReplaceAll loads a fresh server snapshot, filtering cancelled entries.
// Tombstones reset: the snapshot is authoritative, so an id it re-introduces
// is a genuine reuse, not a resurrection.
func (b *AppointmentBook) ReplaceAll(appointments []domain.Appointment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.byID = make(map[string]domain.Appointment, len(appointments))
	b.removed = make(map[string]struct{})
	for _, a := range appointments {
		if a.IsCancelled {
			continue
		}
		b.byID[a.ID] = a
	}
}

// ApplyNew merges an inbound appointment:new. Duplicates are suppressed;
// the usual cause is the same confirmation arriving via both an ack and a
// broadcast. Cancelled or tombstoned records are never inserted.
func (b *AppointmentBook) ApplyNew(a domain.Appointment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, gone := b.removed[a.ID]; gone {
		return
	}
	if _, dup := b.byID[a.ID]; dup {
		return
	}
	if a.IsCancelled {
		return
	}
	b.byID[a.ID] = a
}

// ApplyUpdate merges an inbound appointment:update. The server record wins
// wholesale, no partial merge. A cancellation delivered as an update is a
// removal.
func (b *AppointmentBook) ApplyUpdate(a domain.Appointment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if a.IsCancelled {
		b.removeLocked(a.ID)
		return
	}
	if _, gone := b.removed[a.ID]; gone {
		// Cancellation already absorbed this id; a late update (say, a
		// reschedule queued before the cancel) is a no-op.
		return
	}
	b.byID[a.ID] = a
}

// ApplyCancelled removes the id unconditionally.
func (b *AppointmentBook) ApplyCancelled(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

// RemoveLocal is the optimistic cancel path: the caller got a 2xx on its
// DELETE and removes the id immediately, before the broadcast arrives. The
// later broadcast finds the id absent and is a no-op.
func (b *AppointmentBook) RemoveLocal(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

func (b *AppointmentBook) removeLocked(id string) {
	delete(b.byID, id)
	b.removed[id] = struct{}{}
}

// All returns the live collection sorted ascending by datetime.
func (b *AppointmentBook) All() []domain.Appointment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedLocked(nil)
}

// Upcoming is a derived view, recomputed per call since "now" keeps moving.
func (b *AppointmentBook) Upcoming(now time.Time) []domain.Appointment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedLocked(func(a domain.Appointment) bool {
		return a.IsUpcoming(now)
	})
}

// Past returns live appointments whose datetime is behind now.
func (b *AppointmentBook) Past(now time.Time) []domain.Appointment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedLocked(func(a domain.Appointment) bool {
		return a.Datetime.Before(now)
	})
}

// Get looks an appointment up by id.
func (b *AppointmentBook) Get(id string) (domain.Appointment, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.byID[id]
	return a, ok
}

func (b *AppointmentBook) sortedLocked(keep func(domain.Appointment) bool) []domain.Appointment {
	out := make([]domain.Appointment, 0, len(b.byID))
	for _, a := range b.byID {
		if keep == nil || keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Datetime.Equal(out[j].Datetime) {
			return out[i].ID < out[j].ID
		}
		return out[i].Datetime.Before(out[j].Datetime)
	})
	return out
}
