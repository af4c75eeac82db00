package reconcile

import (
	"testing"
	"time"

	"github.com/curalink/portal-core/internal/domain"
	"go.uber.org/zap"
)

func appt(id string, at time.Time) domain.Appointment {
	return domain.Appointment{
		ID:        id,
		Title:     "Checkup " + id,
		Datetime:  at,
		Type:      domain.AppointmentTypeCheckup,
		PatientID: "p-1",
	}
}

func newBook(t *testing.T) *AppointmentBook {
	t.Helper()
	return NewAppointmentBook(zap.NewNop().Sugar())
}

func TestReplaceAllFiltersCancelled(t *testing.T) {
	b := newBook(t)
	now := time.Now()

	live := appt("a-1", now.Add(time.Hour))
	dead := appt("a-2", now.Add(2*time.Hour))
	dead.IsCancelled = true

	b.ReplaceAll([]domain.Appointment{live, dead})

	if got := b.All(); len(got) != 1 || got[0].ID != "a-1" {
		t.Fatalf("All() = %v, want only a-1", got)
	}
}

func TestApplyNewIsIdempotent(t *testing.T) {
	b := newBook(t)
	now := time.Now()

	first := appt("a-1", now.Add(time.Hour))
	dup := first
	dup.Title = "changed title that must lose"

	b.ApplyNew(first)
	b.ApplyNew(dup)

	got, ok := b.Get("a-1")
	if !ok {
		t.Fatal("appointment missing after ApplyNew")
	}
	if got.Title != first.Title {
		t.Fatalf("duplicate ApplyNew overwrote record: %q", got.Title)
	}
	if len(b.All()) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(b.All()))
	}
}

func TestApplyUpdateReplacesWholesale(t *testing.T) {
	b := newBook(t)
	now := time.Now()

	b.ApplyNew(appt("a-1", now.Add(time.Hour)))

	moved := appt("a-1", now.Add(3*time.Hour))
	moved.Location = "Room 4"
	b.ApplyUpdate(moved)

	got, _ := b.Get("a-1")
	if !got.Datetime.Equal(moved.Datetime) || got.Location != "Room 4" {
		t.Fatalf("update did not replace record: %+v", got)
	}
}

func TestApplyUpdateOfUnknownIDUpserts(t *testing.T) {
	b := newBook(t)

	b.ApplyUpdate(appt("a-9", time.Now().Add(time.Hour)))

	if _, ok := b.Get("a-9"); !ok {
		t.Fatal("update of unknown id should insert the record")
	}
}

func TestCancellationAbsorbsLaterEvents(t *testing.T) {
	now := time.Now()

	// All three removal paths must leave a tombstone that later events for
	// the same id cannot resurrect.
	paths := map[string]func(*AppointmentBook){
		"cancelled event": func(b *AppointmentBook) { b.ApplyCancelled("a-1") },
		"local delete":    func(b *AppointmentBook) { b.RemoveLocal("a-1") },
		"flagged update": func(b *AppointmentBook) {
			dead := appt("a-1", now.Add(time.Hour))
			dead.IsCancelled = true
			b.ApplyUpdate(dead)
		},
	}

	for name, remove := range paths {
		t.Run(name, func(t *testing.T) {
			b := newBook(t)
			b.ApplyNew(appt("a-1", now.Add(time.Hour)))

			remove(b)

			b.ApplyNew(appt("a-1", now.Add(2*time.Hour)))
			b.ApplyUpdate(appt("a-1", now.Add(3*time.Hour)))

			if _, ok := b.Get("a-1"); ok {
				t.Fatal("tombstoned id resurrected")
			}
			if len(b.All()) != 0 {
				t.Fatalf("expected empty book, got %v", b.All())
			}
		})
	}
}

func TestRescheduleRacesCancel(t *testing.T) {
	// A reschedule broadcast that was in flight when the cancel landed must
	// not bring the appointment back.
	b := newBook(t)
	now := time.Now()

	b.ApplyNew(appt("a-1", now.Add(time.Hour)))
	b.RemoveLocal("a-1")
	b.ApplyUpdate(appt("a-1", now.Add(4*time.Hour)))

	if _, ok := b.Get("a-1"); ok {
		t.Fatal("stale reschedule resurrected a cancelled appointment")
	}
}

func TestReplaceAllResetsTombstones(t *testing.T) {
	b := newBook(t)
	now := time.Now()

	b.ApplyNew(appt("a-1", now.Add(time.Hour)))
	b.ApplyCancelled("a-1")

	// The snapshot is authoritative: if the server still has a-1, it stays.
	b.ReplaceAll([]domain.Appointment{appt("a-1", now.Add(time.Hour))})

	if _, ok := b.Get("a-1"); !ok {
		t.Fatal("snapshot record dropped by stale tombstone")
	}
}

func TestViewsAreSortedAndSplitByNow(t *testing.T) {
	b := newBook(t)
	now := time.Now()

	b.ReplaceAll([]domain.Appointment{
		appt("a-3", now.Add(2*time.Hour)),
		appt("a-1", now.Add(-2*time.Hour)),
		appt("a-2", now.Add(time.Hour)),
	})

	all := b.All()
	wantOrder := []string{"a-1", "a-2", "a-3"}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Fatalf("All() order = %v, want %v", ids(all), wantOrder)
		}
	}

	if up := b.Upcoming(now); len(up) != 2 || up[0].ID != "a-2" {
		t.Fatalf("Upcoming() = %v, want [a-2 a-3]", ids(up))
	}
	if past := b.Past(now); len(past) != 1 || past[0].ID != "a-1" {
		t.Fatalf("Past() = %v, want [a-1]", ids(past))
	}
}

func TestSortTiesBreakOnID(t *testing.T) {
	b := newBook(t)
	at := time.Now().Add(time.Hour)

	b.ApplyNew(appt("b", at))
	b.ApplyNew(appt("a", at))

	all := b.All()
	if all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("equal datetimes should order by id, got %v", ids(all))
	}
}

func ids(as []domain.Appointment) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}
