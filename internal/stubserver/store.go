package stubserver

import (
	"sort"
	"sync"
	"time"

	"github.com/curalink/portal-core/internal/domain"
)

// In-memory stores, oldest entries evicted by capacity where unbounded
// growth is possible. Good enough for a dev fixture; the real clinic API has
// its own persistence.

type AppointmentStore struct {
	mu   sync.RWMutex
	byID map[string]domain.Appointment
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{byID: make(map[string]domain.Appointment)}
}

func (s *AppointmentStore) Put(a domain.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[a.ID] = a
}

func (s *AppointmentStore) Get(id string) (domain.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	return a, ok
}

// Cancel flips the flag and returns the cancelled record.
func (s *AppointmentStore) Cancel(id string) (domain.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return domain.Appointment{}, false
	}
	a.IsCancelled = true
	s.byID[id] = a
	return a, true
}

func (s *AppointmentStore) Reschedule(id string, to time.Time) (domain.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok || a.IsCancelled {
		return domain.Appointment{}, false
	}
	a.Datetime = to
	s.byID[id] = a
	return a, true
}

func (s *AppointmentStore) ByPatient(patientID string) []domain.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Appointment
	for _, a := range s.byID {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return out
}

type MessageStore struct {
	mu       sync.RWMutex
	messages map[string][]domain.ChatMessage // patientID -> messages
	capacity int
}

func NewMessageStore(capacity int) *MessageStore {
	if capacity == 0 {
		capacity = 200 // sane default
	}
	return &MessageStore{
		messages: make(map[string][]domain.ChatMessage),
		capacity: capacity,
	}
}

func (s *MessageStore) Add(m domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.messages[m.PatientID], m)

	// Evict oldest if over capacity
	if len(msgs) > s.capacity {
		msgs = msgs[len(msgs)-s.capacity:]
	}

	s.messages[m.PatientID] = msgs
}

func (s *MessageStore) Clear(patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, patientID)
}

func (s *MessageStore) ByPatient(patientID string) []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[patientID]
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

type PatientStore struct {
	mu         sync.RWMutex
	patients   map[string]domain.Patient
	procedures map[string][]domain.Procedure
	invoices   map[string][]domain.Invoice
}

func NewPatientStore() *PatientStore {
	return &PatientStore{
		patients:   make(map[string]domain.Patient),
		procedures: make(map[string][]domain.Procedure),
		invoices:   make(map[string][]domain.Invoice),
	}
}

func (s *PatientStore) Put(p domain.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

func (s *PatientStore) Get(id string) (domain.Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	return p, ok
}

func (s *PatientStore) AddProcedure(p domain.Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procedures[p.PatientID] = append(s.procedures[p.PatientID], p)
}

func (s *PatientStore) AddInvoice(inv domain.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.PatientID] = append(s.invoices[inv.PatientID], inv)
}

func (s *PatientStore) Procedures(patientID string) []domain.Procedure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Procedure, len(s.procedures[patientID]))
	copy(out, s.procedures[patientID])
	return out
}

func (s *PatientStore) Invoices(patientID string) []domain.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Invoice, len(s.invoices[patientID]))
	copy(out, s.invoices[patientID])
	return out
}
