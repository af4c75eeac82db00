package reconcile

import (
	"testing"
	"time"

	"github.com/curalink/portal-core/internal/domain"
	"go.uber.org/zap"
)

func msg(id string, at time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		PatientID: "p-1",
		Sender:    domain.RoleDoctor,
		Content:   "hello " + id,
		CreatedAt: at,
	}
}

func newLog(t *testing.T) *ConversationLog {
	t.Helper()
	return NewConversationLog("p-1", zap.NewNop().Sugar())
}

func TestAppendDeduplicatesByID(t *testing.T) {
	c := newLog(t)
	now := time.Now()

	// Same confirmation arriving via ack and broadcast.
	c.Append(msg("m-1", now))
	c.Append(msg("m-1", now))

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestAppendIgnoresOtherConversations(t *testing.T) {
	c := newLog(t)

	other := msg("m-1", time.Now())
	other.PatientID = "p-2"
	c.Append(other)

	if c.Len() != 0 {
		t.Fatal("message for another patient was accepted")
	}
}

func TestMessagesOrderedByCreatedAt(t *testing.T) {
	c := newLog(t)
	now := time.Now()

	c.Append(msg("m-2", now.Add(time.Minute)))
	c.Append(msg("m-1", now))
	c.Append(msg("m-3", now.Add(2*time.Minute)))

	got := c.Messages()
	want := []string{"m-1", "m-2", "m-3"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestEqualTimestampsKeepArrivalOrder(t *testing.T) {
	c := newLog(t)
	at := time.Now()

	c.Append(msg("m-b", at))
	c.Append(msg("m-a", at))

	got := c.Messages()
	if got[0].ID != "m-b" || got[1].ID != "m-a" {
		t.Fatalf("ties must keep arrival order, got %s then %s", got[0].ID, got[1].ID)
	}
}

func TestClearIsScoped(t *testing.T) {
	c := newLog(t)
	c.Append(msg("m-1", time.Now()))

	c.Clear("p-2")
	if c.Len() != 1 {
		t.Fatal("clear for another patient emptied the log")
	}

	c.Clear("p-1")
	if c.Len() != 0 {
		t.Fatal("clear for own patient left messages behind")
	}
}

func TestClearResetsDedupe(t *testing.T) {
	c := newLog(t)
	now := time.Now()

	c.Append(msg("m-1", now))
	c.Clear("p-1")
	c.Append(msg("m-1", now))

	if c.Len() != 1 {
		t.Fatal("id seen before clear should be accepted again after it")
	}
}

func TestReplaceLoadsHistory(t *testing.T) {
	c := newLog(t)
	now := time.Now()

	c.Append(msg("m-9", now))
	c.Replace([]domain.ChatMessage{
		msg("m-2", now.Add(time.Minute)),
		msg("m-1", now),
	})

	got := c.Messages()
	if len(got) != 2 || got[0].ID != "m-1" || got[1].ID != "m-2" {
		t.Fatalf("Replace result = %v", got)
	}
}
