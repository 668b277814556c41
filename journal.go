package planloop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JournalKind discriminates journal records.
type JournalKind string

const (
	JournalTransition JournalKind = "transition"
	JournalDispatch   JournalKind = "dispatch"
	JournalResult     JournalKind = "result"
	JournalConfigErr  JournalKind = "config_error"
	JournalLifecycle  JournalKind = "lifecycle"
)

// JournalRecord is one append-only entry of an instance's execution history.
// Exactly which optional fields are set depends on Kind.
type JournalRecord struct {
	ID         string      `json:"id"`
	InstanceID string      `json:"instance_id"`
	Kind       JournalKind `json:"kind"`
	At         time.Time   `json:"at"`

	TaskID     string     `json:"task_id,omitempty"`
	ListenerID string     `json:"listener_id,omitempty"`
	From       TaskStatus `json:"from,omitempty"`
	To         TaskStatus `json:"to,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Journal is the sink for execution records. Implementations must tolerate
// concurrent appends from different instances; appends within one instance
// arrive in order.
type Journal interface {
	Append(ctx context.Context, record *JournalRecord) error
}

func newJournalRecord(instanceID string, kind JournalKind) *JournalRecord {
	// UUID v7 keeps records sortable by creation time across sinks.
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &JournalRecord{
		ID:         id.String(),
		InstanceID: instanceID,
		Kind:       kind,
		At:         time.Now(),
	}
}

// MemoryJournal is the in-memory Journal used by default and in tests.
type MemoryJournal struct {
	mu      sync.Mutex
	records []JournalRecord
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (x *MemoryJournal) Append(ctx context.Context, record *JournalRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records = append(x.records, *record)
	return nil
}

// Records returns a copy of all appended records, optionally filtered by
// instance id. An empty instanceID returns everything.
func (x *MemoryJournal) Records(instanceID string) []JournalRecord {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]JournalRecord, 0, len(x.records))
	for _, r := range x.records {
		if instanceID == "" || r.InstanceID == instanceID {
			out = append(out, r)
		}
	}
	return out
}
