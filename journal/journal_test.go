package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/quenchbot/floodgate/buffer"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSentAndDroppedRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	queued := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	sent, err := buffer.NewMessageAt(buffer.CmdPrivmsg, queued, "#test", "hello")
	if err != nil {
		t.Fatalf("NewMessageAt() error = %v", err)
	}
	dropped, err := buffer.NewMessageAt(buffer.CmdPrivmsg, queued, "#test", "too slow")
	if err != nil {
		t.Fatalf("NewMessageAt() error = %v", err)
	}

	at := queued.Add(2 * time.Second)
	if err := j.Sent(sent, at); err != nil {
		t.Fatalf("Sent() error = %v", err)
	}
	if err := j.Dropped(dropped, at.Add(10*time.Second)); err != nil {
		t.Fatalf("Dropped() error = %v", err)
	}

	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(entries))
	}

	// Newest first.
	if entries[0].Disposition != DispositionDropped || entries[0].Body != "too slow" {
		t.Errorf("entries[0] = %+v, want the dropped line", entries[0])
	}
	if entries[1].Disposition != DispositionSent || entries[1].Body != "hello" {
		t.Errorf("entries[1] = %+v, want the sent line", entries[1])
	}
	if entries[1].Verb != "privmsg" || entries[1].Target != "#test" {
		t.Errorf("entries[1] = %+v, want verb and target recorded", entries[1])
	}
	if !entries[1].QueuedAt.Equal(queued) {
		t.Errorf("QueuedAt = %v, want %v", entries[1].QueuedAt, queued)
	}
	if !entries[1].LoggedAt.Equal(at) {
		t.Errorf("LoggedAt = %v, want %v", entries[1].LoggedAt, at)
	}
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)

	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m, err := buffer.NewMessageAt(buffer.CmdWhois, at, "alice")
		if err != nil {
			t.Fatalf("NewMessageAt() error = %v", err)
		}
		if err := j.Sent(m, at); err != nil {
			t.Fatalf("Sent() error = %v", err)
		}
	}

	entries, err := j.Recent(3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Recent(3) returned %d entries, want 3", len(entries))
	}

	entries, err = j.Recent(0)
	if err != nil {
		t.Fatalf("Recent(0) error = %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("Recent(0) returned %d entries, want all 5 under the default cap", len(entries))
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	j1.Close()

	// Reopening an existing database must not fail on the schema.
	j2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	j2.Close()
}
