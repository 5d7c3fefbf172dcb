package sessions

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateGet(t *testing.T) {
	store := NewFileStore(t.TempDir())

	tr, err := store.Create("llama-3.1-8b-instant", "10.0.0.2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(tr.ID, "run_") {
		t.Errorf("ID = %q, want run_ prefix", tr.ID)
	}
	if tr.Status != StatusActive {
		t.Errorf("Status = %q", tr.Status)
	}

	got, err := store.Get(tr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Model != "llama-3.1-8b-instant" || got.Address != "10.0.0.2" {
		t.Errorf("got %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir())

	for _, id := range []string{"run_missing", "", "../etc", "."} {
		if _, err := store.Get(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestRecordAndEntries(t *testing.T) {
	store := NewFileStore(t.TempDir())
	tr, err := store.Create("m", "")
	if err != nil {
		t.Fatal(err)
	}

	records := []Entry{
		{Kind: EntryPrompt, Content: "what is go?"},
		{Kind: EntryAnswer, Content: "A language.", Result: "text", DurationMs: 12.5, Usage: TokenUsage{Input: 10, Output: 4}},
		{Kind: EntryPrompt, Content: "and rust?"},
		{Kind: EntryFailure, Content: "Request failed: timeout", Result: "transport_error"},
	}
	for _, e := range records {
		if err := store.Record(tr.ID, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := store.Entries(tr.ID)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != len(records) {
		t.Fatalf("got %d entries, want %d", len(entries), len(records))
	}
	for i, e := range entries {
		if e.Kind != records[i].Kind || e.Content != records[i].Content {
			t.Errorf("entry %d = %+v", i, e)
		}
		if e.Ts.IsZero() {
			t.Errorf("entry %d has no timestamp", i)
		}
	}

	meta, _ := store.Get(tr.ID)
	if meta.Prompts != 2 || meta.Failures != 1 {
		t.Errorf("prompts = %d, failures = %d", meta.Prompts, meta.Failures)
	}
	if meta.TokenUsage != (TokenUsage{Input: 10, Output: 4}) {
		t.Errorf("usage = %+v", meta.TokenUsage)
	}
}

func TestRecordUnknownTranscript(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if err := store.Record("run_nope", Entry{Kind: EntryPrompt}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEntriesSkipsCorruptedLines(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	tr, _ := store.Create("m", "")
	store.Record(tr.ID, Entry{Kind: EntryPrompt, Content: "ok"})

	f, err := os.OpenFile(filepath.Join(dir, tr.ID, "entries.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n\n")
	f.Close()

	entries, err := store.Entries(tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}
}

func TestListOrderAndClose(t *testing.T) {
	store := NewFileStore(t.TempDir())

	first, _ := store.Create("m", "")
	time.Sleep(5 * time.Millisecond)
	second, _ := store.Create("m", "")
	time.Sleep(5 * time.Millisecond)
	if err := store.Record(first.ID, Entry{Kind: EntryPrompt, Content: "bump"}); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("order = %v", ids(list))
	}

	if err := store.Close(second.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(second.ID)
	if got.Status != StatusClosed {
		t.Errorf("status = %q", got.Status)
	}
}

func TestListMissingDir(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	list, err := store.List()
	if err != nil || list != nil {
		t.Errorf("list = %v, err = %v", list, err)
	}
}

func ids(list []*Transcript) []string {
	var out []string
	for _, t := range list {
		out = append(out, t.ID)
	}
	return out
}
