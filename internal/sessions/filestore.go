package sessions

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown transcript IDs.
var ErrNotFound = errors.New("transcript not found")

// FileStore keeps transcripts under baseDir/<id>/{meta.json,entries.jsonl}.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (fs *FileStore) dir(id string) string {
	return filepath.Join(fs.baseDir, id)
}

func (fs *FileStore) metaPath(id string) string {
	return filepath.Join(fs.dir(id), "meta.json")
}

func (fs *FileStore) entriesPath(id string) string {
	return filepath.Join(fs.dir(id), "entries.jsonl")
}

func newID() string {
	return "run_" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")
}

// Create starts a transcript for a run against model.
func (fs *FileStore) Create(model, address string) (*Transcript, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now()
	t := &Transcript{
		ID:        newID(),
		Model:     model,
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
	}
	if err := os.MkdirAll(fs.dir(t.ID), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	if err := fs.writeMeta(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get reads transcript metadata.
func (fs *FileStore) Get(id string) (*Transcript, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.readMeta(id)
}

// List returns all transcripts, most recently updated first. Unreadable
// directories are skipped.
func (fs *FileStore) List() ([]*Transcript, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	dirs, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	var out []*Transcript
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		t, err := fs.readMeta(d.Name())
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Record appends e and folds it into the metadata counters.
func (fs *FileStore) Record(id string, e Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	t, err := fs.readMeta(id)
	if err != nil {
		return err
	}
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	f, err := os.OpenFile(fs.entriesPath(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open entries: %w", err)
	}
	_, werr := f.Write(append(data, '\n'))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write entry: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close entries: %w", cerr)
	}

	switch e.Kind {
	case EntryPrompt:
		t.Prompts++
	case EntryFailure:
		t.Failures++
	}
	t.TokenUsage.Input += e.Usage.Input
	t.TokenUsage.Output += e.Usage.Output
	t.UpdatedAt = e.Ts
	return fs.writeMeta(t)
}

// Entries reads every entry of a transcript. Corrupted lines are skipped.
func (fs *FileStore) Entries(id string) ([]Entry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, err := fs.readMeta(id); err != nil {
		return nil, err
	}

	f, err := os.Open(fs.entriesPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open entries: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	return entries, nil
}

// Close marks a transcript closed.
func (fs *FileStore) Close(id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	t, err := fs.readMeta(id)
	if err != nil {
		return err
	}
	t.Status = StatusClosed
	t.UpdatedAt = time.Now()
	return fs.writeMeta(t)
}

// writeMeta replaces meta.json through a temp file and rename.
func (fs *FileStore) writeMeta(t *Transcript) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	path := fs.metaPath(t.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename meta: %w", err)
	}
	return nil
}

func (fs *FileStore) readMeta(id string) (*Transcript, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(fs.metaPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return &t, nil
}
