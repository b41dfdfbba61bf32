package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

const defaultProject = "default"

// maxRecordSize bounds a single line when reading a log back
const maxRecordSize = 4 * 1024 * 1024

var unsafeProjectChars = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// FileStore keeps one append-only JSON-lines file per project under a base
// directory. Writes to a project are serialized; reads take no lock and skip
// a torn trailing record.
type FileStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the base directory if needed
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// SanitizeProjectID maps a project id to a safe file stem
func SanitizeProjectID(projectID string) string {
	if projectID == "" {
		return defaultProject
	}
	return unsafeProjectChars.ReplaceAllString(projectID, "_")
}

// projectStem is the readable sanitized id followed by a digest of the raw
// id, so ids that sanitize alike still get separate files
func projectStem(projectID string) string {
	sum := sha256.Sum256([]byte(projectID))
	return SanitizeProjectID(projectID) + "-" + hex.EncodeToString(sum[:6])
}

// Path returns the log file for a project
func (s *FileStore) Path(projectID string) string {
	return filepath.Join(s.baseDir, projectStem(projectID)+".jsonl")
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) projectLock(stem string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[stem]
	if !ok {
		l = &sync.Mutex{}
		s.locks[stem] = l
	}
	return l
}

// Append writes the event as one line with a single write call
func (s *FileStore) Append(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Store: s.Name(), ProjectID: event.ProjectID, Cause: err}
	}

	line, err := json.Marshal(event)
	if err != nil {
		return &WriteError{Store: s.Name(), ProjectID: event.ProjectID, Cause: err}
	}
	line = append(line, '\n')

	lock := s.projectLock(projectStem(event.ProjectID))
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(s.Path(event.ProjectID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return &WriteError{Store: s.Name(), ProjectID: event.ProjectID, Cause: err}
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return &WriteError{Store: s.Name(), ProjectID: event.ProjectID, Cause: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Store: s.Name(), ProjectID: event.ProjectID, Cause: err}
	}
	return nil
}

// Tail reads the project's log keeping only the last limit records that
// belong to projectID
func (s *FileStore) Tail(ctx context.Context, projectID string, limit int) ([]Event, error) {
	f, err := os.Open(s.Path(projectID))
	if errors.Is(err, fs.ErrNotExist) {
		return []Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	var events []Event
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var event Event
		// a record still being written shows up as an undecodable line
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if event.ProjectID != projectID {
			continue
		}
		events = append(events, event)
		if limit > 0 && len(events) > limit {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Close is a no-op; files are opened per write
func (s *FileStore) Close() error { return nil }
