package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// document is the on-disk shape of the ledger file.
type document struct {
	Products    []Entry   `json:"products"`
	LastUpdated time.Time `json:"last_updated"`
}

// FileStore keeps the ledger in a single JSON file. Every Append rewrites
// the file through a temp-file-and-rename so a crash mid-write leaves the
// previous state intact.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	entries []Entry
	index   map[string]struct{}
	nextID  int64
}

// OpenFile loads the ledger at path, creating parent directories as needed.
// A missing file starts an empty ledger. A corrupt file is preserved under a
// .corrupt suffix and the ledger restarts empty rather than failing the run.
func OpenFile(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	s := &FileStore{
		path:   path,
		logger: logger,
		index:  make(map[string]struct{}),
		nextID: 1,
	}

	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from config
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		backup := path + ".corrupt"
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, fmt.Errorf("move corrupt ledger aside: %w", renameErr)
		}
		logger.Warn("ledger file is corrupt, starting empty",
			zap.String("path", path),
			zap.String("backup", backup),
			zap.Error(err))
		return s, nil
	}

	s.entries = doc.Products
	for _, e := range s.entries {
		if e.Identifier != "" {
			s.index[e.Identifier] = struct{}{}
		}
		if e.InternalID >= s.nextID {
			s.nextID = e.InternalID + 1
		}
	}
	logger.Info("ledger loaded",
		zap.String("path", path),
		zap.Int("entries", len(s.entries)))
	return s, nil
}

// Contains reports whether identifier is already recorded.
func (s *FileStore) Contains(identifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[identifier]
	return ok
}

// NextID returns the next unused internal id.
func (s *FileStore) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Entries returns a copy of all recorded entries in insertion order.
func (s *FileStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Append records e and rewrites the ledger file. On write failure the
// in-memory state is rolled back and the error wraps ErrPersistence.
func (s *FileStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if e.Identifier == "" {
		return fmt.Errorf("%w: entry identifier is required", ErrPersistence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.index[e.Identifier]; dup {
		return fmt.Errorf("%w: duplicate identifier %s", ErrPersistence, e.Identifier)
	}

	s.entries = append(s.entries, e)
	s.index[e.Identifier] = struct{}{}
	if e.InternalID >= s.nextID {
		s.nextID = e.InternalID + 1
	}

	if err := s.persist(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		delete(s.index, e.Identifier)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// persist writes the whole document to a temp file in the same directory
// and renames it over the ledger path. Callers hold s.mu.
func (s *FileStore) persist() error {
	doc := document{Products: s.entries, LastUpdated: time.Now().UTC()}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
