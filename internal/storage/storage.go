// Package storage persists document snapshots on the filesystem: one
// directory per document holding a state record and a metadata record. The
// room layer treats it as a write-behind target, not a source of truth once
// loaded, so a crash between saves loses at most one coalesced window of
// edits.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"collab-backend/internal/model"
)

const (
	stateFile    = "state.bin"
	metaFile     = "meta.bin"
	defaultTitle = "Untitled"
)

// Store is a filesystem snapshot store rooted at one data directory.
type Store struct {
	mu   sync.Mutex
	root string
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		root = "data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{root: root}, nil
}

func validDocID(docID string) bool {
	if docID == "" || docID == "." || docID == ".." {
		return false
	}
	return !strings.ContainsAny(docID, "/\\")
}

func (s *Store) docDir(docID string) string {
	return filepath.Join(s.root, docID)
}

func (s *Store) statePath(docID string) string {
	return filepath.Join(s.docDir(docID), stateFile)
}

func (s *Store) metaPath(docID string) string {
	return filepath.Join(s.docDir(docID), metaFile)
}

// writeRecord writes through a temp file and renames, so an interrupted save
// cannot corrupt the previous snapshot.
func writeRecord(path string, v any) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readRecord(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return cbor.Unmarshal(data, v)
}

// EnsureExists idempotently creates the document directory with an empty
// state record and a default metadata record.
func (s *Store) EnsureExists(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureExists(docID)
}

func (s *Store) ensureExists(docID string) error {
	if !validDocID(docID) {
		return fmt.Errorf("invalid document id %q", docID)
	}

	if err := os.MkdirAll(s.docDir(docID), 0o755); err != nil {
		return err
	}

	if _, err := os.Stat(s.statePath(docID)); os.IsNotExist(err) {
		empty := model.DocumentState{Text: "", Images: []model.ImageState{}}
		if err := writeRecord(s.statePath(docID), &empty); err != nil {
			return err
		}
	}

	if _, err := os.Stat(s.metaPath(docID)); os.IsNotExist(err) {
		meta := model.DocumentMeta{ID: docID, Title: defaultTitle, UpdatedAt: nowMillis()}
		if err := writeRecord(s.metaPath(docID), &meta); err != nil {
			return err
		}
	}

	return nil
}

// Load reads the full snapshot for one document, creating an empty one if
// the document has never been saved.
func (s *Store) Load(docID string) (*model.DocumentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureExists(docID); err != nil {
		return nil, err
	}
	var state model.DocumentState
	if err := readRecord(s.statePath(docID), &state); err != nil {
		return nil, fmt.Errorf("load %s: %w", docID, err)
	}
	return &state, nil
}

// Save writes the full snapshot and bumps updatedAt on the metadata record.
func (s *Store) Save(docID string, state *model.DocumentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureExists(docID); err != nil {
		return err
	}
	if err := writeRecord(s.statePath(docID), state); err != nil {
		return fmt.Errorf("save %s: %w", docID, err)
	}

	meta, err := s.meta(docID)
	if err != nil {
		meta = &model.DocumentMeta{ID: docID, Title: defaultTitle}
	}
	if meta.Title == "" {
		meta.Title = defaultTitle
	}
	meta.UpdatedAt = nowMillis()
	return writeRecord(s.metaPath(docID), meta)
}

// Meta returns the metadata record for one document.
func (s *Store) Meta(docID string) (*model.DocumentMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureExists(docID); err != nil {
		return nil, err
	}
	return s.meta(docID)
}

func (s *Store) meta(docID string) (*model.DocumentMeta, error) {
	var meta model.DocumentMeta
	if err := readRecord(s.metaPath(docID), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Title returns the document title, falling back to the default for missing
// or blank metadata.
func (s *Store) Title(docID string) string {
	meta, err := s.Meta(docID)
	if err != nil || meta.Title == "" {
		return defaultTitle
	}
	return meta.Title
}

// SetTitle renames the document and bumps updatedAt.
func (s *Store) SetTitle(docID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureExists(docID); err != nil {
		return err
	}
	meta, err := s.meta(docID)
	if err != nil {
		meta = &model.DocumentMeta{ID: docID}
	}
	if title == "" {
		title = defaultTitle
	}
	meta.Title = title
	meta.UpdatedAt = nowMillis()
	return writeRecord(s.metaPath(docID), meta)
}

// ListMetas scans the data directory and returns every readable metadata
// record, most recently updated first. Unreadable entries are skipped rather
// than failing the whole listing.
func (s *Store) ListMetas() []model.DocumentMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}

	metas := make([]model.DocumentMeta, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta model.DocumentMeta
		if err := readRecord(s.metaPath(e.Name()), &meta); err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt > metas[j].UpdatedAt
	})
	return metas
}

// Create allocates a new document id and persists an empty state with the
// given title.
func (s *Store) Create(title string) (*model.DocumentMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docID := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.ensureExists(docID); err != nil {
		return nil, err
	}

	if title == "" {
		title = defaultTitle
	}
	meta := &model.DocumentMeta{ID: docID, Title: title, UpdatedAt: nowMillis()}
	if err := writeRecord(s.metaPath(docID), meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Delete removes the document directory recursively. Returns false when the
// document does not exist.
func (s *Store) Delete(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validDocID(docID) {
		return false
	}
	dir := s.docDir(docID)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	return os.RemoveAll(dir) == nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
