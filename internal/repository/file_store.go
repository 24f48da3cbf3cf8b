package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"notes-sync-server/internal/domain"
)

const (
	MetadataFileName = ".metadata.json"
	noteFileExt      = ".md"
	tempFilePrefix   = ".tmp-"
)

// fileMeta is one entry of the metadata index.
type fileMeta struct {
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
	CreatedAt isoTime  `json:"createdAt"`
	UpdatedAt isoTime  `json:"updatedAt"`
	Hash      string   `json:"hash"`
	Deleted   bool     `json:"deleted"`
}

// isoTime is written as RFC 3339 and read with the cursor parser, so indexes
// written with zone-less timestamps still load.
type isoTime struct{ time.Time }

func (t isoTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *isoTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := domain.ParseCursor(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// FileStore keeps each note body in <dir>/<id>.md with a YAML front matter
// header, and all metadata in <dir>/.metadata.json. The index is loaded once
// and written through on every Put.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	index map[string]fileMeta
}

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create notes directory: %w", err)
	}

	s := &FileStore{
		dir:    dir,
		logger: logger,
		index:  make(map[string]fileMeta),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read metadata index: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		return fmt.Errorf("parse metadata index: %w", err)
	}
	s.logger.Debug("metadata index loaded", "path", s.indexPath(), "records", len(s.index))
	return nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dir, MetadataFileName)
}

func (s *FileStore) notePath(id string) string {
	return filepath.Join(s.dir, id+noteFileExt)
}

func (s *FileStore) Get(ctx context.Context, id string) (*domain.NoteRecord, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	meta, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.hydrate(id, meta)
}

// hydrate combines an index entry with its body. A missing body is reported
// through ContentMissing rather than as an error.
func (s *FileStore) hydrate(id string, meta fileMeta) (*domain.NoteRecord, error) {
	rec := &domain.NoteRecord{
		ID:          id,
		Title:       meta.Title,
		Tags:        append([]string(nil), meta.Tags...),
		ContentHash: meta.Hash,
		CreatedAt:   meta.CreatedAt.Time,
		UpdatedAt:   meta.UpdatedAt.Time,
		Deleted:     meta.Deleted,
	}

	data, err := os.ReadFile(s.notePath(id))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		rec.ContentMissing = true
	case err != nil:
		return nil, storeErr("read", id, err)
	default:
		fm, body := decodeNoteFile(data)
		rec.Content = body
		rec.ContentHash = domain.HashContent(body)
		if rec.Title == "" {
			rec.Title = fm.Title
		}
		if rec.Tags == nil && fm.Tags != nil {
			rec.Tags = []string(fm.Tags)
		}
	}

	if rec.Title == "" {
		rec.Title = domain.DefaultTitle
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return rec, nil
}

// Put stages the body next to its final path, saves the index, and only then
// renames the body into place. A failed index save leaves the previous body
// and metadata untouched.
func (s *FileStore) Put(ctx context.Context, rec *domain.NoteRecord) error {
	if err := ValidateID(rec.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A tombstone keeps whatever body is on disk.
	var staged string
	if !rec.Deleted {
		data, err := encodeNoteFile(frontMatter{ID: rec.ID, Title: rec.Title, Tags: rec.Tags}, rec.Content)
		if err != nil {
			return storeErr("write", rec.ID, err)
		}
		staged, err = stageFile(s.notePath(rec.ID), data, 0o644)
		if err != nil {
			return storeErr("write", rec.ID, err)
		}
		defer os.Remove(staged)
	}

	prev, existed := s.index[rec.ID]
	restore := func() {
		if existed {
			s.index[rec.ID] = prev
		} else {
			delete(s.index, rec.ID)
		}
	}

	s.index[rec.ID] = fileMeta{
		Title:     rec.Title,
		Tags:      append([]string(nil), rec.Tags...),
		CreatedAt: isoTime{rec.CreatedAt},
		UpdatedAt: isoTime{rec.UpdatedAt},
		Hash:      rec.ContentHash,
		Deleted:   rec.Deleted,
	}
	if err := s.saveIndexLocked(); err != nil {
		restore()
		return storeErr("write index", rec.ID, err)
	}

	if staged != "" {
		if err := os.Rename(staged, s.notePath(rec.ID)); err != nil {
			restore()
			if rerr := s.saveIndexLocked(); rerr != nil {
				s.logger.Error("failed to roll back metadata index", "note_id", rec.ID, "error", rerr)
			}
			return storeErr("write", rec.ID, err)
		}
	}
	return nil
}

func (s *FileStore) saveIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.indexPath(), data, 0o644)
}

func (s *FileStore) List(ctx context.Context) ([]*domain.NoteRecord, error) {
	s.mu.RLock()
	snapshot := make(map[string]fileMeta, len(s.index))
	for id, meta := range s.index {
		snapshot[id] = meta
	}
	s.mu.RUnlock()

	out := make([]*domain.NoteRecord, 0, len(snapshot))
	for id, meta := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, storeErr("list", "", err)
		}
		rec, err := s.hydrate(id, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := stageFile(filename, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", filename, err)
	}
	return nil
}

// stageFile writes data to a synced temp file beside filename and returns its
// path. The caller renames or removes it.
func stageFile(filename string, data []byte, perm os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fail := func(format string, err error) (string, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf(format, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}
