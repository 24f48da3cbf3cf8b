package repository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=mocks/mock_record_store.go -package=mocks notes-sync-server/internal/repository RecordStore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"notes-sync-server/internal/domain"
)

var (
	// ErrNotFound is returned by Get when no record exists for the id.
	ErrNotFound = errors.New("note not found")
	// ErrInvalidID is returned for identifiers a backend cannot store.
	ErrInvalidID = errors.New("invalid note id")
	// ErrStoreUnavailable matches every I/O failure of a backend.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// RecordStore is the durable mapping from note id to NoteRecord. Only the
// sync and note services write to it, and they serialize writes per id, so
// a backend needs read-your-writes consistency within the process but no
// cross-key transactions.
type RecordStore interface {
	// Get returns a copy of the record, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.NoteRecord, error)
	// Put creates or replaces the record stored under rec.ID.
	Put(ctx context.Context, rec *domain.NoteRecord) error
	// List returns every record, tombstones included.
	List(ctx context.Context) ([]*domain.NoteRecord, error)
}

// StoreError wraps a backend failure with the operation that hit it.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeErr(op, id string, err error) error {
	return &StoreError{Op: op, ID: id, Err: err}
}

// ValidateID rejects ids that are empty or could escape a directory when used
// as a file name.
func ValidateID(id string) error {
	switch {
	case id == "", strings.TrimSpace(id) != id:
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: %q must not start with a dot", ErrInvalidID, id)
	case strings.ContainsAny(id, `/\:`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidID, id)
	}
	return nil
}
