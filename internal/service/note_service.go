package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"notes-sync-server/internal/domain"
	"notes-sync-server/internal/repository"

	"github.com/google/uuid"
)

// NoteService is the plain CRUD surface over the record store. Writes go
// through the same resolver and per-id lock as Push.
type NoteService struct {
	store       repository.RecordStore
	locks       *KeyedMutex
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func NewNoteService(
	store repository.RecordStore,
	locks *KeyedMutex,
	broadcaster Broadcaster,
	logger *slog.Logger,
) *NoteService {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NoteService{
		store:       store,
		locks:       locks,
		broadcaster: broadcaster,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func newNoteID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("note-%d-%s", now.UnixMilli(), suffix)
}

func (s *NoteService) Create(ctx context.Context, userID, deviceID string, req *domain.CreateNoteRequest) (*domain.NoteResponse, error) {
	now := s.now()
	id := newNoteID(now)

	unlock := s.locks.Lock(id)
	defer unlock()

	change := &domain.PushChange{
		ID:      id,
		Content: req.Content,
		Title:   domain.SetString(req.Title),
		Tags:    domain.SetTags(req.Tags),
	}
	decision := Resolve(nil, change, now)

	if err := s.store.Put(ctx, decision.Record); err != nil {
		return nil, err
	}

	s.logger.Info("note created", "note_id", id)
	notifyChange(s.broadcaster, s.logger, userID, deviceID, decision)
	return domain.NewNoteResponse(decision.Record), nil
}

// List returns live notes, most recently updated first.
func (s *NoteService) List(ctx context.Context) ([]*domain.NoteResponse, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.NoteResponse, 0, len(records))
	for _, rec := range records {
		if rec.Deleted || rec.ContentMissing {
			continue
		}
		responses = append(responses, domain.NewNoteResponse(rec))
	}

	sort.Slice(responses, func(i, j int) bool {
		if !responses[i].UpdatedAt.Equal(responses[j].UpdatedAt) {
			return responses[i].UpdatedAt.After(responses[j].UpdatedAt)
		}
		return responses[i].ID < responses[j].ID
	})
	return responses, nil
}

func (s *NoteService) GetByID(ctx context.Context, noteID string) (*domain.NoteResponse, error) {
	rec, err := s.load(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if rec.Deleted || rec.ContentMissing {
		return nil, ErrNotFound
	}
	return domain.NewNoteResponse(rec), nil
}

func (s *NoteService) Update(ctx context.Context, userID, deviceID, noteID string, req *domain.UpdateNoteRequest) (*domain.NoteResponse, error) {
	unlock := s.locks.Lock(noteID)
	defer unlock()

	rec, err := s.load(ctx, noteID)
	if err != nil {
		return nil, err
	}
	// A note whose body is gone can only be repaired by sending new content.
	if rec.Deleted || (rec.ContentMissing && req.Content == nil) {
		return nil, ErrNotFound
	}

	change := &domain.PushChange{ID: noteID, Content: rec.Content}
	if req.Content != nil {
		change.Content = *req.Content
	}
	if req.Title != nil {
		change.Title = domain.SetString(*req.Title)
	}
	if req.Tags != nil {
		change.Tags = domain.SetTags(*req.Tags)
	}
	if req.ExpectedHash != nil {
		change.OriginalHash = *req.ExpectedHash
	}

	decision := Resolve(rec, change, s.now())
	if decision.Kind == DecisionConflict {
		return nil, &ConflictError{NoteID: noteID, CurrentHash: rec.ContentHash}
	}

	if err := s.store.Put(ctx, decision.Record); err != nil {
		return nil, err
	}

	notifyChange(s.broadcaster, s.logger, userID, deviceID, decision)
	return domain.NewNoteResponse(decision.Record), nil
}

// Delete tombstones the note. Deleting a tombstone again succeeds.
func (s *NoteService) Delete(ctx context.Context, userID, deviceID, noteID string) error {
	unlock := s.locks.Lock(noteID)
	defer unlock()

	rec, err := s.load(ctx, noteID)
	if err != nil {
		return err
	}

	decision := Resolve(rec, &domain.PushChange{ID: noteID, Deleted: true}, s.now())
	if err := s.store.Put(ctx, decision.Record); err != nil {
		return err
	}

	s.logger.Info("note deleted", "note_id", noteID)
	notifyChange(s.broadcaster, s.logger, userID, deviceID, decision)
	return nil
}

func (s *NoteService) load(ctx context.Context, noteID string) (*domain.NoteRecord, error) {
	rec, err := s.store.Get(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
