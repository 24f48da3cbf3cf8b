package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"notes-sync-server/internal/domain"
	"notes-sync-server/internal/repository"
	"notes-sync-server/internal/websocket"
)

// Broadcaster fans a message out to a user's connected devices.
type Broadcaster interface {
	BroadcastToUser(userID string, message *websocket.Message, excludeDeviceID string) error
}

type SyncService struct {
	store       repository.RecordStore
	locks       *KeyedMutex
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// NewSyncService builds the sync coordinator. locks must be shared with every
// other writer of store; broadcaster and logger may be nil.
func NewSyncService(
	store repository.RecordStore,
	locks *KeyedMutex,
	broadcaster Broadcaster,
	logger *slog.Logger,
) *SyncService {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		store:       store,
		locks:       locks,
		broadcaster: broadcaster,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Push applies a batch of changes in order and reports one outcome per
// change. Each change is read, resolved and written while holding the lock
// for its id. A store failure only affects the change that hit it.
func (s *SyncService) Push(ctx context.Context, userID, deviceID string, changes []domain.PushChange) []domain.PushOutcome {
	outcomes := make([]domain.PushOutcome, 0, len(changes))
	for i := range changes {
		change := &changes[i]

		outcome, decision, err := s.apply(ctx, change)
		if err != nil {
			s.logger.Error("push change failed", "note_id", change.ID, "error", err)
			outcomes = append(outcomes, domain.PushOutcome{
				ID:      change.ID,
				Status:  domain.PushStatusError,
				Message: err.Error(),
			})
			continue
		}

		s.logger.Debug("push change resolved", "note_id", change.ID, "decision", decision.Kind.String())
		outcomes = append(outcomes, outcome)
		notifyChange(s.broadcaster, s.logger, userID, deviceID, decision)
	}
	return outcomes
}

func (s *SyncService) apply(ctx context.Context, change *domain.PushChange) (domain.PushOutcome, Decision, error) {
	if err := ctx.Err(); err != nil {
		return domain.PushOutcome{}, Decision{}, err
	}

	unlock := s.locks.Lock(change.ID)
	defer unlock()

	existing, err := s.store.Get(ctx, change.ID)
	if errors.Is(err, repository.ErrNotFound) {
		existing = nil
	} else if err != nil {
		return domain.PushOutcome{}, Decision{}, err
	}

	decision := Resolve(existing, change, s.now())
	outcome := domain.PushOutcome{ID: change.ID}

	switch decision.Kind {
	case DecisionConflict:
		outcome.Status = domain.PushStatusConflict
		outcome.Message = "Server version has changed"
		return outcome, decision, nil

	case DecisionDelete:
		outcome.Status = domain.PushStatusDeleted
		if decision.Record == nil {
			return outcome, decision, nil
		}

	default:
		outcome.Status = domain.PushStatusUpdated
		outcome.Hash = decision.Record.ContentHash
	}

	if err := s.store.Put(ctx, decision.Record); err != nil {
		return domain.PushOutcome{}, Decision{}, err
	}
	updatedAt := decision.Record.UpdatedAt
	outcome.UpdatedAt = &updatedAt
	return outcome, decision, nil
}

// notifyChange tells the user's other devices about a persisted decision.
func notifyChange(b Broadcaster, logger *slog.Logger, userID, deviceID string, decision Decision) {
	if b == nil || decision.Record == nil {
		return
	}

	rec := decision.Record
	var (
		msg *websocket.Message
		err error
	)
	switch decision.Kind {
	case DecisionDelete:
		msg, err = websocket.NewMessage(websocket.TypeNoteDelete, &websocket.NoteDeletePayload{
			NoteID:    rec.ID,
			UpdatedAt: rec.UpdatedAt,
			DeviceID:  deviceID,
		})
	case DecisionCreate, DecisionApply:
		msg, err = websocket.NewMessage(websocket.TypeNoteUpdate, &websocket.NoteUpdatePayload{
			NoteID:    rec.ID,
			Hash:      rec.ContentHash,
			UpdatedAt: rec.UpdatedAt,
			DeviceID:  deviceID,
		})
	default:
		return
	}
	if err == nil {
		err = b.BroadcastToUser(userID, msg, deviceID)
	}
	if err != nil {
		logger.Warn("broadcast note change failed", "note_id", rec.ID, "error", err)
	}
}

// Pull returns every record changed strictly after since (all records when
// since is nil), oldest first. Live records whose body is missing from the
// store are left out and logged; any store error aborts the whole Pull.
func (s *SyncService) Pull(ctx context.Context, since *time.Time) ([]domain.SyncNote, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	notes := make([]domain.SyncNote, 0, len(records))
	var skipped []string
	for _, rec := range records {
		if since != nil && !rec.UpdatedAt.After(*since) {
			continue
		}

		tags := rec.Tags
		if tags == nil {
			tags = []string{}
		}
		title := rec.Title
		if title == "" {
			title = domain.DefaultTitle
		}

		if rec.Deleted {
			notes = append(notes, domain.SyncNote{
				ID:        rec.ID,
				Title:     title,
				Tags:      tags,
				UpdatedAt: rec.UpdatedAt,
				Deleted:   true,
			})
			continue
		}

		if rec.ContentMissing {
			skipped = append(skipped, rec.ID)
			continue
		}

		notes = append(notes, domain.SyncNote{
			ID:        rec.ID,
			Title:     title,
			Content:   rec.Content,
			Tags:      tags,
			UpdatedAt: rec.UpdatedAt,
			Hash:      rec.ContentHash,
		})
	}

	if len(skipped) > 0 {
		s.logger.Warn("pull skipped live notes with missing content",
			"skipped_inconsistent", len(skipped),
			"note_ids", skipped,
		)
	}

	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].UpdatedAt.Before(notes[j].UpdatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	return notes, nil
}
