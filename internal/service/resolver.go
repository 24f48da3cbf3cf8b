package service

import (
	"time"

	"notes-sync-server/internal/domain"
)

type DecisionKind int

const (
	DecisionCreate DecisionKind = iota
	DecisionApply
	DecisionConflict
	DecisionDelete
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionCreate:
		return "create"
	case DecisionApply:
		return "apply"
	case DecisionConflict:
		return "conflict"
	case DecisionDelete:
		return "delete"
	}
	return "unknown"
}

// Decision is the outcome of resolving one PushChange. Record is the state
// to persist; it is nil for Conflict and for a Delete of an unknown id.
type Decision struct {
	Kind   DecisionKind
	Record *domain.NoteRecord
}

// Resolve decides what a PushChange does to the current record. It never
// fails and has no side effects; existing is not modified.
//
// Deletion wins unconditionally and is not OCC-guarded. An unknown id is
// created regardless of OriginalHash. Otherwise the change applies only when
// OriginalHash is empty or equals the stored hash. An undelete request only
// takes effect together with an applied update.
func Resolve(existing *domain.NoteRecord, change *domain.PushChange, now time.Time) Decision {
	if change.Deleted {
		if existing == nil {
			return Decision{Kind: DecisionDelete}
		}
		rec := existing.Clone()
		rec.Deleted = true
		rec.UpdatedAt = nextUpdatedAt(existing.UpdatedAt, now)
		return Decision{Kind: DecisionDelete, Record: rec}
	}

	if existing == nil {
		return Decision{
			Kind: DecisionCreate,
			Record: &domain.NoteRecord{
				ID:          change.ID,
				Title:       change.Title.Resolve(domain.DefaultTitle, domain.DefaultTitle),
				Tags:        change.Tags.Resolve(nil),
				Content:     change.Content,
				ContentHash: domain.HashContent(change.Content),
				CreatedAt:   now,
				UpdatedAt:   now,
			},
		}
	}

	working := existing.Clone()
	if change.Undelete {
		working.Deleted = false
	}

	if change.OriginalHash != "" && working.ContentHash != change.OriginalHash {
		// working, including a tentative undelete, is discarded.
		return Decision{Kind: DecisionConflict}
	}

	working.Content = change.Content
	working.ContentHash = domain.HashContent(change.Content)
	working.Title = change.Title.Resolve(existing.Title, domain.DefaultTitle)
	working.Tags = change.Tags.Resolve(existing.Tags)
	working.UpdatedAt = nextUpdatedAt(existing.UpdatedAt, now)
	working.Deleted = false
	working.ContentMissing = false
	return Decision{Kind: DecisionApply, Record: working}
}

// nextUpdatedAt keeps UpdatedAt strictly increasing even if the clock steps
// back, so the mutation stays visible to a Pull at the previous value.
func nextUpdatedAt(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}
