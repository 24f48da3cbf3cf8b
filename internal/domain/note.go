package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const DefaultTitle = "Untitled"

// NoteRecord is the server-side state of one note identifier. A record is
// never physically removed; Deleted marks a tombstone.
type NoteRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Tags        []string  `json:"tags"`
	Content     string    `json:"content"`
	ContentHash string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Deleted     bool      `json:"deleted"`

	// ContentMissing is set by stores that keep the body apart from the
	// metadata when the body could not be found. It is never persisted.
	ContentMissing bool `json:"-"`
}

// Clone returns a deep copy so callers can mutate it without touching the
// stored value.
func (n *NoteRecord) Clone() *NoteRecord {
	if n == nil {
		return nil
	}
	c := *n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	return &c
}

// HashContent returns the hex SHA-256 digest of content. It is the only way a
// content hash is ever produced; client-supplied hashes are ignored.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

type CreateNoteRequest struct {
	Title   string   `json:"title" validate:"max=500"`
	Content string   `json:"content"`
	Tags    []string `json:"tags" validate:"max=100,dive,max=100"`
}

// UpdateNoteRequest carries a partial update; nil fields keep their value.
// When ExpectedHash is set the update only applies if it matches the stored
// hash.
type UpdateNoteRequest struct {
	Title        *string   `json:"title" validate:"omitempty,max=500"`
	Content      *string   `json:"content"`
	Tags         *[]string `json:"tags" validate:"omitempty,max=100,dive,max=100"`
	ExpectedHash *string   `json:"expectedHash"`
}

type NoteResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Hash      string    `json:"hash"`
	Deleted   bool      `json:"deleted"`
}

func NewNoteResponse(n *NoteRecord) *NoteResponse {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return &NoteResponse{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Tags:      tags,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		Hash:      n.ContentHash,
		Deleted:   n.Deleted,
	}
}
