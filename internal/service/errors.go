package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("note not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// ConflictError is returned by NoteService.Update when the caller's expected
// hash no longer matches the stored one.
type ConflictError struct {
	NoteID      string
	CurrentHash string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict detected on note %s", e.NoteID)
}
