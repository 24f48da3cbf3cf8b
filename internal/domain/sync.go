package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMalformedTimestamp = errors.New("malformed timestamp")

// FieldState distinguishes a field the client did not send from one it sent
// empty.
type FieldState uint8

const (
	FieldUnset FieldState = iota
	FieldClear
	FieldSet
)

var jsonNull = []byte("null")

// OptionalString is a tri-state JSON string: absent or null is Unset, "" is
// Clear, anything else is Set.
type OptionalString struct {
	State FieldState
	Value string
}

func SetString(v string) OptionalString {
	if v == "" {
		return OptionalString{State: FieldClear}
	}
	return OptionalString{State: FieldSet, Value: v}
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonNull) {
		*o = OptionalString{}
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = SetString(v)
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.State == FieldUnset {
		return jsonNull, nil
	}
	return json.Marshal(o.Value)
}

// Resolve returns the value the field should take given the current one.
func (o OptionalString) Resolve(current, cleared string) string {
	switch o.State {
	case FieldSet:
		return o.Value
	case FieldClear:
		return cleared
	default:
		return current
	}
}

// OptionalTags is the tri-state counterpart of OptionalString for tag lists:
// absent or null is Unset, [] is Clear.
type OptionalTags struct {
	State FieldState
	Value []string
}

func SetTags(v []string) OptionalTags {
	if len(v) == 0 {
		return OptionalTags{State: FieldClear}
	}
	return OptionalTags{State: FieldSet, Value: append([]string(nil), v...)}
}

func (o *OptionalTags) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonNull) {
		*o = OptionalTags{}
		return nil
	}
	var v []string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = SetTags(v)
	return nil
}

func (o OptionalTags) MarshalJSON() ([]byte, error) {
	switch o.State {
	case FieldUnset:
		return jsonNull, nil
	case FieldClear:
		return []byte("[]"), nil
	}
	return json.Marshal(o.Value)
}

func (o OptionalTags) Resolve(current []string) []string {
	switch o.State {
	case FieldSet:
		return append([]string(nil), o.Value...)
	case FieldClear:
		return []string{}
	default:
		if current == nil {
			return []string{}
		}
		return append([]string(nil), current...)
	}
}

// PushChange is one client-side edit submitted through Push. OriginalHash is
// the OCC token: the hash the client last saw for ID. Hash is whatever the
// client computed for Content and is never trusted.
type PushChange struct {
	ID           string         `json:"id" validate:"required,max=200"`
	Content      string         `json:"content"`
	Hash         string         `json:"hash,omitempty"`
	OriginalHash string         `json:"originalHash"`
	Title        OptionalString `json:"title"`
	Tags         OptionalTags   `json:"tags"`
	Deleted      bool           `json:"deleted"`
	Undelete     bool           `json:"undelete"`
}

type PushRequest struct {
	Changes []PushChange `json:"changes" validate:"required,dive"`
}

type PushStatus string

const (
	PushStatusUpdated  PushStatus = "updated"
	PushStatusConflict PushStatus = "conflict"
	PushStatusDeleted  PushStatus = "deleted"
	// PushStatusError reports a store failure for a single change.
	PushStatusError PushStatus = "error"
)

type PushOutcome struct {
	ID        string     `json:"id"`
	Status    PushStatus `json:"status"`
	Hash      string     `json:"hash,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type PushResponse struct {
	Results []PushOutcome `json:"results"`
}

// SyncNote is the Pull view of a record. Tombstones carry empty content and
// hash.
type SyncNote struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updatedAt"`
	Hash      string    `json:"hash"`
	Deleted   bool      `json:"deleted"`
}

var cursorLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseCursor parses a Pull cursor. Zone-less values are read as UTC.
func ParseCursor(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range cursorLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}
