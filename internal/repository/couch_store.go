package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"notes-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
)

const couchDocPrefix = "note:"

// couchNote is the CouchDB document shape of a NoteRecord.
type couchNote struct {
	DocID       string    `json:"_id"`
	Rev         string    `json:"_rev,omitempty"`
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Tags        []string  `json:"tags"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsDeleted   bool      `json:"is_deleted"`
}

func (d *couchNote) record() *domain.NoteRecord {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return &domain.NoteRecord{
		ID:          d.ID,
		Title:       d.Title,
		Tags:        tags,
		Content:     d.Content,
		ContentHash: d.ContentHash,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Deleted:     d.IsDeleted,
	}
}

// CouchStore keeps one document per note, keyed "note:<id>".
type CouchStore struct {
	client *kivik.Client
	dbName string
}

// OpenCouchDB connects to CouchDB and creates the database if needed.
func OpenCouchDB(ctx context.Context, url, dbName string) (*CouchStore, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, fmt.Errorf("connect to couchdb: %w", err)
	}

	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("create database %s: %w", dbName, err)
		}
	}

	return NewCouchStore(client, dbName), nil
}

func NewCouchStore(client *kivik.Client, dbName string) *CouchStore {
	return &CouchStore{
		client: client,
		dbName: dbName,
	}
}

func (r *CouchStore) Close() error {
	return r.client.Close()
}

func (r *CouchStore) fetch(ctx context.Context, id string) (*couchNote, error) {
	db := r.client.DB(r.dbName)

	var doc couchNote
	if err := db.Get(ctx, couchDocPrefix+id).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, storeErr("get", id, err)
	}
	return &doc, nil
}

func (r *CouchStore) Get(ctx context.Context, id string) (*domain.NoteRecord, error) {
	doc, err := r.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.record(), nil
}

// Put writes against the current revision. A revision conflict means a
// writer outside this process touched the note and is reported as a store
// failure.
func (r *CouchStore) Put(ctx context.Context, rec *domain.NoteRecord) error {
	doc := &couchNote{
		DocID:       couchDocPrefix + rec.ID,
		Type:        "note",
		ID:          rec.ID,
		Title:       rec.Title,
		Tags:        rec.Tags,
		Content:     rec.Content,
		ContentHash: rec.ContentHash,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		IsDeleted:   rec.Deleted,
	}

	existing, err := r.fetch(ctx, rec.ID)
	switch {
	case err == nil:
		doc.Rev = existing.Rev
	case !errors.Is(err, ErrNotFound):
		return err
	}

	db := r.client.DB(r.dbName)
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		return storeErr("put", rec.ID, err)
	}
	return nil
}

func (r *CouchStore) List(ctx context.Context) ([]*domain.NoteRecord, error) {
	db := r.client.DB(r.dbName)

	rows := db.AllDocs(ctx, kivik.Params(map[string]interface{}{
		"include_docs": true,
		"startkey":     couchDocPrefix,
		"endkey":       couchDocPrefix + "\ufff0",
	}))
	defer rows.Close()

	var out []*domain.NoteRecord
	for rows.Next() {
		var doc couchNote
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, storeErr("list", "", err)
		}
		if doc.Type != "note" || !strings.HasPrefix(doc.DocID, couchDocPrefix) {
			continue
		}
		out = append(out, doc.record())
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", "", err)
	}
	return out, nil
}
