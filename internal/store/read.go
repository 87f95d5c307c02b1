package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/model"
)

// Entry is one journal row.
type Entry struct {
	Seq        int64
	OpID       string
	Collection string
	DocID      string
	Kind       string
	SetKeys    []string
	UnsetKeys  []string
	Revision   int64
	At         time.Time
}

// Find loads and inflates the document with the given id.
func (s *Store) Find(ctx context.Context, tag string, id primitive.ObjectID) (model.Model, error) {
	t, err := s.mp.Registry().Lookup(tag)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	doc, err := s.Raw(ctx, t.Collection(), id)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	m, err := s.mp.Inflate(tag, doc)
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", t.Collection(), id.Hex(), err)
	}
	return m, nil
}

// FindAll loads every document of a type, ordered by id.
//
// Returns an empty slice (not nil) if the collection is empty.
func (s *Store) FindAll(ctx context.Context, tag string) ([]model.Model, error) {
	t, err := s.mp.Registry().Lookup(tag)
	if err != nil {
		return nil, fmt.Errorf("find all: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body FROM documents
		WHERE collection = ?
		ORDER BY id COLLATE BINARY ASC
	`, t.Collection())
	if err != nil {
		return nil, fmt.Errorf("find all: query: %w", err)
	}
	defer rows.Close()

	out := []model.Model{}
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("find all: scan: %w", err)
		}
		doc, err := unmarshalBody(body)
		if err != nil {
			return nil, fmt.Errorf("find all %s/%s: %w", t.Collection(), id, err)
		}
		m, err := s.mp.Inflate(tag, doc)
		if err != nil {
			return nil, fmt.Errorf("find all %s/%s: %w", t.Collection(), id, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find all: iterate: %w", err)
	}
	return out, nil
}

// Raw returns the storage-ready document as written, with encrypted fields
// still in ciphertext.
func (s *Store) Raw(ctx context.Context, collection string, id primitive.ObjectID) (bson.D, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM documents WHERE collection = ? AND id = ?
	`, collection, id.Hex()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return unmarshalBody(body)
}

// Revision returns the current revision of a document.
func (s *Store) Revision(ctx context.Context, collection string, id primitive.ObjectID) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `
		SELECT revision FROM documents WHERE collection = ? AND id = ?
	`, collection, id.Hex()).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s/%s: %w", collection, id.Hex(), ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}

// Journal returns the journal of a collection in write order.
//
// Returns an empty slice (not nil) if nothing was written.
func (s *Store) Journal(ctx context.Context, collection string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, op_id, collection, doc_id, kind, set_keys, unset_keys, revision, at
		FROM journal
		WHERE collection = ?
		ORDER BY seq ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                  Entry
		setJSON, unsetJSON string
		at                 int64
	)
	if err := rows.Scan(&e.Seq, &e.OpID, &e.Collection, &e.DocID, &e.Kind, &setJSON, &unsetJSON, &e.Revision, &at); err != nil {
		return Entry{}, fmt.Errorf("scan journal: %w", err)
	}
	var err error
	if e.SetKeys, err = unmarshalKeys(setJSON); err != nil {
		return Entry{}, err
	}
	if e.UnsetKeys, err = unmarshalKeys(unsetJSON); err != nil {
		return Entry{}, err
	}
	e.At = time.UnixMilli(at).UTC()
	return e, nil
}
