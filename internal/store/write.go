package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/changeset"
	"github.com/roach88/docmap/internal/dirty"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/wire"
)

// Journal entry kinds.
const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

// Insert writes a NEW instance in full and returns its generated id.
// On success the instance becomes PERSISTED.
func (s *Store) Insert(ctx context.Context, m model.Model) (primitive.ObjectID, error) {
	state, err := dirty.StateOf(m)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: %w", err)
	}
	if state == dirty.StatePersisted {
		return primitive.NilObjectID, fmt.Errorf("insert: %w", ErrAlreadyPersisted)
	}
	t, err := s.mp.Registry().TypeOf(m)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: %w", err)
	}

	stored, err := s.mp.Deflate(m, true)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: %w", err)
	}
	plain, err := s.mp.Deflate(m, false)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: %w", err)
	}

	id := s.ids.NewID()
	stored = withID(stored, id)
	plain = withID(plain, id)

	body, err := marshalBody(stored)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	at := s.now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, revision, updated_at)
		VALUES (?, ?, ?, 1, ?)
	`, t.Collection(), id.Hex(), body, at)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: %w", err)
	}

	setKeys := wire.Keys(stored)[1:]
	if err := s.appendJournal(ctx, tx, t.Collection(), id, KindInsert, setKeys, nil, 1, at); err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert: commit: %w", err)
	}

	meta := m.Meta()
	meta.SetID(id)
	meta.SetSnapshot(plain)
	s.builder.ClearMarks(m)

	s.logger.Debug("document inserted", "collection", t.Collection(), "id", id.Hex(), "keys", len(setKeys))
	return id, nil
}

// Update writes the change set of a PERSISTED instance and returns it in
// plaintext form. An empty change set performs no write.
func (s *Store) Update(ctx context.Context, m model.Model) (*changeset.ChangeSet, error) {
	enc, err := s.builder.Build(m, true)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	plain, err := s.builder.Build(m, false)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if enc.Empty() {
		return plain, nil
	}

	t, err := s.mp.Registry().TypeOf(m)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	id, _ := m.Meta().ID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update: begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		body     []byte
		revision int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT body, revision FROM documents
		WHERE collection = ? AND id = ?
	`, t.Collection(), id.Hex()).Scan(&body, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update %s/%s: %w", t.Collection(), id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update: read current: %w", err)
	}

	current, err := unmarshalBody(body)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	next, err := marshalBody(changeset.Apply(current, enc))
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	revision++
	at := s.now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET body = ?, revision = ?, updated_at = ?
		WHERE collection = ? AND id = ?
	`, next, revision, at, t.Collection(), id.Hex())
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	if err := s.appendJournal(ctx, tx, t.Collection(), id, KindUpdate, enc.SetKeys(), enc.Unset, revision, at); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update: commit: %w", err)
	}

	meta := m.Meta()
	meta.SetSnapshot(changeset.Apply(meta.Snapshot(), plain))
	s.builder.ClearMarks(m)

	s.logger.Debug("document updated",
		"collection", t.Collection(), "id", id.Hex(), "revision", revision,
		"set", len(plain.Set), "unset", len(plain.Unset))
	return plain, nil
}

// Save inserts NEW instances and updates PERSISTED ones.
func (s *Store) Save(ctx context.Context, m model.Model) error {
	state, err := dirty.StateOf(m)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if state == dirty.StateNew {
		_, err = s.Insert(ctx, m)
		return err
	}
	_, err = s.Update(ctx, m)
	return err
}

// Delete removes a PERSISTED instance's document. On success the instance
// loses its id and snapshot and is NEW again.
func (s *Store) Delete(ctx context.Context, m model.Model) error {
	state, err := dirty.StateOf(m)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if state == dirty.StateNew {
		return fmt.Errorf("delete: %w", changeset.ErrNotPersisted)
	}
	t, err := s.mp.Registry().TypeOf(m)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	id, _ := m.Meta().ID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete: begin tx: %w", err)
	}
	defer tx.Rollback()

	var revision int64
	err = tx.QueryRowContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
		RETURNING revision
	`, t.Collection(), id.Hex()).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete %s/%s: %w", t.Collection(), id.Hex(), ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if err := s.appendJournal(ctx, tx, t.Collection(), id, KindDelete, nil, nil, revision+1, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete: commit: %w", err)
	}

	meta := m.Meta()
	meta.SetID(primitive.NilObjectID)
	meta.SetSnapshot(nil)
	s.builder.ClearMarks(m)
	return nil
}

func (s *Store) appendJournal(
	ctx context.Context,
	tx *sql.Tx,
	collection string,
	id primitive.ObjectID,
	kind string,
	setKeys, unsetKeys []string,
	revision, at int64,
) error {
	setJSON, err := marshalKeys(setKeys)
	if err != nil {
		return err
	}
	unsetJSON, err := marshalKeys(unsetKeys)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO journal (op_id, collection, doc_id, kind, set_keys, unset_keys, revision, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ops.NewOpID(), collection, id.Hex(), kind, setJSON, unsetJSON, revision, at)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// withID returns doc with the identity key first.
func withID(doc bson.D, id primitive.ObjectID) bson.D {
	out := make(bson.D, 0, len(doc)+1)
	out = append(out, bson.E{Key: wire.IDKey, Value: id})
	for _, e := range doc {
		if e.Key != wire.IDKey {
			out = append(out, e)
		}
	}
	return out
}
