package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/docgate/internal/infrastructure/database"
)

// IDField is the document key holding the document identifier.
const IDField = "_id"

// Change actions.
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// timeLayout is fixed-width so timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// collectionPattern restricts collection names to URL- and topic-safe
// characters.
var collectionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Sentinel errors for document operations.
var (
	ErrNotFound           = errors.New("document not found")
	ErrDuplicateID        = errors.New("document id already exists")
	ErrInvalidCollection  = errors.New("invalid collection name")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidDocument    = errors.New("invalid document")
)

// Document is a JSON object.
type Document map[string]any

// ID returns the document's "_id" value if it is a string.
func (d Document) ID() string {
	id, _ := d[IDField].(string) //nolint:errcheck // non-string ids read as empty
	return id
}

// Change describes a completed write.
type Change struct {
	Action     string     `json:"action"`
	Collection string     `json:"collection"`
	Count      int        `json:"count"`
	Data       []Document `json:"data"`
}

// Notifier receives changes after they are committed. Notify must not block.
type Notifier interface {
	Notify(change Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Change)

// Notify implements Notifier.
func (f NotifierFunc) Notify(c Change) { f(c) }

// Store is a SQLite-backed document store.
type Store struct {
	db        *sql.DB
	notifiers []Notifier
	now       func() time.Time
}

// NewStore creates a store over db. The documents migration must have run.
func NewStore(db *sql.DB, notifiers ...Notifier) *Store {
	return &Store{db: db, notifiers: notifiers, now: time.Now}
}

// AddNotifier registers n for subsequent changes. It is not safe to call
// concurrently with writes.
func (s *Store) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// ValidCollection reports whether name is an acceptable collection name.
func ValidCollection(name string) bool {
	return collectionPattern.MatchString(name)
}

// Collections returns all collection names, sorted.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collections: %w", err)
	}
	return names, nil
}

// CreateCollection creates an empty collection.
func (s *Store) CreateCollection(ctx context.Context, name string) error {
	if !ValidCollection(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, created_at) VALUES (?, ?)",
		name, s.timestamp())
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrCollectionExists
	}
	return nil
}

// DeleteCollection removes a collection and all of its documents. The
// removed documents are reported as one remove change.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	if !ValidCollection(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}

	var docs []Document
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if docs, err = findIn(ctx, tx, name, nil); err != nil {
			return err
		}
		// documents rows go with it through ON DELETE CASCADE
		res, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
		if err != nil {
			return fmt.Errorf("deleting collection: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
			return ErrCollectionNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(docs) > 0 {
		s.notify(Change{Action: ActionRemove, Collection: name, Count: len(docs), Data: docs})
	}
	return nil
}

// Find returns the documents in collection, oldest first, keeping those
// whose top-level fields equal every entry in filter. A nil filter
// matches everything. An unknown collection yields an empty result.
func (s *Store) Find(ctx context.Context, collection string, filter map[string]any) ([]Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	return findIn(ctx, s.db, collection, filter)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func findIn(ctx context.Context, q querier, collection string, filter map[string]any) ([]Document, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT body FROM documents WHERE collection = ? ORDER BY created_at ASC, id ASC", collection)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		if matches(doc, filter) {
			docs = append(docs, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Get returns a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", collection, id)
	return scanDocument(row)
}

// Insert stores doc in collection, creating the collection if needed.
// The stored document, including its "_id", is returned.
func (s *Store) Insert(ctx context.Context, collection string, doc Document) (Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	stored := cloneDocument(doc)
	if _, present := stored[IDField]; present && stored.ID() == "" {
		return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidDocument, IDField)
	}
	if stored.ID() == "" {
		stored[IDField] = uuid.NewString()
	}

	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	now := s.timestamp()
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO collections (name, created_at) VALUES (?, ?)", collection, now); err != nil {
			return fmt.Errorf("ensuring collection: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (collection, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			collection, stored.ID(), string(body), now, now); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateID
			}
			return fmt.Errorf("inserting document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Action: ActionInsert, Collection: collection, Count: 1, Data: []Document{stored}})
	return stored, nil
}

// Replace overwrites the document with the given id. The "_id" in doc is
// ignored; the stored document keeps id.
func (s *Store) Replace(ctx context.Context, collection, id string, doc Document) (Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	stored := cloneDocument(doc)
	stored[IDField] = id

	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?",
		string(body), s.timestamp(), collection, id)
	if err != nil {
		return nil, fmt.Errorf("replacing document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return nil, ErrNotFound
	}

	s.notify(Change{Action: ActionUpdate, Collection: collection, Count: 1, Data: []Document{stored}})
	return stored, nil
}

// Remove deletes the document with the given id and returns it.
func (s *Store) Remove(ctx context.Context, collection, id string) (Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	var doc Document
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		row := tx.QueryRowContext(ctx,
			"SELECT body FROM documents WHERE collection = ? AND id = ?", collection, id)
		if doc, err = scanDocument(row); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id); err != nil {
			return fmt.Errorf("removing document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Action: ActionRemove, Collection: collection, Count: 1, Data: []Document{doc}})
	return doc, nil
}

// Update sets the fields of patch on every document in collection that
// matches filter, leaving other fields alone, and returns the updated
// documents. An "_id" in patch is ignored. A nil filter matches everything.
func (s *Store) Update(ctx context.Context, collection string, filter map[string]any, patch Document) ([]Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	var updated []Document
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		docs, err := findIn(ctx, tx, collection, filter)
		if err != nil {
			return err
		}
		updated, err = s.applyPatch(ctx, tx, collection, docs, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(updated) > 0 {
		s.notify(Change{Action: ActionUpdate, Collection: collection, Count: len(updated), Data: updated})
	}
	return updated, nil
}

// Patch sets the fields of patch on the document with the given id.
func (s *Store) Patch(ctx context.Context, collection, id string, patch Document) (Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	var updated []Document
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT body FROM documents WHERE collection = ? AND id = ?", collection, id)
		doc, err := scanDocument(row)
		if err != nil {
			return err
		}
		updated, err = s.applyPatch(ctx, tx, collection, []Document{doc}, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Action: ActionUpdate, Collection: collection, Count: 1, Data: updated})
	return updated[0], nil
}

func (s *Store) applyPatch(ctx context.Context, tx *sql.Tx, collection string, docs []Document, patch Document) ([]Document, error) {
	now := s.timestamp()
	updated := make([]Document, 0, len(docs))
	for _, doc := range docs {
		merged := cloneDocument(doc)
		for k, v := range patch {
			if k != IDField {
				merged[k] = v
			}
		}
		body, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?",
			string(body), now, collection, doc.ID()); err != nil {
			return nil, fmt.Errorf("updating document: %w", err)
		}
		updated = append(updated, merged)
	}
	return updated, nil
}

// RemoveWhere deletes every document in collection that matches filter and
// returns them. The collection itself stays.
func (s *Store) RemoveWhere(ctx context.Context, collection string, filter map[string]any) ([]Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	var removed []Document
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if removed, err = findIn(ctx, tx, collection, filter); err != nil {
			return err
		}
		for _, doc := range removed {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND id = ?", collection, doc.ID()); err != nil {
				return fmt.Errorf("removing document: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(removed) > 0 {
		s.notify(Change{Action: ActionRemove, Collection: collection, Count: len(removed), Data: removed})
	}
	return removed, nil
}

func (s *Store) notify(c Change) {
	for _, n := range s.notifiers {
		n.Notify(c)
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (Document, error) {
	var body string
	if err := sc.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decoding stored document: %w", err)
	}
	return doc, nil
}

// matches compares filter values against doc after normalising both
// through JSON, so 3 and 3.0 are equal.
func matches(doc Document, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(normalise(got), normalise(want)) {
			return false
		}
	}
	return true
}

func normalise(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if json.Unmarshal(b, &out) != nil {
		return v
	}
	return out
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	return out
}
