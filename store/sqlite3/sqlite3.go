// Package sqlite3 implements a blob store in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

var (
	_ ardag.HeadStore   = &Store{}
	_ ardag.MultiPutter = &Store{}
)

// Store is a Sqlite-based blob store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blobs` and `head` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  ref BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS head (
  id INTEGER PRIMARY KEY NOT NULL CHECK (id = 1),
  ref BLOB NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `blobs` and `head`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref ardag.Ref) (ardag.Blob, error) {
	const q = `SELECT data FROM blobs WHERE ref = $1`

	var b []byte
	err := s.db.QueryRowContext(ctx, q, ref).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, ardag.ErrNotFound
	}
	return b, errors.Wrapf(err, "getting blob %s", ref)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b ardag.Blob) (ardag.Ref, bool, error) {
	ref, added, err := put(ctx, s.db, b)
	return ref, added, err
}

type execer interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}

func put(ctx context.Context, db execer, b ardag.Blob) (ardag.Ref, bool, error) {
	const q = `INSERT INTO blobs (ref, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	data := []byte(b)
	if data == nil {
		data = []byte{} // a nil slice would be stored as NULL
	}

	ref := b.Ref()
	res, err := db.ExecContext(ctx, q, ref, data)
	if err != nil {
		return ardag.Ref{}, false, errors.Wrap(err, "inserting blob")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return ardag.Ref{}, false, errors.Wrap(err, "counting affected rows")
	}

	return ref, aff > 0, nil
}

// PutMulti adds multiple blobs to the store in a single transaction.
func (s *Store) PutMulti(ctx context.Context, blobs []ardag.Blob) (map[ardag.Ref]bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	result := make(map[ardag.Ref]bool, len(blobs))
	for _, b := range blobs {
		ref, added, err := put(ctx, tx, b)
		if err != nil {
			return nil, errors.Wrapf(err, "storing blob %s", b.Ref())
		}
		result[ref] = result[ref] || added
	}
	return result, errors.Wrap(tx.Commit(), "committing transaction")
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start ardag.Ref, f func(ardag.Ref) error) error {
	const q = `SELECT ref FROM blobs WHERE ref > $1 ORDER BY ref`
	return sqlutil.ForQueryRows(ctx, s.db, q, start, f)
}

// Head returns the current root.
func (s *Store) Head(ctx context.Context) (ardag.Ref, error) {
	const q = `SELECT ref FROM head WHERE id = 1`

	var ref ardag.Ref
	err := s.db.QueryRowContext(ctx, q).Scan(&ref)
	if stderrs.Is(err, sql.ErrNoRows) {
		return ardag.Zero, nil
	}
	return ref, errors.Wrap(err, "getting head")
}

// SetHead sets the current root.
func (s *Store) SetHead(ctx context.Context, ref ardag.Ref) error {
	const q = `INSERT INTO head (id, ref) VALUES (1, $1) ON CONFLICT (id) DO UPDATE SET ref = excluded.ref`
	_, err := s.db.ExecContext(ctx, q, ref)
	return errors.Wrap(err, "setting head")
}

// Delete removes the blob with hash `ref`.
// Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, ref ardag.Ref) error {
	const q = `DELETE FROM blobs WHERE ref = $1`
	_, err := s.db.ExecContext(ctx, q, ref)
	return errors.Wrapf(err, "deleting %s", ref)
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (ardag.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
