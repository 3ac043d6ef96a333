// Package pg implements a blob store in a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

var (
	_ ardag.HeadStore   = &Store{}
	_ ardag.MultiGetter = &Store{}
)

// Store is a Postgresql-based blob store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blobs` and `head` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  ref BYTEA PRIMARY KEY NOT NULL,
  data BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS head (
  id INTEGER PRIMARY KEY NOT NULL CHECK (id = 1),
  ref BYTEA NOT NULL
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

	var result []byte
	err := s.db.QueryRowContext(ctx, q, ref).Scan(&result)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, ardag.ErrNotFound
	}
	return result, errors.Wrapf(err, "getting blob %s", ref)
}

// GetMulti gets multiple blobs in one query.
// Missing refs are reported in an ardag.MultiErr.
func (s *Store) GetMulti(ctx context.Context, refs []ardag.Ref) (map[ardag.Ref]ardag.Blob, error) {
	const q = `SELECT ref, data FROM blobs WHERE ref = ANY($1)`

	keys := make([][]byte, 0, len(refs))
	for _, ref := range refs {
		ref := ref
		keys = append(keys, ref[:])
	}

	result := make(map[ardag.Ref]ardag.Blob)
	err := sqlutil.ForQueryRows(ctx, s.db, q, pq.ByteaArray(keys), func(ref ardag.Ref, data []byte) {
		result[ref] = data
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying blobs")
	}

	var errmap ardag.MultiErr
	for _, ref := range refs {
		if _, ok := result[ref]; ok {
			continue
		}
		if errmap == nil {
			errmap = make(ardag.MultiErr)
		}
		errmap[ref] = ardag.ErrNotFound
	}
	if errmap != nil {
		return result, errmap
	}
	return result, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b ardag.Blob) (ardag.Ref, bool, error) {
	const q = `INSERT INTO blobs (ref, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	data := []byte(b)
	if data == nil {
		data = []byte{} // a nil slice would be stored as NULL
	}

	ref := b.Ref()
	res, err := s.db.ExecContext(ctx, q, ref, data)
	if err != nil {
		return ardag.Ref{}, false, errors.Wrap(err, "inserting blob")
	}

	aff, err := res.RowsAffected()
	return ref, aff > 0, errors.Wrap(err, "counting affected rows")
}

// ListRefs produces all blob refs in the store, in lexical order.
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

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (ardag.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
