// Package sqlite3 implements a persistent local ledger in a Sqlite database.
// It is meant for development and testing,
// standing in for a real network the way a local test net would.
// Every accepted transaction is mined immediately into its own block.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"
	"strconv"
	"strings"
	"time"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
	"github.com/bobg/ardag/ledger/keys"
)

var _ ledger.Ledger = &Ledger{}

// Ledger is a Sqlite-based ledger.
type Ledger struct {
	db *sql.DB

	// Now supplies block timestamps.
	// If nil, time.Now is used.
	Now func() time.Time
}

// Schema is the SQL that New executes.
// It creates the `entries` and `tags` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
  height INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  owner TEXT NOT NULL,
  public_key BLOB NOT NULL,
  signature BLOB NOT NULL,
  data BLOB NOT NULL,
  at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS owner_idx ON entries (owner, height);

CREATE TABLE IF NOT EXISTS tags (
  height INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  name TEXT NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (height, seq)
);

CREATE INDEX IF NOT EXISTS tag_idx ON tags (name, value);
`

// New produces a new Ledger using `db` for storage.
// It expects to create tables `entries` and `tags`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Ledger, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Ledger{db: db}, errors.Wrap(err, "creating schema")
}

// Submit implements ledger.Submitter.
func (l *Ledger) Submit(ctx context.Context, tx *ledger.Tx) (string, error) {
	if err := keys.Verify(tx); err != nil {
		return "", errors.Wrap(ledger.ErrRejected, err.Error())
	}

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}

	dbtx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "beginning db transaction")
	}
	defer dbtx.Rollback()

	const q = `INSERT INTO entries (id, owner, public_key, signature, data, at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`
	res, err := dbtx.ExecContext(ctx, q, tx.ID, string(tx.Owner), tx.PublicKey, tx.Signature, tx.Data, now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", errors.Wrap(err, "inserting entry")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return "", errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		// Already accepted.
		return tx.ID, nil
	}
	height, err := res.LastInsertId()
	if err != nil {
		return "", errors.Wrap(err, "getting height")
	}

	const q2 = `INSERT INTO tags (height, seq, name, value) VALUES ($1, $2, $3, $4)`
	for i, tag := range tx.Tags {
		_, err = dbtx.ExecContext(ctx, q2, height, i, tag.Name, tag.Value)
		if err != nil {
			return "", errors.Wrapf(err, "inserting tag %s", tag.Name)
		}
	}

	return tx.ID, errors.Wrap(dbtx.Commit(), "committing db transaction")
}

// Fetch implements ledger.Fetcher.
func (l *Ledger) Fetch(ctx context.Context, id string) ([]byte, error) {
	const q = `SELECT data FROM entries WHERE id = $1`

	var data []byte
	err := l.db.QueryRowContext(ctx, q, id).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return data, errors.Wrapf(err, "fetching %s", id)
}

// Query implements ledger.Querier.
// Results are newest first.
// The cursor is the height of the last entry returned.
func (l *Ledger) Query(ctx context.Context, q *ledger.Query) (*ledger.Page, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.After != "" {
		h, err := strconv.ParseInt(q.After, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad cursor %q", q.After)
		}
		conds = append(conds, "e.height < "+arg(h))
	}
	if len(q.Owners) > 0 {
		var ps []string
		for _, o := range q.Owners {
			ps = append(ps, arg(string(o)))
		}
		conds = append(conds, "e.owner IN ("+strings.Join(ps, ", ")+")")
	}
	for _, f := range q.Tags {
		var ps []string
		for _, v := range f.Values {
			ps = append(ps, arg(v))
		}
		if len(ps) == 0 {
			return new(ledger.Page), nil
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM tags t WHERE t.height = e.height AND t.name = "+arg(f.Name)+" AND t.value IN ("+strings.Join(ps, ", ")+"))")
	}

	first := q.First
	if first <= 0 {
		first = 100
	}

	query := "SELECT e.height, e.id, e.owner, e.at FROM entries e"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.height DESC LIMIT " + arg(first+1)

	page := new(ledger.Page)
	scan := func(height int64, id, owner, atstr string) error {
		if len(page.Entries) == first {
			page.HasMore = true
			return nil
		}
		at, err := time.Parse(time.RFC3339Nano, atstr)
		if err != nil {
			return errors.Wrapf(err, "parsing time %s", atstr)
		}
		page.Entries = append(page.Entries, ledger.Entry{
			ID:        id,
			Owner:     ledger.Owner(owner),
			Height:    uint64(height),
			Timestamp: at,
		})
		page.Cursor = strconv.FormatInt(height, 10)
		return nil
	}
	err := sqlutil.ForQueryRows(ctx, l.db, query, append(args, scan)...)
	if err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}

	for i := range page.Entries {
		tags, err := l.tags(ctx, int64(page.Entries[i].Height))
		if err != nil {
			return nil, err
		}
		page.Entries[i].Tags = tags
	}

	return page, nil
}

func (l *Ledger) tags(ctx context.Context, height int64) ([]ledger.Tag, error) {
	const q = `SELECT name, value FROM tags WHERE height = $1 ORDER BY seq`

	var tags []ledger.Tag
	err := sqlutil.ForQueryRows(ctx, l.db, q, height, func(name, value string) {
		tags = append(tags, ledger.Tag{Name: name, Value: value})
	})
	return tags, errors.Wrapf(err, "querying tags at height %d", height)
}

func init() {
	ledger.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (ledger.Ledger, error) {
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
