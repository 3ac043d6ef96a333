// Package lru implements a ledger.Ledger that caches entry payloads
// from a nested ledger in a least-recently-used cache.
// Payloads are immutable,
// so cached data never goes stale.
// Queries are not cached.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

var _ ledger.Ledger = &Ledger{}

// Ledger caches the payloads of a nested ledger.
type Ledger struct {
	c *lru.Cache // entry id -> []byte
	l ledger.Ledger
}

// New produces a new Ledger backed by `l` and caching up to `size` payloads.
func New(l ledger.Ledger, size int) (*Ledger, error) {
	c, err := lru.New(size)
	return &Ledger{c: c, l: l}, err
}

// Submit implements ledger.Submitter.
// The submitted data is cached under the new entry's id.
func (l *Ledger) Submit(ctx context.Context, tx *ledger.Tx) (string, error) {
	id, err := l.l.Submit(ctx, tx)
	if err != nil {
		return "", err
	}
	l.c.Add(id, tx.Data)
	return id, nil
}

// Fetch implements ledger.Fetcher.
func (l *Ledger) Fetch(ctx context.Context, id string) ([]byte, error) {
	if got, ok := l.c.Get(id); ok {
		return got.([]byte), nil
	}
	data, err := l.l.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	l.c.Add(id, data)
	return data, nil
}

// Query implements ledger.Querier.
func (l *Ledger) Query(ctx context.Context, q *ledger.Query) (*ledger.Page, error) {
	return l.l.Query(ctx, q)
}

func init() {
	ledger.Register("lru", func(ctx context.Context, conf map[string]interface{}) (ledger.Ledger, error) {
		var size int
		switch v := conf["size"].(type) {
		case int:
			size = v
		case float64: // from JSON
			size = int(v)
		default:
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedLedger, err := ledger.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested ledger")
		}
		return New(nestedLedger, size)
	})
}
