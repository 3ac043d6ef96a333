// Package logging implements a ledger that delegates everything to a nested ledger,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

var _ ledger.Ledger = &Ledger{}

type Ledger struct {
	l ledger.Ledger
}

func New(l ledger.Ledger) *Ledger {
	return &Ledger{l: l}
}

func (l *Ledger) Submit(ctx context.Context, tx *ledger.Tx) (string, error) {
	id, err := l.l.Submit(ctx, tx)
	if err != nil {
		log.Printf("ERROR in Submit (%d bytes, %d tags): %s", len(tx.Data), len(tx.Tags), err)
	} else {
		log.Printf("Submit %s (%d bytes, %d tags)", id, len(tx.Data), len(tx.Tags))
	}
	return id, err
}

func (l *Ledger) Fetch(ctx context.Context, id string) ([]byte, error) {
	data, err := l.l.Fetch(ctx, id)
	if err != nil {
		log.Printf("ERROR Fetch %s: %s", id, err)
	} else {
		log.Printf("Fetch %s: %d bytes", id, len(data))
	}
	return data, err
}

func (l *Ledger) Query(ctx context.Context, q *ledger.Query) (*ledger.Page, error) {
	page, err := l.l.Query(ctx, q)
	if err != nil {
		log.Printf("ERROR in Query (owners=%v, after=%q): %s", q.Owners, q.After, err)
	} else {
		log.Printf("Query (owners=%v, after=%q): %d entries, more=%v", q.Owners, q.After, len(page.Entries), page.HasMore)
	}
	return page, err
}

func init() {
	ledger.Register("logging", func(ctx context.Context, conf map[string]interface{}) (ledger.Ledger, error) {
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedLedger, err := ledger.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested ledger")
		}
		return New(nestedLedger), nil
	})
}
