// Package mem implements an in-memory ledger.
package mem

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
	"github.com/bobg/ardag/ledger/keys"
)

var _ ledger.Ledger = &Ledger{}

// Ledger is a memory-based ledger.
// Every accepted transaction is mined immediately into its own block,
// so heights are 1, 2, 3, ... in submission order.
// Queries return the newest entries first.
type Ledger struct {
	// Now supplies block timestamps.
	// If nil, time.Now is used.
	Now func() time.Time

	mu      sync.Mutex
	entries []ledger.Entry // in submission order
	data    map[string][]byte
}

// New produces a new, empty Ledger.
func New() *Ledger {
	return &Ledger{data: make(map[string][]byte)}
}

// Submit implements ledger.Submitter.
// Transactions must carry a valid signature.
// Resubmitting an accepted transaction is a no-op.
func (l *Ledger) Submit(_ context.Context, tx *ledger.Tx) (string, error) {
	if err := keys.Verify(tx); err != nil {
		return "", errors.Wrap(ledger.ErrRejected, err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.data[tx.ID]; ok {
		return tx.ID, nil
	}

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}

	l.entries = append(l.entries, ledger.Entry{
		ID:        tx.ID,
		Owner:     tx.Owner,
		Tags:      append([]ledger.Tag(nil), tx.Tags...),
		Height:    uint64(len(l.entries) + 1),
		Timestamp: now().UTC(),
	})
	l.data[tx.ID] = append([]byte(nil), tx.Data...)

	return tx.ID, nil
}

// Fetch implements ledger.Fetcher.
func (l *Ledger) Fetch(_ context.Context, id string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.data[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return b, nil
}

// Query implements ledger.Querier.
// The cursor is the height of the last entry returned.
func (l *Ledger) Query(ctx context.Context, q *ledger.Query) (*ledger.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := len(l.entries)
	if q.After != "" {
		h, err := strconv.Atoi(q.After)
		if err != nil || h < 1 || h > len(l.entries)+1 {
			return nil, errors.Errorf("bad cursor %q", q.After)
		}
		start = h - 1
	}

	first := q.First
	if first <= 0 {
		first = 100
	}

	page := new(ledger.Page)
	for i := start - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := l.entries[i]
		if !q.Matches(e) {
			continue
		}
		if len(page.Entries) == first {
			page.HasMore = true
			break
		}
		page.Entries = append(page.Entries, e)
		page.Cursor = strconv.FormatUint(e.Height, 10)
	}
	return page, nil
}

func init() {
	ledger.Register("mem", func(context.Context, map[string]interface{}) (ledger.Ledger, error) {
		return New(), nil
	})
}
