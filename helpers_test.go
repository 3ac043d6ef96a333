package ardag_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"

	. "github.com/bobg/ardag"
	"github.com/bobg/ardag/ledger"
	"github.com/bobg/ardag/ledger/keys"
	ledgermem "github.com/bobg/ardag/ledger/mem"
	"github.com/bobg/ardag/store/mem"
	"github.com/bobg/ardag/testutil"
)

// One owner writing to a shared ledger.
type writer struct {
	key   *keys.Key
	store *mem.Store
	w     *Writer
}

func newWriter(t *testing.T, l ledger.Ledger, seed byte) *writer {
	t.Helper()

	key := testutil.Key(t, seed)
	pub, err := NewPublisher(key, l)
	if err != nil {
		t.Fatal(err)
	}
	s := mem.New()
	w, err := NewWriter(s, pub, Zero)
	if err != nil {
		t.Fatal(err)
	}
	return &writer{key: key, store: s, w: w}
}

func (w *writer) owner() ledger.Owner {
	return w.key.Owner()
}

func (w *writer) save(ctx context.Context, t *testing.T, values map[string]string) *Save {
	t.Helper()

	blobs := make(map[string]Blob, len(values))
	for tag, val := range values {
		blobs[tag] = Blob(val)
	}
	res, err := w.w.Save(ctx, blobs)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func newScanner(t *testing.T, backends ...ledger.Querier) *Scanner {
	t.Helper()

	s, err := NewScanner(backends...)
	if err != nil {
		t.Fatal(err)
	}
	s.Logf = t.Logf
	return s
}

func newBuilder(t *testing.T, f ledger.Fetcher, backends ...ledger.Querier) *Builder {
	t.Helper()

	b, err := NewBuilder(newScanner(t, backends...), f)
	if err != nil {
		t.Fatal(err)
	}
	b.Logf = t.Logf
	return b
}

func newResolver(t *testing.T, f ledger.Fetcher, backends ...ledger.Querier) *Resolver {
	t.Helper()

	r, err := NewResolver(newScanner(t, backends...), f)
	if err != nil {
		t.Fatal(err)
	}
	r.Logf = t.Logf
	return r
}

func newLedger() *ledgermem.Ledger {
	return ledgermem.New()
}

// A Querier serving a fixed list of entries in the given order,
// paginated by position.
type staticQuerier struct {
	entries []ledger.Entry
}

func (s staticQuerier) Query(_ context.Context, q *ledger.Query) (*ledger.Page, error) {
	var start int
	if q.After != "" {
		n, err := strconv.Atoi(q.After)
		if err != nil {
			return nil, errors.Wrapf(err, "bad cursor %s", q.After)
		}
		start = n
	}
	first := q.First
	if first <= 0 {
		first = len(s.entries)
	}
	end := start + first
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return &ledger.Page{
		Entries: s.entries[start:end],
		Cursor:  strconv.Itoa(end),
		HasMore: end < len(s.entries),
	}, nil
}

var errOffline = errors.New("offline")

// A Querier that always fails.
type failingQuerier struct{}

func (failingQuerier) Query(context.Context, *ledger.Query) (*ledger.Page, error) {
	return nil, errOffline
}

// A Querier that serves the first page from a nested Querier and fails on later ones.
type firstPageOnly struct {
	q ledger.Querier
}

func (f firstPageOnly) Query(ctx context.Context, q *ledger.Query) (*ledger.Page, error) {
	if q.After != "" {
		return nil, errOffline
	}
	return f.q.Query(ctx, q)
}

// A Querier whose cursors only it understands.
// It serves the first page from a nested Querier and fails on later ones.
type ownCursors struct {
	q ledger.Querier
}

func (o ownCursors) Query(ctx context.Context, q *ledger.Query) (*ledger.Page, error) {
	if q.After != "" {
		return nil, errOffline
	}
	page, err := o.q.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	mine := *page
	mine.Cursor = "own:" + page.Cursor
	return &mine, nil
}

// A Querier counting the calls to a nested Querier.
type countingQuerier struct {
	q ledger.Querier

	mu sync.Mutex
	n  int
}

func (c *countingQuerier) Query(ctx context.Context, q *ledger.Query) (*ledger.Page, error) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return c.q.Query(ctx, q)
}

func (c *countingQuerier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// A Submitter that always fails.
type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, *ledger.Tx) (string, error) {
	return "", errors.Wrap(ledger.ErrRejected, "insufficient funds")
}

// Lists every ref in g.
func allRefs(ctx context.Context, t *testing.T, g Getter) []Ref {
	t.Helper()

	var refs []Ref
	err := g.ListRefs(ctx, Zero, func(ref Ref) error {
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return refs
}
