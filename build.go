package ardag

import (
	"context"
	"log"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bobg/ardag/ledger"
)

// DefaultConcurrency is the number of entries a Builder fetches at once.
const DefaultConcurrency = 8

// Builder reconstructs a local replica of an owner's history.
type Builder struct {
	scanner *Scanner
	fetcher ledger.Fetcher

	// Concurrency bounds the number of entries fetched and decoded at once.
	// If zero, DefaultConcurrency is used.
	Concurrency int

	// Logf logs skipped entries.
	// If nil, log.Printf is used.
	Logf func(string, ...interface{})
}

// BuildResult is the outcome of Builder.Build.
type BuildResult struct {
	// Root is the root id of the current snapshot,
	// the one from the newest imported entry.
	Root Ref

	// Entry is the ledger entry that supplied Root.
	Entry ledger.Entry

	// Imported is the number of entries whose archives were imported.
	Imported int

	// Skipped is the number of entries that could not be fetched or decoded.
	Skipped int

	// Blocks is the number of blocks newly added to the destination store.
	Blocks int
}

// NewBuilder produces a Builder that finds entries with scanner
// and gets their payloads with fetcher.
func NewBuilder(scanner *Scanner, fetcher ledger.Fetcher) (*Builder, error) {
	if scanner == nil {
		return nil, errors.New("no scanner")
	}
	if fetcher == nil {
		return nil, errors.New("no fetcher")
	}
	return &Builder{scanner: scanner, fetcher: fetcher}, nil
}

func (b *Builder) logf(format string, args ...interface{}) {
	if b.Logf != nil {
		b.Logf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

// Build imports every archive in owner's history into dest.
// Importing is additive and idempotent,
// so the contents of dest do not depend on the order in which entries arrive.
//
// Entries whose payloads cannot be fetched or decoded are logged and skipped.
// The current root is taken from the newest imported entry in ledger order
// (see ledger.Entry.Newer),
// ties going to the entry the scan produced first.
// If dest is a HeadStore its head is set to that root.
//
// An owner with no importable entries produces ErrNotFound.
// If the history could not be queried at all the error wraps ErrHistoryUnavailable.
// If it was truncated by a query failure,
// Build returns the result for the entries it did import
// together with an error wrapping ErrHistoryIncomplete.
func (b *Builder) Build(ctx context.Context, owner ledger.Owner, dest Store) (*BuildResult, error) {
	conc := b.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}

	type imported struct {
		entry ledger.Entry
		root  Ref
	}

	sem := semaphore.NewWeighted(int64(conc))
	eg, ectx := errgroup.WithContext(ctx)

	// Protects the variables below.
	// Also serializes imports into dest.
	var mu sync.Mutex

	var (
		results []*imported
		skipped int
		nblocks int
		scanErr error
	)

	eg.Go(func() error {
		var idx int
		err := b.scanner.Scan(ectx, owner, func(e ledger.Entry) error {
			i := idx
			idx++

			mu.Lock()
			results = append(results, nil)
			mu.Unlock()

			if err := sem.Acquire(ectx, 1); err != nil {
				return err
			}
			eg.Go(func() error {
				defer sem.Release(1)

				a, err := LoadEntry(ectx, b.fetcher, e)
				if errors.Is(err, ErrPayloadFetch) || errors.Is(err, ErrDecode) {
					b.logf("skipping entry %s: %s", e.ID, err)
					mu.Lock()
					skipped++
					mu.Unlock()
					return nil
				}
				if err != nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()

				n, err := a.Import(ectx, dest)
				if err != nil {
					return errors.Wrapf(err, "importing entry %s", e.ID)
				}
				nblocks += n
				results[i] = &imported{entry: e, root: a.Root}
				return nil
			})
			return nil
		})
		if errors.Is(err, ErrHistoryIncomplete) {
			mu.Lock()
			scanErr = err
			mu.Unlock()
			return nil
		}
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var (
		best *imported
		res  = &BuildResult{Skipped: skipped, Blocks: nblocks}
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		res.Imported++
		if best == nil || r.entry.Newer(best.entry) {
			best = r
		}
	}
	if best == nil {
		if scanErr != nil {
			return nil, scanErr
		}
		return nil, errors.Wrapf(ErrNotFound, "no importable history for %s", owner)
	}
	res.Root, res.Entry = best.root, best.entry

	if hs, ok := dest.(HeadStore); ok {
		if err := hs.SetHead(ctx, res.Root); err != nil {
			return nil, errors.Wrapf(err, "setting head to %s", res.Root)
		}
	}

	return res, scanErr
}
