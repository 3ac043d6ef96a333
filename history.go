package ardag

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

// DefaultPageSize is the number of entries requested per query page.
const DefaultPageSize = 100

// Scanner enumerates the ledger entries making up an owner's history.
type Scanner struct {
	backends []ledger.Querier

	// PageSize is the number of entries requested per page.
	// If zero, DefaultPageSize is used.
	PageSize int

	// Timeout, if positive, bounds an entire Scan across all backends and pages.
	Timeout time.Duration

	// Logf logs backend failures.
	// If nil, log.Printf is used.
	Logf func(string, ...interface{})
}

// NewScanner produces a Scanner querying the given backends.
// The first is the primary.
// The rest are fallbacks,
// tried in order when the ones before them fail (see ScanPages).
func NewScanner(backends ...ledger.Querier) (*Scanner, error) {
	if len(backends) == 0 {
		return nil, errors.New("no query backends")
	}
	for i, b := range backends {
		if b == nil {
			return nil, errors.Errorf("query backend %d is nil", i)
		}
	}
	return &Scanner{backends: backends}, nil
}

func (s *Scanner) logf(format string, args ...interface{}) {
	if s.Logf != nil {
		s.Logf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

// Scan calls f for each entry in owner's history,
// in the order the ledger's index produces them.
// Entries not authored by owner,
// or lacking the application marker,
// are never passed to f,
// and no entry is passed twice.
//
// Scan is lazy:
// pages are fetched only as f consumes entries.
// If f returns an error,
// Scan stops and returns that error,
// so callers can end a scan early with a sentinel of their own.
//
// If no backend can produce the first page,
// the result is ErrHistoryUnavailable.
// If a later page fails on every backend,
// the result is ErrHistoryIncomplete
// (the entries already passed to f remain valid).
// An owner with no history produces no calls to f and a nil error.
func (s *Scanner) Scan(ctx context.Context, owner ledger.Owner, f func(ledger.Entry) error) error {
	return s.ScanPages(ctx, owner, func(entries []ledger.Entry) error {
		for _, e := range entries {
			if err := f(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanPages is like Scan but calls f once per page of results,
// with the page's entries that pass Scan's filters.
// Pages with no such entries are not passed to f.
//
// Cursors belong to the backend that issued them.
// When the current backend fails,
// the next one starts over from the beginning of the history
// and serves the rest of the scan.
// Entries it repeats are dropped.
func (s *Scanner) ScanPages(ctx context.Context, owner ledger.Owner, f func([]ledger.Entry) error) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		seen    = make(map[string]struct{})
		pages   int
		backend int // index of the backend whose cursor q holds
	)

	q := ledger.Query{
		Owners: []ledger.Owner{owner},
		Tags:   []ledger.TagFilter{{Name: TagAppName, Values: []string{AppName}}},
		First:  pageSize,
	}

	for {
		page, err := s.page(ctx, q, &backend)
		if err != nil {
			if pages == 0 {
				return errors.Wrapf(ErrHistoryUnavailable, "querying history of %s: %s", owner, err)
			}
			return errors.Wrapf(ErrHistoryIncomplete, "querying history of %s after %d page(s): %s", owner, pages, err)
		}
		pages++

		var entries []ledger.Entry
		for _, e := range page.Entries {
			if e.Owner != owner {
				continue
			}
			if v, _ := e.Tag(TagAppName); v != AppName {
				continue
			}
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			entries = append(entries, e)
		}
		if len(entries) > 0 {
			if err = f(entries); err != nil {
				return err
			}
		}

		if !page.HasMore || len(page.Entries) == 0 {
			return nil
		}
		q.After = page.Cursor
	}
}

// Tries the backend at *cur with q,
// then each later backend in order from the beginning of the history,
// until one produces a page.
// The one that does becomes *cur.
// Returns the last error if none does.
func (s *Scanner) page(ctx context.Context, q ledger.Query, cur *int) (*ledger.Page, error) {
	var err error
	for i := *cur; i < len(s.backends); i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			break
		}
		if i > *cur {
			q.After = ""
		}
		var page *ledger.Page
		page, err = s.backends[i].Query(ctx, &q)
		if err == nil {
			*cur = i
			return page, nil
		}
		s.logf("query backend %d failed (cursor %q): %s", i, q.After, err)
	}
	return nil, err
}

// Entries collects owner's whole history.
// For ErrHistoryIncomplete,
// the entries gathered before the failure are returned together with the error.
func (s *Scanner) Entries(ctx context.Context, owner ledger.Owner) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	err := s.Scan(ctx, owner, func(e ledger.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if errors.Is(err, ErrHistoryIncomplete) {
		return entries, err
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}
