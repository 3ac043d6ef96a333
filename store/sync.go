package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/ardag"
)

// Sync synchronizes two or more stores.
// It runs ListRefs on all input stores.
// When a ref is found to be in some but not all stores,
// its blob is added to the stores where it's missing.
// Since stores are additive,
// syncing replicas of the same owner's history leaves each holding the union.
// Heads are not synchronized.
func Sync(ctx context.Context, stores []ardag.Store) error {
	if len(stores) < 2 {
		return nil
	}

	type tuple struct {
		s   ardag.Store
		ch  <-chan ardag.Ref
		ref *ardag.Ref
	}

	eg, ctx2 := errgroup.WithContext(ctx)

	tuples := make([]*tuple, 0, len(stores))
	for _, s := range stores {
		s := s
		ch := make(chan ardag.Ref)
		eg.Go(func() error {
			defer close(ch)
			return s.ListRefs(ctx2, ardag.Zero, func(ref ardag.Ref) error {
				select {
				case <-ctx2.Done():
					return ctx2.Err()
				case ch <- ref:
				}
				return nil
			})
		})
		tuples = append(tuples, &tuple{s: s, ch: ch})
	}

	// Advances each of the given tuples to its next ref.
	// A nil ref means the tuple's listing is done.
	advance := func(tups []*tuple) error {
		for _, tup := range tups {
			select {
			case <-ctx2.Done():
				return ctx2.Err()
			case ref, ok := <-tup.ch:
				if ok {
					tup.ref = &ref
				} else {
					tup.ref = nil
				}
			}
		}
		return nil
	}

	err := func() error {
		havers := tuples
		for {
			if err := advance(havers); err != nil {
				return err
			}

			sort.Slice(tuples, func(i, j int) bool {
				ri := tuples[i].ref
				rj := tuples[j].ref
				if ri != nil {
					if rj != nil {
						return ri.Less(*rj)
					}
					return true
				}
				return false
			})

			if tuples[0].ref == nil {
				// We've reached the end of input on all channels.
				return nil
			}

			ref := *(tuples[0].ref)

			havers = []*tuple{tuples[0]}
			i := 1
			for i < len(tuples) && tuples[i].ref != nil && *(tuples[i].ref) == ref {
				havers = append(havers, tuples[i])
				i++
			}

			if i == len(tuples) {
				continue
			}

			needers := tuples[i:]

			blob, err := havers[0].s.Get(ctx2, ref)
			if err != nil {
				return errors.Wrapf(err, "getting blob for %s", ref)
			}

			for _, tup := range needers {
				if _, _, err = tup.s.Put(ctx2, blob); err != nil {
					return errors.Wrapf(err, "storing blob for %s", ref)
				}
			}
		}
	}()

	if err != nil {
		// Unblock any listing still waiting to send.
		for _, tup := range tuples {
			go func(ch <-chan ardag.Ref) {
				for range ch {
				}
			}(tup.ch)
		}
		if egErr := eg.Wait(); egErr != nil {
			return egErr
		}
		return err
	}
	return eg.Wait()
}
