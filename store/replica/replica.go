// Package replica implements a store that mirrors every write
// across a set of nested stores.
package replica

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

var _ ardag.HeadStore = (*Store)(nil)

// Store is a blob store that delegates reads and writes to two sets of nested stores.
// One set is synchronous:
// writes to all of these must succeed before a call to Put returns,
// and an error from any will cause Put to fail.
// The other set is asynchronous:
// a call to Put queues writes on these stores but does not wait for them to finish.
// However, if any asynchronous write encounters an error,
// the whole Store is put into an error state and further operations will fail.
//
// The head is kept in every synchronous store that is an ardag.HeadStore,
// and read from the first of them.
// If none is, the head is kept in memory.
// Asynchronous stores get blobs only.
type Store struct {
	sync   []ardag.Store
	async  []asyncChans
	cancel context.CancelFunc
	wg     sync.WaitGroup // async writers
	done   chan struct{}  // closed when the error watcher exits

	mu     sync.Mutex // protects the fields below
	err    error      // the error from an async goroutine, if any
	head   ardag.Ref  // when no sync store is a HeadStore
	closed bool
}

type asyncChans struct {
	blobs chan<- ardag.Blob
	errs  <-chan error
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// If there are any asynchronous stores,
// goroutines are launched for them,
// and canceling the given context object causes those to exit,
// placing the Store in an error state.
//
// Normally, writes to asynchronous stores do not block calls to Put,
// but the queue for each nested store has a fixed length given by n,
// which must be 1 or greater.
// If any async store falls too far behind,
// Put will block until all requests can be queued.
func New(ctx context.Context, sync []ardag.Store, async []ardag.Store, n int) (*Store, error) {
	if len(sync) == 0 {
		return nil, errors.New("no synchronous stores")
	}
	if n < 1 {
		return nil, errors.Errorf("queue length %d, must be 1 or greater", n)
	}

	result := &Store{sync: sync, done: make(chan struct{})}

	if len(async) > 0 {
		ctx, result.cancel = context.WithCancel(ctx)

		selectCases := make([]reflect.SelectCase, 1+len(async))

		for i, a := range async {
			var (
				blobs = make(chan ardag.Blob, n)
				errs  = make(chan error, 1)
			)

			result.async = append(result.async, asyncChans{blobs: blobs, errs: errs})

			selectCases[i].Dir = reflect.SelectRecv
			selectCases[i].Chan = reflect.ValueOf(errs)

			a := a
			result.wg.Add(1)
			go func() {
				defer result.wg.Done()
				runAsync(ctx, a, blobs, errs)
			}()
		}

		selectCases[len(async)].Dir = reflect.SelectRecv
		selectCases[len(async)].Chan = reflect.ValueOf(ctx.Done())

		go func() {
			defer close(result.done)
			_, errval, ok := reflect.Select(selectCases)
			if ok {
				result.cancel()
				result.setErr(errval.Interface().(error))
			}
		}()
	} else {
		close(result.done)
	}

	return result, nil
}

// Runs until blobs is closed, ctx is canceled, or an error occurs.
// Errors, including cancellation, are written to errs.
func runAsync(ctx context.Context, store ardag.Store, blobs <-chan ardag.Blob, errs chan<- error) {
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return

		case blob, ok := <-blobs:
			if !ok {
				return
			}
			_, _, err := store.Put(ctx, blob)
			if err != nil {
				errs <- errors.Wrapf(err, "storing blob %s", blob.Ref())
				return
			}
		}
	}
}

// Put implements ardag.Store.
// The blob is stored in all synchronous nested stores.
// An error from any of them causes Put to return an error.
//
// Some nested stores may already have the blob and others may not.
// The boolean result is true if any synchronous store newly added it.
//
// A request to write the blob is queued for any asynchronous nested stores.
// Normally this does not block the call to Put,
// but if any async store falls too far behind,
// Put must wait for space to open in its request queue before proceeding.
// The size of this queue is given by the int passed to New.
func (s *Store) Put(ctx context.Context, blob ardag.Blob) (ardag.Ref, bool, error) {
	if err := s.checkErr(); err != nil {
		return ardag.Zero, false, err
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		added   = make([]bool, len(s.sync))
	)
	for i, st := range s.sync {
		i, st := i, st
		g.Go(func() error {
			_, a, err := st.Put(gctx, blob)
			added[i] = a
			return err
		})
	}

	for _, a := range s.async {
		select {
		case <-ctx.Done():
			return ardag.Zero, false, ctx.Err()

		case a.blobs <- blob:
		}
	}

	if err := g.Wait(); err != nil {
		return ardag.Zero, false, errors.Wrap(err, "in synchronous store")
	}

	var newly bool
	for _, a := range added {
		newly = newly || a
	}
	return blob.Ref(), newly, nil
}

// Get implements ardag.Getter.
// It delegates the request to all of the synchronous stores in s,
// returning the result from the first one to respond without error
// and canceling the request to the others.
// If all synchronous stores respond with an error,
// the result is ErrNotFound if any of them reported that,
// or else one of the errors.
func (s *Store) Get(ctx context.Context, ref ardag.Ref) (ardag.Blob, error) {
	if err := s.checkErr(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		blob ardag.Blob
		err  error
	}
	ch := make(chan result, len(s.sync))
	for _, st := range s.sync {
		st := st
		go func() {
			blob, err := st.Get(ctx, ref)
			ch <- result{blob: blob, err: err}
		}()
	}

	var firstErr error
	for i := 0; i < len(s.sync); i++ {
		r := <-ch
		if r.err == nil {
			return r.blob, nil
		}
		if firstErr == nil || errors.Is(r.err, ardag.ErrNotFound) {
			firstErr = r.err
		}
	}
	return nil, firstErr
}

// ListRefs implements ardag.Getter.
// It delegates the request to all of the synchronous stores in s
// and synthesizes the result from the union of their refs.
func (s *Store) ListRefs(ctx context.Context, start ardag.Ref, f func(ardag.Ref) error) error {
	if err := s.checkErr(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	chans := make([]chan ardag.Ref, len(s.sync))
	for i, st := range s.sync {
		var (
			ch = make(chan ardag.Ref, 1)
			st = st
		)
		chans[i] = ch
		g.Go(func() error {
			defer close(ch)
			return st.ListRefs(gctx, start, func(ref ardag.Ref) error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case ch <- ref:
					return nil
				}
			})
		})
	}

	// The head of each listing, or nil when it is exhausted.
	next := make([]*ardag.Ref, len(chans))
	advance := func(i int) {
		if ref, ok := <-chans[i]; ok {
			next[i] = &ref
		} else {
			next[i] = nil
		}
	}
	for i := range chans {
		advance(i)
	}

	err := func() error {
		for {
			var best *ardag.Ref
			for _, ref := range next {
				if ref != nil && (best == nil || ref.Less(*best)) {
					best = ref
				}
			}
			if best == nil {
				return nil
			}
			ref := *best
			if err := f(ref); err != nil {
				return err
			}
			for i := range next {
				if next[i] != nil && *next[i] == ref {
					advance(i)
				}
			}
		}
	}()
	cancel()

	// Unblock any listing still waiting to send.
	for _, ch := range chans {
		go func(ch <-chan ardag.Ref) {
			for range ch {
			}
		}(ch)
	}
	gErr := g.Wait()
	if err != nil {
		return err
	}
	return gErr
}

// Head implements ardag.HeadStore.
func (s *Store) Head(ctx context.Context) (ardag.Ref, error) {
	if err := s.checkErr(); err != nil {
		return ardag.Zero, err
	}
	for _, st := range s.sync {
		if hs, ok := st.(ardag.HeadStore); ok {
			return hs.Head(ctx)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

// SetHead implements ardag.HeadStore.
func (s *Store) SetHead(ctx context.Context, ref ardag.Ref) error {
	if err := s.checkErr(); err != nil {
		return err
	}
	var found bool
	for _, st := range s.sync {
		if hs, ok := st.(ardag.HeadStore); ok {
			found = true
			if err := hs.SetHead(ctx, ref); err != nil {
				return errors.Wrapf(err, "setting head to %s", ref)
			}
		}
	}
	if !found {
		s.mu.Lock()
		s.head = ref
		s.mu.Unlock()
	}
	return nil
}

// Close waits for queued asynchronous writes to finish
// and shuts down their goroutines.
// It returns the error from any failed asynchronous write.
// The Store must not be used after Close.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	for _, a := range s.async {
		close(a.blobs)
	}
	s.wg.Wait()
	<-s.done

	err := s.checkErr()
	for _, a := range s.async {
		for e := range a.errs {
			if err == nil {
				err = errors.Wrap(e, "in async-store goroutine")
			}
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	return err
}

func (s *Store) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.err, "in async-store goroutine")
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (ardag.Store, error) {
		syncStores, err := nestedStores(ctx, conf, "sync")
		if err != nil {
			return nil, err
		}
		asyncStores, err := nestedStores(ctx, conf, "async")
		if err != nil {
			return nil, err
		}

		queueLen := 10
		switch v := conf["queuelen"].(type) {
		case int:
			queueLen = v
		case float64: // from JSON
			queueLen = int(v)
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, errors.Wrapf(err, "parsing queue length %v", v)
			}
			queueLen = int(n)
		}

		return New(ctx, syncStores, asyncStores, queueLen)
	})
}

func nestedStores(ctx context.Context, conf map[string]interface{}, key string) ([]ardag.Store, error) {
	items, _ := conf[key].([]interface{})
	var result []ardag.Store
	for _, item := range items {
		nested, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf(`"%s" item is not an object`, key)
		}
		s, err := store.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating nested %s store", key)
		}
		result = append(result, s)
	}
	return result, nil
}
