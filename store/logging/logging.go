// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"fmt"
	"log"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

var _ ardag.HeadStore = &Store{}

type Store struct {
	s ardag.HeadStore
}

func New(s ardag.HeadStore) *Store {
	return &Store{s: s}
}

func (s *Store) Get(ctx context.Context, ref ardag.Ref) (ardag.Blob, error) {
	b, err := s.s.Get(ctx, ref)
	if err != nil {
		log.Printf("ERROR Get %s: %s", ref, err)
	} else {
		log.Printf("Get %s", ref)
	}
	return b, err
}

func (s *Store) ListRefs(ctx context.Context, start ardag.Ref, f func(ardag.Ref) error) error {
	log.Printf("ListRefs, start=%s", start)
	return s.s.ListRefs(ctx, start, func(ref ardag.Ref) error {
		err := f(ref)
		if err != nil {
			log.Printf("  ERROR in ListRefs: %s: %s", ref, err)
		} else {
			log.Printf("  ListRefs: %s", ref)
		}
		return err
	})
}

func (s *Store) Put(ctx context.Context, b ardag.Blob) (ardag.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		log.Printf("ERROR in Put: %s", err)
	} else {
		log.Printf("Put %s, added=%v", ref, added)
	}
	return ref, added, err
}

func (s *Store) Head(ctx context.Context) (ardag.Ref, error) {
	ref, err := s.s.Head(ctx)
	if err != nil {
		log.Printf("ERROR in Head: %s", err)
	} else {
		log.Printf("Head: %s", ref)
	}
	return ref, err
}

func (s *Store) SetHead(ctx context.Context, ref ardag.Ref) error {
	err := s.s.SetHead(ctx, ref)
	if err != nil {
		log.Printf("ERROR in SetHead(%s): %s", ref, err)
	} else {
		log.Printf("SetHead(%s)", ref)
	}
	return err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (ardag.Store, error) {
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedStore, err := store.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		if hs, ok := nestedStore.(ardag.HeadStore); ok {
			return New(hs), nil
		}
		return nil, fmt.Errorf("nested store is a %T and not an ardag.HeadStore", nestedStore)
	})
}
