package testutil

import (
	"context"
	"errors"
	"testing"
	"testing/quick"

	"github.com/bobg/ardag"
)

// Multi checks ardag.PutMulti and ardag.GetMulti against a store,
// including the reporting of missing refs in an ardag.MultiErr.
func Multi(ctx context.Context, t *testing.T, s ardag.Store) {
	err := quick.Check(func(yesBlobs, noBlobs map[string]struct{}) bool {
		blobs := make([]ardag.Blob, 0, len(yesBlobs))
		for b := range yesBlobs {
			blobs = append(blobs, []byte(b))
		}

		refsMap, err := ardag.PutMulti(ctx, s, blobs)
		if err != nil {
			t.Log(err)
			return false
		}

		refs := make([]ardag.Ref, 0, len(refsMap))
		for ref := range refsMap {
			refs = append(refs, ref)
		}
		got, err := ardag.GetMulti(ctx, s, refs)
		if err != nil {
			t.Log(err)
			return false
		}
		for ref := range refsMap {
			if _, ok := got[ref]; !ok {
				t.Logf("ref %s missing after GetMulti", ref)
				return false
			}
		}
		for ref := range got {
			if _, ok := refsMap[ref]; !ok {
				t.Logf("got unexpected ref %s after GetMulti", ref)
				return false
			}
		}

		noRefs := make(map[ardag.Ref]string)
		for b := range noBlobs {
			ref := ardag.Blob(b).Ref()

			// The store persists across iterations,
			// so skip anything an earlier one added.
			present, err := ardag.Has(ctx, s, ref)
			if err != nil {
				t.Log(err)
				return false
			}
			if present {
				continue
			}
			noRefs[ref] = b
			refs = append(refs, ref)
		}

		if len(noRefs) == 0 {
			return true
		}

		got, err = ardag.GetMulti(ctx, s, refs)
		if err == nil {
			t.Log("got no error from second GetMulti, want MultiErr")
			return false
		}

		var merr ardag.MultiErr
		if !errors.As(err, &merr) {
			t.Logf("got %T error from second GetMulti, want MultiErr", err)
			return false
		}
		for ref, e := range merr {
			if _, ok := noRefs[ref]; !ok {
				t.Logf("got unexpected error for ref %s after second GetMulti", ref)
				return false
			}
			if !errors.Is(e, ardag.ErrNotFound) {
				t.Logf("got error %s for ref %s after second GetMulti, want %s", e, ref, ardag.ErrNotFound)
				return false
			}
		}
		for ref, noBlob := range noRefs {
			if _, ok := merr[ref]; !ok {
				t.Logf("ref %s missing from MultiErr after second GetMulti (blob %q)", ref, noBlob)
				return false
			}
		}
		for ref := range refsMap {
			if _, ok := got[ref]; !ok {
				t.Logf("ref %s missing after GetMulti", ref)
				return false
			}
		}
		for ref := range got {
			if _, ok := refsMap[ref]; !ok {
				t.Logf("got unexpected ref %s after GetMulti", ref)
				return false
			}
		}

		return true
	}, nil)
	if err != nil {
		t.Error(err)
	}
}
