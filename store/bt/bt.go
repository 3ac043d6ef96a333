// Package bt implements a blob store on Google Cloud Bigtable.
package bt

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigtable"
	"google.golang.org/api/option"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

var (
	_ ardag.HeadStore   = &Store{}
	_ ardag.MultiGetter = &Store{}
)

// Store is a Google Cloud Bigtable-backed implementation of ardag.HeadStore.
// Blobs live in rows keyed "b:<hex ref>".
// The head is a single row whose cell versions record every SetHead.
type Store struct {
	t *bigtable.Table
}

// Column families (and their single columns)
// that the table must have.
const (
	BlobFamily = "blob"
	HeadFamily = "head"

	blobcol = "blob"
	headcol = "ref"
	headrow = "head"
)

// New produces a new Store.
// The table must have the column families BlobFamily and HeadFamily.
func New(t *bigtable.Table) *Store {
	return &Store{t: t}
}

// Get implements ardag.Getter.
func (s *Store) Get(ctx context.Context, ref ardag.Ref) (ardag.Blob, error) {
	row, err := s.t.ReadRow(ctx, blobKey(ref), bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrapf(err, "reading row %s", ref)
	}
	items := row[BlobFamily]
	if len(items) == 0 {
		return nil, ardag.ErrNotFound
	}
	return ardag.Blob(items[0].Value), nil
}

// GetMulti implements ardag.MultiGetter.
// Refs not in the store are reported in a MultiErr.
func (s *Store) GetMulti(ctx context.Context, refs []ardag.Ref) (map[ardag.Ref]ardag.Blob, error) {
	if len(refs) == 0 {
		return map[ardag.Ref]ardag.Blob{}, nil
	}
	rowKeys := make(bigtable.RowList, len(refs))
	for i, ref := range refs {
		rowKeys[i] = blobKey(ref)
	}

	var (
		result   = make(map[ardag.Ref]ardag.Blob)
		innerErr error
	)
	err := s.t.ReadRows(ctx, rowKeys, func(row bigtable.Row) bool {
		key := row.Key()
		ref, err := refFromKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "extracting ref from key %s", key)
			return false
		}
		if items := row[BlobFamily]; len(items) > 0 {
			result[ref] = ardag.Blob(items[0].Value)
		}
		return true
	}, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}
	if innerErr != nil {
		return nil, innerErr
	}

	var errmap ardag.MultiErr
	for _, ref := range refs {
		if _, ok := result[ref]; ok {
			continue
		}
		if errmap == nil {
			errmap = make(ardag.MultiErr)
		}
		errmap[ref] = ardag.ErrNotFound
	}
	if errmap != nil {
		return result, errmap
	}
	return result, nil
}

// ListRefs implements ardag.Getter.
func (s *Store) ListRefs(ctx context.Context, start ardag.Ref, f func(ardag.Ref) error) error {
	var innerErr error
	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		ref, err := refFromKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "extracting ref from key %s", key)
			return false
		}
		err = f(ref)
		if err != nil {
			innerErr = err
			return false
		}
		return true
	}

	// Keys are fixed-length, so the first key after start's is start's plus any suffix.
	startKey := blobKey(start) + "0"
	rr := bigtable.NewRange(startKey, "c:")
	filter := bigtable.ChainFilters(bigtable.RowKeyFilter("^b:"), bigtable.StripValueFilter())
	err := s.t.ReadRows(ctx, rr, rowFn, bigtable.RowFilter(filter))
	if err != nil {
		return err
	}
	return innerErr
}

// Put implements ardag.Store.
func (s *Store) Put(ctx context.Context, blob ardag.Blob) (ardag.Ref, bool, error) {
	mut := bigtable.NewMutation()
	mut.Set(BlobFamily, blobcol, bigtable.Now(), blob)

	cmut := bigtable.NewCondMutation(bigtable.LatestNFilter(1), nil, mut)

	var alreadyPresent bool
	ref := blob.Ref()
	err := s.t.Apply(ctx, blobKey(ref), cmut, bigtable.GetCondMutationResult(&alreadyPresent))
	return ref, !alreadyPresent, errors.Wrapf(err, "storing blob %s", ref)
}

// Head implements ardag.HeadStore.
func (s *Store) Head(ctx context.Context) (ardag.Ref, error) {
	row, err := s.t.ReadRow(ctx, headrow, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return ardag.Zero, errors.Wrap(err, "reading head row")
	}
	items := row[HeadFamily]
	if len(items) == 0 {
		return ardag.Zero, nil
	}
	if len(items[0].Value) != len(ardag.Ref{}) {
		return ardag.Zero, errors.Errorf("malformed head value of length %d", len(items[0].Value))
	}
	return ardag.RefFromBytes(items[0].Value), nil
}

// SetHead implements ardag.HeadStore.
// Earlier heads remain as older cell versions,
// subject to the table's garbage-collection policy.
func (s *Store) SetHead(ctx context.Context, ref ardag.Ref) error {
	mut := bigtable.NewMutation()
	mut.Set(HeadFamily, headcol, bigtable.Now(), ref[:])
	return errors.Wrapf(s.t.Apply(ctx, headrow, mut), "setting head to %s", ref)
}

func blobKey(ref ardag.Ref) string {
	return fmt.Sprintf("b:%x", ref[:])
}

func refFromKey(key string) (ardag.Ref, error) {
	return ardag.RefFromHex(key[2:])
}

func init() {
	store.Register("bt", func(ctx context.Context, conf map[string]interface{}) (ardag.Store, error) {
		project, ok := conf["project"].(string)
		if !ok {
			return nil, errors.New(`missing "project" parameter`)
		}
		instance, ok := conf["instance"].(string)
		if !ok {
			return nil, errors.New(`missing "instance" parameter`)
		}
		table, ok := conf["table"].(string)
		if !ok {
			return nil, errors.New(`missing "table" parameter`)
		}

		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		c, err := bigtable.NewClient(ctx, project, instance, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating bigtable client")
		}
		return New(c.Open(table)), nil
	})
}
