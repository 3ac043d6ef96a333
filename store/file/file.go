// Package file implements a blob store as a file hierarchy.
package file

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

var _ ardag.HeadStore = &Store{}

// Store is a file-based implementation of a blob store.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) blobroot() string {
	return filepath.Join(s.root, "blobs")
}

func (s *Store) blobpath(ref ardag.Ref) string {
	h := ref.String()
	return filepath.Join(s.blobroot(), h[:2], h[:4], h)
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(_ context.Context, ref ardag.Ref) (ardag.Blob, error) {
	path := s.blobpath(ref)
	blob, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ardag.ErrNotFound
	}
	return blob, errors.Wrapf(err, "opening %s", path)
}

// Delete removes the blob with hash `ref`.
// Deleting a missing blob is not an error.
func (s *Store) Delete(_ context.Context, ref ardag.Ref) error {
	path := s.blobpath(ref)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", path)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b ardag.Blob) (ardag.Ref, bool, error) {
	var (
		ref  = b.Ref()
		path = s.blobpath(ref)
		dir  = filepath.Dir(path)
	)

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return ref, false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return ref, false, nil
	}
	if err != nil {
		return ardag.Zero, false, errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	_, err = f.Write(b)
	if err != nil {
		return ardag.Zero, false, errors.Wrapf(err, "writing data to %s", path)
	}

	return ref, true, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start ardag.Ref, f func(ardag.Ref) error) error {
	err := os.MkdirAll(s.blobroot(), 0755)
	if os.IsExist(err) {
		// ok
	} else if err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.blobroot())
	}

	topLevel, err := ioutil.ReadDir(s.blobroot())
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.blobroot())
	}

	startHex := start.String()
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= startHex[:2]
	})
	for i := topIndex; i < len(topLevel); i++ {
		topInfo := topLevel[i]
		if !topInfo.IsDir() {
			continue
		}
		topName := topInfo.Name()
		if len(topName) != 2 {
			continue
		}
		if _, err = strconv.ParseInt(topName, 16, 64); err != nil {
			continue
		}

		midLevel, err := ioutil.ReadDir(filepath.Join(s.blobroot(), topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", s.blobroot(), topName)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= startHex[:4]
		})
		for j := midIndex; j < len(midLevel); j++ {
			midInfo := midLevel[j]
			if !midInfo.IsDir() {
				continue
			}
			midName := midInfo.Name()
			if len(midName) != 4 {
				continue
			}
			if _, err = strconv.ParseInt(midName, 16, 64); err != nil {
				continue
			}

			blobInfos, err := ioutil.ReadDir(filepath.Join(s.blobroot(), topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s/%s", s.blobroot(), topName, midName)
			}

			index := sort.Search(len(blobInfos), func(n int) bool {
				return blobInfos[n].Name() > startHex
			})
			for k := index; k < len(blobInfos); k++ {
				blobInfo := blobInfos[k]
				if blobInfo.IsDir() {
					continue
				}

				ref, err := ardag.RefFromHex(blobInfo.Name())
				if err != nil {
					continue
				}

				err = f(ref)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

const headFileBaseName = "head"

func (s *Store) headFilePath() string {
	return filepath.Join(s.root, headFileBaseName)
}

// Creates the head file if needed and locks it.
func (s *Store) lockHead() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.root)
	}
	f, err := os.OpenFile(s.headFilePath(), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "creating head file")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "closing head file")
	}
	return s.flocker.Lock(s.headFilePath())
}

func (s *Store) unlockHead() error {
	return s.flocker.Unlock(s.headFilePath())
}

// Head returns the current root,
// stored in the file "head" beneath the store's root directory.
func (s *Store) Head(context.Context) (ardag.Ref, error) {
	err := s.lockHead()
	if err != nil {
		return ardag.Zero, errors.Wrap(err, "locking head file")
	}
	defer s.unlockHead()

	b, err := os.ReadFile(s.headFilePath())
	if err != nil {
		return ardag.Zero, errors.Wrap(err, "reading head")
	}
	if len(b) == 0 {
		return ardag.Zero, nil
	}
	if len(b) != len(ardag.Ref{}) {
		return ardag.Zero, errors.Errorf("head file has %d bytes, want %d", len(b), len(ardag.Ref{}))
	}
	return ardag.RefFromBytes(b), nil
}

// SetHead sets the current root.
func (s *Store) SetHead(_ context.Context, ref ardag.Ref) error {
	err := s.lockHead()
	if err != nil {
		return errors.Wrap(err, "locking head file")
	}
	defer s.unlockHead()

	return errors.Wrap(os.WriteFile(s.headFilePath(), ref[:], 0644), "writing head file")
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (ardag.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
