// Package ledger describes the append-only, publicly queryable ledger
// on which ardag archives are stored,
// and the capabilities ardag needs from it:
// signing, submitting, fetching payloads, and paginated tag queries.
//
// Implementations live in subpackages:
// mem (in-memory, for tests),
// sqlite3 (a persistent local development ledger),
// and gateway (an HTTP client for a gateway,
// plus a handler serving any Ledger over the same protocol).
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Owner identifies an append-only history stream.
// It is derived deterministically from a public key
// (see OwnerOf).
type Owner string

// OwnerOf derives the Owner for a public key:
// the unpadded base64url encoding of the key's sha256 hash.
func OwnerOf(pubkey []byte) Owner {
	h := sha256.Sum256(pubkey)
	return Owner(base64.RawURLEncoding.EncodeToString(h[:]))
}

// Tag is a name/value pair attached to a transaction for discovery.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TagFilter matches entries having a tag with the given name
// and any one of the given values.
type TagFilter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Matches tells whether tags satisfy f.
func (f TagFilter) Matches(tags []Tag) bool {
	for _, t := range tags {
		if t.Name != f.Name {
			continue
		}
		for _, v := range f.Values {
			if t.Value == v {
				return true
			}
		}
	}
	return false
}

// Tx is a transaction to be submitted to the ledger.
// Owner, PublicKey, Signature, and ID are filled in by a Signer.
type Tx struct {
	ID        string
	Owner     Owner
	PublicKey []byte
	Data      []byte
	Tags      []Tag
	Signature []byte
}

// SignatureData is the byte string a Signer signs for tx.
// It commits to the public key, the hash of the data, and the tags in order.
func (tx *Tx) SignatureData() []byte {
	dataHash := sha256.Sum256(tx.Data)

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, tx.PublicKey)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, dataHash[:])
	for _, tag := range tx.Tags {
		var t []byte
		t = protowire.AppendTag(t, 1, protowire.BytesType)
		t = protowire.AppendString(t, tag.Name)
		t = protowire.AppendTag(t, 2, protowire.BytesType)
		t = protowire.AppendString(t, tag.Value)

		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, t)
	}
	return b
}

// TxID computes the id of a transaction from its signature:
// the unpadded base64url encoding of the signature's sha256 hash.
func TxID(sig []byte) string {
	h := sha256.Sum256(sig)
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Entry is a transaction as it appears in the ledger's index.
type Entry struct {
	ID    string
	Owner Owner
	Tags  []Tag

	// Height is the ledger sequence number of the block containing the entry.
	// It is 0 for an entry that is not yet in a block.
	Height uint64

	// Timestamp is the time of the block containing the entry,
	// or the zero time for a pending entry.
	Timestamp time.Time
}

// Tag returns the value of the first tag with the given name.
func (e Entry) Tag(name string) (string, bool) {
	for _, t := range e.Tags {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

// Newer tells whether e comes after other in ledger order.
// Pending entries come after all mined ones.
func (e Entry) Newer(other Entry) bool {
	switch {
	case e.Height == other.Height:
		return e.Timestamp.After(other.Timestamp)
	case e.Height == 0:
		return true
	case other.Height == 0:
		return false
	}
	return e.Height > other.Height
}

// SortNewestFirst sorts entries in reverse ledger order.
// Entries that are not ordered with respect to each other keep their relative order.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Newer(entries[j])
	})
}

// Query selects entries from the ledger's index.
type Query struct {
	// Owners, if non-empty, restricts results to entries by these owners.
	Owners []Owner

	// Tags restricts results to entries matching every filter.
	Tags []TagFilter

	// After is the cursor from a previous Page.
	// Empty means start at the beginning.
	After string

	// First is the maximum number of entries to return.
	First int
}

// Matches tells whether e satisfies the Owners and Tags constraints of q.
func (q *Query) Matches(e Entry) bool {
	if len(q.Owners) > 0 {
		var found bool
		for _, o := range q.Owners {
			if o == e.Owner {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range q.Tags {
		if !f.Matches(e.Tags) {
			return false
		}
	}
	return true
}

// Page is one page of query results.
type Page struct {
	Entries []Entry

	// Cursor is passed as Query.After to get the next page.
	Cursor string

	// HasMore tells whether there is a next page.
	HasMore bool
}

// Signer signs transactions on behalf of one Owner.
type Signer interface {
	Owner() Owner
	Sign(context.Context, *Tx) error
}

// Submitter posts signed transactions to the ledger.
type Submitter interface {
	// Submit posts tx and returns its entry id.
	// Once Submit returns successfully the entry is permanent.
	Submit(context.Context, *Tx) (string, error)
}

// Fetcher gets the data of a ledger entry.
type Fetcher interface {
	// Fetch returns the data of the entry with the given id,
	// or ErrNotFound.
	Fetch(context.Context, string) ([]byte, error)
}

// Querier runs paginated queries against the ledger's index.
type Querier interface {
	Query(context.Context, *Query) (*Page, error)
}

// Ledger is the full set of ledger capabilities.
type Ledger interface {
	Submitter
	Fetcher
	Querier
}

var (
	// ErrNotFound is the error for a nonexistent entry.
	ErrNotFound = errors.New("entry not found")

	// ErrRejected is the error for a transaction the ledger refused.
	ErrRejected = errors.New("transaction rejected")

	// ErrBadSignature is the error for a transaction whose signature does not verify.
	ErrBadSignature = errors.New("bad signature")
)
