package ardag

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

// LoadEntry fetches and decodes the archive carried by a ledger entry.
// The archive must agree with the entry's Root-CID and CAR-CID tags,
// when present.
//
// Fetch failures wrap ErrPayloadFetch along with the fetcher's error.
// Malformed or mismatched payloads wrap ErrDecode.
func LoadEntry(ctx context.Context, f ledger.Fetcher, e ledger.Entry) (*Archive, error) {
	data, err := f.Fetch(ctx, e.ID)
	if err != nil {
		return nil, withCause(ErrPayloadFetch, err, "fetching entry %s", e.ID)
	}
	a, err := DecodeArchive(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding entry %s", e.ID)
	}
	if want, ok := e.Tag(TagRoot); ok && want != a.Root.String() {
		return nil, errors.Wrapf(ErrDecode, "entry %s has root %s, tagged %s", e.ID, a.Root, want)
	}
	if want, ok := e.Tag(TagArchive); ok && want != a.ID().String() {
		return nil, errors.Wrapf(ErrDecode, "entry %s has archive id %s, tagged %s", e.ID, a.ID(), want)
	}
	return a, nil
}
