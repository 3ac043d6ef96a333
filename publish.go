package ardag

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

// Discovery tag names and the application marker.
const (
	AppName = "ArDag"

	TagAppName = "App-Name"
	TagRoot    = "Root-CID"
	TagArchive = "CAR-CID"
)

// Publisher appends archives to the ledger.
type Publisher struct {
	signer    ledger.Signer
	submitter ledger.Submitter
}

// Publication describes a published archive.
type Publication struct {
	EntryID string
	Owner   ledger.Owner
	Root    Ref
	Archive Ref
}

// NewPublisher produces a Publisher that signs with signer and submits with submitter.
func NewPublisher(signer ledger.Signer, submitter ledger.Submitter) (*Publisher, error) {
	if signer == nil {
		return nil, errors.New("no signer")
	}
	if submitter == nil {
		return nil, errors.New("no submitter")
	}
	return &Publisher{signer: signer, submitter: submitter}, nil
}

// Owner is the identity whose history p appends to.
func (p *Publisher) Owner() ledger.Owner {
	return p.signer.Owner()
}

// Publish signs and submits a ledger entry whose payload is the archive a.
// The entry carries the discovery tags from Tags.
//
// Errors wrap ErrPublishFailed together with the signer's or submitter's error,
// so callers can tell, for example, a rejection (ledger.ErrRejected) from a transport failure.
// When Publish fails the write is not durable,
// and callers must not advance any notion of a current root.
func (p *Publisher) Publish(ctx context.Context, a *Archive, extra ...ledger.Tag) (*Publication, error) {
	tx := &ledger.Tx{
		Data: a.Bytes(),
		Tags: Tags(a, extra...),
	}
	if err := p.signer.Sign(ctx, tx); err != nil {
		return nil, withCause(ErrPublishFailed, err, "signing archive %s", a.ID())
	}
	id, err := p.submitter.Submit(ctx, tx)
	if err != nil {
		return nil, withCause(ErrPublishFailed, err, "submitting archive %s", a.ID())
	}
	return &Publication{
		EntryID: id,
		Owner:   tx.Owner,
		Root:    a.Root,
		Archive: a.ID(),
	}, nil
}

// Tags produces the discovery tags for an archive:
// the application marker, the root id, the archive id,
// then the extra tags verbatim.
func Tags(a *Archive, extra ...ledger.Tag) []ledger.Tag {
	tags := []ledger.Tag{
		{Name: TagAppName, Value: AppName},
		{Name: TagRoot, Value: a.Root.String()},
		{Name: TagArchive, Value: a.ID().String()},
	}
	return append(tags, extra...)
}
