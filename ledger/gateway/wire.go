package gateway

import (
	"encoding/base64"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

// The GraphQL document the Client sends.
// A Handler does not parse it;
// it reads the variables only.
const transactionsQuery = `query($owners: [String!], $tags: [TagFilter!], $after: String, $first: Int) {
  transactions(owners: $owners, tags: $tags, after: $after, first: $first, sort: HEIGHT_DESC) {
    pageInfo {
      hasNextPage
    }
    edges {
      cursor
      node {
        id
        owner {
          address
        }
        tags {
          name
          value
        }
        block {
          height
          timestamp
        }
      }
    }
  }
}`

type gqlRequest struct {
	Query     string  `json:"query"`
	Variables gqlVars `json:"variables"`
}

type gqlVars struct {
	Owners []string           `json:"owners,omitempty"`
	Tags   []ledger.TagFilter `json:"tags,omitempty"`
	After  string             `json:"after,omitempty"`
	First  int                `json:"first,omitempty"`
}

type gqlResponse struct {
	Data struct {
		Transactions struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Edges []gqlEdge `json:"edges"`
		} `json:"transactions"`
	} `json:"data"`
	Errors []gqlError `json:"errors,omitempty"`
}

type gqlEdge struct {
	Cursor string  `json:"cursor"`
	Node   gqlNode `json:"node"`
}

type gqlNode struct {
	ID    string `json:"id"`
	Owner struct {
		Address string `json:"address"`
	} `json:"owner"`
	Tags  []ledger.Tag `json:"tags"`
	Block *gqlBlock    `json:"block"` // nil for a pending entry
}

type gqlBlock struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"` // Unix seconds
}

type gqlError struct {
	Message string `json:"message"`
}

func (n gqlNode) entry() ledger.Entry {
	e := ledger.Entry{
		ID:    n.ID,
		Owner: ledger.Owner(n.Owner.Address),
		Tags:  n.Tags,
	}
	if n.Block != nil {
		e.Height = n.Block.Height
		e.Timestamp = time.Unix(n.Block.Timestamp, 0).UTC()
	}
	return e
}

func nodeFor(e ledger.Entry) gqlNode {
	n := gqlNode{ID: e.ID, Tags: e.Tags}
	n.Owner.Address = string(e.Owner)
	if e.Height > 0 {
		n.Block = &gqlBlock{Height: e.Height, Timestamp: e.Timestamp.Unix()}
	}
	return n
}

// The JSON form of a transaction posted to /tx.
// Binary fields, and tag names and values, are unpadded base64url.
type wireTx struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"` // the public key
	Tags      []wireTag `json:"tags"`
	Data      string    `json:"data"`
	Signature string    `json:"signature"`
}

type wireTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var b64 = base64.RawURLEncoding

func toWire(tx *ledger.Tx) *wireTx {
	w := &wireTx{
		ID:        tx.ID,
		Owner:     b64.EncodeToString(tx.PublicKey),
		Data:      b64.EncodeToString(tx.Data),
		Signature: b64.EncodeToString(tx.Signature),
	}
	for _, t := range tx.Tags {
		w.Tags = append(w.Tags, wireTag{
			Name:  b64.EncodeToString([]byte(t.Name)),
			Value: b64.EncodeToString([]byte(t.Value)),
		})
	}
	return w
}

func fromWire(w *wireTx) (*ledger.Tx, error) {
	pubkey, err := b64.DecodeString(w.Owner)
	if err != nil {
		return nil, errors.Wrap(err, "decoding owner")
	}
	data, err := b64.DecodeString(w.Data)
	if err != nil {
		return nil, errors.Wrap(err, "decoding data")
	}
	sig, err := b64.DecodeString(w.Signature)
	if err != nil {
		return nil, errors.Wrap(err, "decoding signature")
	}
	tx := &ledger.Tx{
		ID:        w.ID,
		Owner:     ledger.OwnerOf(pubkey),
		PublicKey: pubkey,
		Data:      data,
		Signature: sig,
	}
	for i, t := range w.Tags {
		name, err := b64.DecodeString(t.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding name of tag %d", i)
		}
		value, err := b64.DecodeString(t.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding value of tag %d", i)
		}
		tx.Tags = append(tx.Tags, ledger.Tag{Name: string(name), Value: string(value)})
	}
	return tx, nil
}
