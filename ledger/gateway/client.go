// Package gateway implements a ledger over HTTP,
// in the style of an Arweave gateway:
// transactions are posted to /tx,
// entry data is served at /{id},
// and the index is queried with GraphQL at /graphql.
//
// Client is the client side.
// Handler serves any ledger.Ledger with the same protocol.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

var _ ledger.Ledger = &Client{}

// Client is a ledger.Ledger talking to a gateway.
type Client struct {
	url string
	hc  *http.Client
}

// New produces a Client for the gateway at the given base URL,
// e.g. http://localhost:1984.
// If hc is nil, http.DefaultClient is used.
func New(url string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{url: strings.TrimSuffix(url, "/"), hc: hc}
}

// URL is the base URL of the gateway.
func (c *Client) URL() string {
	return c.url
}

// Submit implements ledger.Submitter.
// A transaction refused by the gateway produces an error wrapping ledger.ErrRejected.
func (c *Client) Submit(ctx context.Context, tx *ledger.Tx) (string, error) {
	body, err := json.Marshal(toWire(tx))
	if err != nil {
		return "", errors.Wrap(err, "encoding transaction")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/tx", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "posting transaction to %s", c.url)
	}
	defer resp.Body.Close()

	msg, err := ioutil.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", errors.Wrap(err, "reading response")
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return "", errors.Wrapf(ledger.ErrRejected, "%s: %s", c.url, strings.TrimSpace(string(msg)))
	case resp.StatusCode/100 != 2:
		return "", fmt.Errorf("posting transaction to %s: status %d: %s", c.url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return tx.ID, nil
}

// Fetch implements ledger.Fetcher.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/"+id, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "getting %s from %s", id, c.url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ledger.ErrNotFound
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("getting %s from %s: status %d", id, c.url, resp.StatusCode)
	}

	data, err := ioutil.ReadAll(resp.Body)
	return data, errors.Wrapf(err, "reading %s from %s", id, c.url)
}

// Query implements ledger.Querier.
// Results are sorted newest first.
func (c *Client) Query(ctx context.Context, q *ledger.Query) (*ledger.Page, error) {
	greq := gqlRequest{
		Query: transactionsQuery,
		Variables: gqlVars{
			Tags:  q.Tags,
			After: q.After,
			First: q.First,
		},
	}
	for _, o := range q.Owners {
		greq.Variables.Owners = append(greq.Variables.Owners, string(o))
	}

	body, err := json.Marshal(greq)
	if err != nil {
		return nil, errors.Wrap(err, "encoding query")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", c.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("querying %s: status %d", c.url, resp.StatusCode)
	}

	var gresp gqlResponse
	if err = json.NewDecoder(resp.Body).Decode(&gresp); err != nil {
		return nil, errors.Wrapf(err, "decoding response from %s", c.url)
	}
	if len(gresp.Errors) > 0 {
		return nil, fmt.Errorf("querying %s: %s", c.url, gresp.Errors[0].Message)
	}

	txs := gresp.Data.Transactions
	page := &ledger.Page{HasMore: txs.PageInfo.HasNextPage}
	for _, edge := range txs.Edges {
		page.Entries = append(page.Entries, edge.Node.entry())
		page.Cursor = edge.Cursor
	}
	return page, nil
}

func init() {
	ledger.Register("gateway", func(_ context.Context, conf map[string]interface{}) (ledger.Ledger, error) {
		url, ok := conf["url"].(string)
		if !ok {
			return nil, errors.New(`missing "url" parameter`)
		}
		hc := http.DefaultClient
		if t, ok := conf["timeout"].(string); ok {
			d, err := time.ParseDuration(t)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing timeout %s", t)
			}
			hc = &http.Client{Timeout: d}
		}
		return New(url, hc), nil
	})
}
