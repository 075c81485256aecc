package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ergolabs/ergo-streaming/ergo"
)

// Network is the capability set the followers need from an Ergo node.
type Network interface {
	// BestHeight returns the height of the best full block known to the node.
	BestHeight(ctx context.Context) (uint32, error)
	// BlocksRange returns header ids of the canonical chain slice around
	// [from, to], in height order. The slice may include the heights just
	// outside that window (see Client.BlocksRange).
	BlocksRange(ctx context.Context, from, to uint32) ([]ergo.BlockId, error)
	// FullBlocks fetches full blocks by header id, preserving input order.
	// The id list is requested in chunks of at most chunkSize to keep the
	// payload below the node's rejection threshold.
	FullBlocks(ctx context.Context, ids []ergo.BlockId, chunkSize int) ([]ergo.FullBlock, error)
	// BlocksBatch resolves the range starting at from and fetches the full
	// blocks. Returns ErrNoBlock when the range is empty.
	BlocksBatch(ctx context.Context, from, batchSize uint32, chunkSize int) ([]ergo.FullBlock, error)
	// UnconfirmedTransactions returns a page of the node's mempool.
	UnconfirmedTransactions(ctx context.Context, offset, limit int) ([]ergo.Transaction, error)
}

// Client is a typed HTTP client for the Ergo node REST API. It performs no
// retries; callers decide how to react to failures. Safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	log     log.Logger
}

func NewClient(lg log.Logger, client *http.Client, baseURL string) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     lg,
	}
}

var _ Network = (*Client)(nil)

func (c *Client) BestHeight(ctx context.Context) (uint32, error) {
	var info ergo.NodeInfo
	if err := c.get(ctx, &info, "/info"); err != nil {
		return 0, err
	}
	return info.FullHeight, nil
}

// BlocksRange widens the requested window by one on each side: some node
// versions exclude the endpoints from the chain slice. Callers filter the
// extra heights out during classification.
func (c *Client) BlocksRange(ctx context.Context, from, to uint32) ([]ergo.BlockId, error) {
	var headers []ergo.Header
	if err := c.get(ctx, &headers, "/blocks/chainSlice?fromHeight=%d&toHeight=%d", from-1, to+1); err != nil {
		return nil, err
	}
	ids := make([]ergo.BlockId, len(headers))
	for i, h := range headers {
		ids[i] = h.ID
	}
	return ids, nil
}

func (c *Client) FullBlocks(ctx context.Context, ids []ergo.BlockId, chunkSize int) ([]ergo.FullBlock, error) {
	if chunkSize <= 0 {
		chunkSize = len(ids)
	}
	blocks := make([]ergo.FullBlock, 0, len(ids))
	for len(ids) > 0 {
		n := chunkSize
		if n > len(ids) {
			n = len(ids)
		}
		chunk, err := c.fullBlocksChunk(ctx, ids[:n])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, chunk...)
		ids = ids[n:]
	}
	return blocks, nil
}

func (c *Client) fullBlocksChunk(ctx context.Context, ids []ergo.BlockId) ([]ergo.FullBlock, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	hexIds := make([]string, len(ids))
	for i, id := range ids {
		hexIds[i] = id.String()
	}
	c.log.Debug("requesting full blocks", "count", len(ids))
	var blocks []ergo.FullBlock
	if err := c.post(ctx, &blocks, hexIds, "/blocks/headerIds"); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *Client) BlocksBatch(ctx context.Context, from, batchSize uint32, chunkSize int) ([]ergo.FullBlock, error) {
	to := from + batchSize
	c.log.Debug("fetching blocks range", "from", from, "to", to)
	ids, err := c.BlocksRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoBlock
	}
	return c.FullBlocks(ctx, ids, chunkSize)
}

func (c *Client) UnconfirmedTransactions(ctx context.Context, offset, limit int) ([]ergo.Transaction, error) {
	var txs []ergo.Transaction
	if err := c.get(ctx, &txs, "/transactions/unconfirmed?offset=%d&limit=%d", offset, limit); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *Client) get(ctx context.Context, out any, format string, args ...any) error {
	url := c.baseURL + fmt.Sprintf(format, args...)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, out any, body any, path string) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return &DecodeError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.client.Do(req)
	if err != nil {
		c.log.Error("error in request", "err", err, "url", req.URL)
		return &TransportError{Err: err}
	}
	defer res.Body.Close()

	// Read the body into memory before unmarshalling so it can be logged
	// when decoding fails.
	body, err := io.ReadAll(res.Body)
	if err != nil {
		c.log.Error("failed to read response body", "err", err, "url", req.URL)
		return &IOError{Err: err}
	}
	if res.StatusCode != http.StatusOK {
		c.log.Error("request failed", "url", req.URL, "status", res.StatusCode, "response", string(body))
		return &HTTPError{Status: res.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.log.Error("failed to parse body as json", "err", err, "url", req.URL, "response", string(body))
		return &DecodeError{Err: err}
	}
	return nil
}
