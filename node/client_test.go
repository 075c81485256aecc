package node_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ergolabs/ergo-streaming/ergo"
	"github.com/ergolabs/ergo-streaming/node"
)

func testLogger() log.Logger {
	lg := log.New()
	lg.SetHandler(log.DiscardHandler())
	return lg
}

func testId(n byte) ergo.BlockId {
	var id ergo.BlockId
	id[0] = n
	return id
}

func TestBestHeight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/info", r.URL.Path)
		// Unknown fields must be ignored.
		fmt.Fprint(w, `{"fullHeight": 1042, "headersHeight": 1043, "currentTime": 1700000000000}`)
	}))
	defer server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	height, err := client.BestHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(1042), height)
}

func TestBlocksRangeWidensWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/blocks/chainSlice", r.URL.Path)
		require.Equal(t, "99", r.URL.Query().Get("fromHeight"))
		require.Equal(t, "106", r.URL.Query().Get("toHeight"))
		headers := []ergo.Header{
			{ID: testId(1), ParentID: testId(0), Height: 100},
			{ID: testId(2), ParentID: testId(1), Height: 101},
		}
		require.NoError(t, json.NewEncoder(w).Encode(headers))
	}))
	defer server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	ids, err := client.BlocksRange(context.Background(), 100, 105)
	require.NoError(t, err)
	require.Equal(t, []ergo.BlockId{testId(1), testId(2)}, ids)
}

func TestFullBlocksChunking(t *testing.T) {
	var requests [][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/blocks/headerIds", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var ids []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		requests = append(requests, ids)
		blocks := make([]ergo.FullBlock, len(ids))
		for i, raw := range ids {
			id, err := ergo.BlockIdFromHex(raw)
			require.NoError(t, err)
			blocks[i] = ergo.FullBlock{Header: ergo.Header{ID: id, Height: uint32(100 + i)}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(blocks))
	}))
	defer server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	ids := []ergo.BlockId{testId(1), testId(2), testId(3), testId(4), testId(5)}
	blocks, err := client.FullBlocks(context.Background(), ids, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 5)
	// Chunks of at most 2, order preserved across chunks.
	require.Len(t, requests, 3)
	require.Len(t, requests[0], 2)
	require.Len(t, requests[1], 2)
	require.Len(t, requests[2], 1)
	for i, blk := range blocks {
		require.Equal(t, ids[i], blk.Header.ID)
	}
}

func TestBlocksBatchNoBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	_, err := client.BlocksBatch(context.Background(), 100, 16, 4)
	require.ErrorIs(t, err, node.ErrNoBlock)
}

func TestBlocksBatchComposite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blocks/chainSlice":
			headers := []ergo.Header{
				{ID: testId(1), Height: 100},
				{ID: testId(2), Height: 101},
				{ID: testId(3), Height: 102},
			}
			require.NoError(t, json.NewEncoder(w).Encode(headers))
		case "/blocks/headerIds":
			var ids []string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
			blocks := make([]ergo.FullBlock, len(ids))
			for i, raw := range ids {
				id, err := ergo.BlockIdFromHex(raw)
				require.NoError(t, err)
				blocks[i] = ergo.FullBlock{Header: ergo.Header{ID: id}}
			}
			require.NoError(t, json.NewEncoder(w).Encode(blocks))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	blocks, err := client.BlocksBatch(context.Background(), 100, 16, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	require.Equal(t, testId(1), blocks[0].Header.ID)
	require.Equal(t, testId(3), blocks[2].Header.ID)
}

func TestUnconfirmedTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions/unconfirmed", r.URL.Path)
		require.Equal(t, "20", r.URL.Query().Get("offset"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		// Outputs come as full boxes; the extra fields are dropped.
		fmt.Fprint(w, `[{
			"id": "aaaa",
			"inputs": [{"boxId": "bbbb", "spendingProof": {"proofBytes": "cc", "extension": {}}}],
			"outputs": [{"boxId": "dddd", "value": 1000, "ergoTree": "0008cd02", "assets": [],
				"additionalRegisters": {}, "creationHeight": 5, "transactionId": "aaaa", "index": 0}]
		}]`)
	}))
	defer server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	txs, err := client.UnconfirmedTransactions(context.Background(), 20, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, ergo.TxId("aaaa"), txs[0].ID)
	require.Equal(t, ergo.BoxId("bbbb"), txs[0].Inputs[0].BoxID)
	require.Equal(t, "cc", txs[0].Inputs[0].SpendingProof.ProofBytes)
	require.Equal(t, uint64(1000), txs[0].Outputs[0].Value)
}

func TestHTTPErrorCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": 400, "reason": "bad request"}`)
	}))
	defer server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	_, err := client.BestHeight(context.Background())
	var httpErr *node.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Status)
	require.Contains(t, httpErr.Body, "bad request")
	require.Equal(t, "http", node.ClassifyError(err))
}

func TestDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	_, err := client.BestHeight(context.Background())
	var decodeErr *node.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, "decode", node.ClassifyError(err))
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := node.NewClient(testLogger(), nil, server.URL)
	_, err := client.BestHeight(context.Background())
	var transportErr *node.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "transport", node.ClassifyError(err))
}
