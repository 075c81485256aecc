package ergo_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ergolabs/ergo-streaming/ergo"
)

func TestBlockIdHexRoundTrip(t *testing.T) {
	hexId := strings.Repeat("ab", 32)
	id, err := ergo.BlockIdFromHex(hexId)
	require.NoError(t, err)
	require.Equal(t, hexId, id.String())

	raw, err := json.Marshal(id)
	require.NoError(t, err)
	require.Equal(t, `"`+hexId+`"`, string(raw))

	var decoded ergo.BlockId
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, id, decoded)
}

func TestBlockIdRejectsBadInput(t *testing.T) {
	_, err := ergo.BlockIdFromHex("abcd")
	require.Error(t, err)
	_, err = ergo.BlockIdFromHex("zz" + strings.Repeat("ab", 31))
	require.Error(t, err)

	var id ergo.BlockId
	require.Error(t, json.Unmarshal([]byte(`"deadbeef"`), &id))
	require.Error(t, json.Unmarshal([]byte(`12`), &id))
}

func TestHeaderDecodingIgnoresUnknownFields(t *testing.T) {
	payload := `{
		"id": "` + strings.Repeat("01", 32) + `",
		"parentId": "` + strings.Repeat("02", 32) + `",
		"version": 3,
		"height": 920001,
		"timestamp": 1700000000000,
		"nBits": 117849507,
		"stateRoot": "abcd"
	}`
	var header ergo.Header
	require.NoError(t, json.Unmarshal([]byte(payload), &header))
	require.Equal(t, uint32(920001), header.Height)
	require.Equal(t, uint64(1700000000000), header.Timestamp)
	require.Equal(t, "01", header.ID.String()[:2])
	require.Equal(t, "02", header.ParentID.String()[:2])
}

func blockTx() ergo.BlockTransaction {
	return ergo.BlockTransaction{
		ID: "tx-id",
		Inputs: []ergo.ErgoBox{{
			BoxID:               "input-box",
			Value:               5000,
			ErgoTree:            "0008cd02",
			Assets:              []ergo.Asset{{TokenID: "tok", Amount: 7}},
			AdditionalRegisters: ergo.Registers{"R4": "0e20"},
			CreationHeight:      10,
			TransactionID:       "creating-tx",
			Index:               2,
		}},
		DataInputs: []ergo.DataInput{{BoxID: "data-box"}},
		Outputs: []ergo.ErgoBox{{
			BoxID:               "output-box",
			Value:               4500,
			ErgoTree:            "0008cd03",
			Assets:              []ergo.Asset{},
			AdditionalRegisters: ergo.Registers{},
			CreationHeight:      11,
			TransactionID:       "tx-id",
			Index:               0,
		}},
	}
}

func TestToTransactionProducesEmptyProofs(t *testing.T) {
	tx := blockTx().ToTransaction()
	require.Equal(t, ergo.TxId("tx-id"), tx.ID)
	require.Len(t, tx.Inputs, 1)
	require.Equal(t, ergo.BoxId("input-box"), tx.Inputs[0].BoxID)
	require.Empty(t, tx.Inputs[0].SpendingProof.ProofBytes)
	require.Empty(t, tx.Inputs[0].SpendingProof.Extension)
	require.Equal(t, []ergo.DataInput{{BoxID: "data-box"}}, tx.DataInputs)
}

func TestToTransactionRecoversCandidates(t *testing.T) {
	src := blockTx()
	tx := src.ToTransaction()
	require.Len(t, tx.Outputs, 1)
	out := tx.Outputs[0]
	require.Equal(t, src.Outputs[0].Value, out.Value)
	require.Equal(t, src.Outputs[0].ErgoTree, out.ErgoTree)
	require.Equal(t, src.Outputs[0].Assets, out.Assets)
	require.Equal(t, src.Outputs[0].AdditionalRegisters, out.AdditionalRegisters)
	require.Equal(t, src.Outputs[0].CreationHeight, out.CreationHeight)
}

func TestTransactionDecodingDropsBoxIdentity(t *testing.T) {
	payload := `{
		"id": "unconfirmed-tx",
		"inputs": [{"boxId": "spent", "spendingProof": {"proofBytes": "aa", "extension": {}}}],
		"outputs": [{
			"boxId": "fresh-box",
			"value": 123,
			"ergoTree": "0008cd05",
			"assets": [],
			"additionalRegisters": {},
			"creationHeight": 77,
			"transactionId": "unconfirmed-tx",
			"index": 4
		}]
	}`
	var tx ergo.Transaction
	require.NoError(t, json.Unmarshal([]byte(payload), &tx))
	require.Equal(t, ergo.TxId("unconfirmed-tx"), tx.ID)
	require.Equal(t, uint64(123), tx.Outputs[0].Value)
	require.Equal(t, uint32(77), tx.Outputs[0].CreationHeight)
	require.Nil(t, tx.DataInputs)
}
