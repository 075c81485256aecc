package ergo

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// BlockId is the 32-byte content-addressed identifier of a block header.
type BlockId [32]byte

func (id BlockId) String() string {
	return hex.EncodeToString(id[:])
}

func (id BlockId) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}

// BlockIdFromHex parses a 64-character lowercase hex string.
func BlockIdFromHex(s string) (BlockId, error) {
	var id BlockId
	raw, err := hex.DecodeString(s)
	if err != nil {
		return BlockId{}, err
	}
	if len(raw) != len(id) {
		return BlockId{}, fmt.Errorf("block id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// The node API carries ids as bare hex strings.
func (id BlockId) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *BlockId) UnmarshalJSON(in []byte) error {
	var s string
	if err := json.Unmarshal(in, &s); err != nil {
		return err
	}
	parsed, err := BlockIdFromHex(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// TxId, BoxId and TokenId are hex-encoded digests. They are kept in their
// string form since they are only ever compared and forwarded.
type (
	TxId    string
	BoxId   string
	TokenId string
)

// Header is a block header as served by /blocks/chainSlice.
// Fields the service does not consume are left out; the decoder ignores them.
type Header struct {
	ID        BlockId `json:"id"`
	ParentID  BlockId `json:"parentId"`
	Version   uint8   `json:"version"`
	Height    uint32  `json:"height"`
	Timestamp uint64  `json:"timestamp"`
}

// Asset is a token amount carried by a box.
type Asset struct {
	TokenID TokenId `json:"tokenId"`
	Amount  uint64  `json:"amount"`
}

// Registers are the non-mandatory registers of a box, kept opaque.
type Registers map[string]string

// ErgoBox is a box in its on-chain form, with its id and the id/index of the
// transaction that created it.
type ErgoBox struct {
	BoxID               BoxId     `json:"boxId"`
	Value               uint64    `json:"value"`
	ErgoTree            string    `json:"ergoTree"`
	Assets              []Asset   `json:"assets"`
	AdditionalRegisters Registers `json:"additionalRegisters"`
	CreationHeight      uint32    `json:"creationHeight"`
	TransactionID       TxId      `json:"transactionId"`
	Index               uint16    `json:"index"`
}

// Candidate strips the fields an unconfirmed output does not have yet.
func (b ErgoBox) Candidate() ErgoBoxCandidate {
	return ErgoBoxCandidate{
		Value:               b.Value,
		ErgoTree:            b.ErgoTree,
		Assets:              b.Assets,
		AdditionalRegisters: b.AdditionalRegisters,
		CreationHeight:      b.CreationHeight,
	}
}

// ErgoBoxCandidate is a box without its id and creating-transaction reference.
type ErgoBoxCandidate struct {
	Value               uint64    `json:"value"`
	ErgoTree            string    `json:"ergoTree"`
	Assets              []Asset   `json:"assets"`
	AdditionalRegisters Registers `json:"additionalRegisters"`
	CreationHeight      uint32    `json:"creationHeight"`
}

// DataInput references a box that is read but not spent.
type DataInput struct {
	BoxID BoxId `json:"boxId"`
}

// SpendingProof carries the prover result for an input.
type SpendingProof struct {
	ProofBytes string            `json:"proofBytes"`
	Extension  map[string]string `json:"extension"`
}

// Input is the proof-bearing input form used by regular transactions.
type Input struct {
	BoxID         BoxId         `json:"boxId"`
	SpendingProof SpendingProof `json:"spendingProof"`
}

// Transaction is the proof-bearing transaction form, as served by
// /transactions/unconfirmed. Outputs decode from the node's full-box JSON,
// dropping the box id and index.
type Transaction struct {
	ID         TxId               `json:"id"`
	Inputs     []Input            `json:"inputs"`
	DataInputs []DataInput        `json:"dataInputs,omitempty"`
	Outputs    []ErgoBoxCandidate `json:"outputs"`
}

// BlockTransaction is the transaction form the node emits on full-block
// fetch: inputs are the resolved spent boxes rather than proof-bearing
// inputs.
type BlockTransaction struct {
	ID         TxId        `json:"id"`
	Inputs     []ErgoBox   `json:"inputs"`
	DataInputs []DataInput `json:"dataInputs,omitempty"`
	Outputs    []ErgoBox   `json:"outputs"`
}

// ToTransaction converts the block form back to the proof-bearing form.
// Proofs cannot be recovered, so every input gets an empty spending proof,
// and outputs are reduced to their candidate form.
func (tx BlockTransaction) ToTransaction() Transaction {
	inputs := make([]Input, len(tx.Inputs))
	for i, box := range tx.Inputs {
		inputs[i] = Input{
			BoxID: box.BoxID,
			SpendingProof: SpendingProof{
				ProofBytes: "",
				Extension:  map[string]string{},
			},
		}
	}
	outputs := make([]ErgoBoxCandidate, len(tx.Outputs))
	for i, box := range tx.Outputs {
		outputs[i] = box.Candidate()
	}
	return Transaction{
		ID:         tx.ID,
		Inputs:     inputs,
		DataInputs: tx.DataInputs,
		Outputs:    outputs,
	}
}

// FullBlock is the response item of POST /blocks/headerIds.
type FullBlock struct {
	Header       Header             `json:"header"`
	Transactions []BlockTransaction `json:"transactions"`
}

// NodeInfo is the subset of GET /info the service reads.
type NodeInfo struct {
	FullHeight uint32 `json:"fullHeight"`
}
