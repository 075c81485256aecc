package events

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/ergolabs/ergo-streaming/ergo"
)

// CBOR wire schema for transactions. Keys are camelCase text, matching the
// JSON the node serves, so consumers can share field names across both
// encodings.
type cborToken struct {
	TokenID string `cbor:"tokenId"`
	Amount  uint64 `cbor:"amount"`
}

type cborDataInput struct {
	BoxID string `cbor:"boxId"`
}

type cborErgoBox struct {
	BoxID               string            `cbor:"boxId"`
	Value               uint64            `cbor:"value"`
	ErgoTree            string            `cbor:"ergoTree"`
	Assets              []cborToken       `cbor:"assets"`
	AdditionalRegisters map[string]string `cbor:"additionalRegisters"`
	CreationHeight      uint32            `cbor:"creationHeight"`
	TransactionID       string            `cbor:"transactionId"`
	Index               uint16            `cbor:"index"`
}

type cborBlockTransaction struct {
	ID         string          `cbor:"id"`
	Inputs     []cborErgoBox   `cbor:"inputs"`
	DataInputs []cborDataInput `cbor:"dataInputs,omitempty"`
	Outputs    []cborErgoBox   `cbor:"outputs"`
}

func cborBoxFrom(b ergo.ErgoBox) cborErgoBox {
	assets := make([]cborToken, len(b.Assets))
	for i, a := range b.Assets {
		assets[i] = cborToken{TokenID: string(a.TokenID), Amount: a.Amount}
	}
	return cborErgoBox{
		BoxID:               string(b.BoxID),
		Value:               b.Value,
		ErgoTree:            b.ErgoTree,
		Assets:              assets,
		AdditionalRegisters: b.AdditionalRegisters,
		CreationHeight:      b.CreationHeight,
		TransactionID:       string(b.TransactionID),
		Index:               b.Index,
	}
}

func cborDataInputsFrom(inputs []ergo.DataInput) []cborDataInput {
	if inputs == nil {
		return nil
	}
	out := make([]cborDataInput, len(inputs))
	for i, di := range inputs {
		out[i] = cborDataInput{BoxID: string(di.BoxID)}
	}
	return out
}

// EncodeBlockTransaction serialises a block-form transaction to the CBOR
// schema carried inside event envelopes.
func EncodeBlockTransaction(tx ergo.BlockTransaction) ([]byte, error) {
	inputs := make([]cborErgoBox, len(tx.Inputs))
	for i, box := range tx.Inputs {
		inputs[i] = cborBoxFrom(box)
	}
	outputs := make([]cborErgoBox, len(tx.Outputs))
	for i, box := range tx.Outputs {
		outputs[i] = cborBoxFrom(box)
	}
	return cbor.Marshal(cborBlockTransaction{
		ID:         string(tx.ID),
		Inputs:     inputs,
		DataInputs: cborDataInputsFrom(tx.DataInputs),
		Outputs:    outputs,
	})
}

// EncodeTransaction serialises a proof-bearing transaction into the same
// schema. Inputs carry only their box ids (the spent boxes are not resolved
// for unconfirmed transactions). Outputs have no box id yet; their
// transaction id and index are taken from the owning transaction and their
// position in it.
func EncodeTransaction(tx ergo.Transaction) ([]byte, error) {
	inputs := make([]cborErgoBox, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = cborErgoBox{BoxID: string(in.BoxID)}
	}
	outputs := make([]cborErgoBox, len(tx.Outputs))
	for i, out := range tx.Outputs {
		assets := make([]cborToken, len(out.Assets))
		for j, a := range out.Assets {
			assets[j] = cborToken{TokenID: string(a.TokenID), Amount: a.Amount}
		}
		outputs[i] = cborErgoBox{
			Value:               out.Value,
			ErgoTree:            out.ErgoTree,
			Assets:              assets,
			AdditionalRegisters: out.AdditionalRegisters,
			CreationHeight:      out.CreationHeight,
			TransactionID:       string(tx.ID),
			Index:               uint16(i),
		}
	}
	return cbor.Marshal(cborBlockTransaction{
		ID:         string(tx.ID),
		Inputs:     inputs,
		DataInputs: cborDataInputsFrom(tx.DataInputs),
		Outputs:    outputs,
	})
}
